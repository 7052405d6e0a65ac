package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/jlertle/backstroke/internal/model"
)

// PostgresLinkRepo はPostgreSQLを使用したリンクリポジトリ。
type PostgresLinkRepo struct {
	db *sql.DB
}

// NewPostgresLinkRepo はPostgresLinkRepoを生成する。
func NewPostgresLinkRepo(db *sql.DB) *PostgresLinkRepo {
	return &PostgresLinkRepo{db: db}
}

const linkColumns = `id, user_id, repository_id, name, enabled, action_type,
	upstream_branch, forward_url, secret, hook_ids, created_at, updated_at`

// FindByID は指定IDのリンクを取得する。見つからない場合はnilを返す。
func (r *PostgresLinkRepo) FindByID(ctx context.Context, id string) (*model.Link, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM links WHERE id = $1`,
		id,
	)
	return scanLink(row)
}

// ListByUserID はユーザーが所有するリンクの一覧を作成日時順に返す。
func (r *PostgresLinkRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Link, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM links WHERE user_id = $1 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	links := []*model.Link{}
	for rows.Next() {
		link, err := scanLinkRows(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate links: %w", err)
	}
	return links, nil
}

// FindByRepository はバインド済みリポジトリのowner/nameでリンクを検索する。
// 見つからない場合はnilを返す。複数一致する場合は最も古いリンクを返す。
func (r *PostgresLinkRepo) FindByRepository(ctx context.Context, owner, name string) (*model.Link, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT l.id, l.user_id, l.repository_id, l.name, l.enabled, l.action_type,
		        l.upstream_branch, l.forward_url, l.secret, l.hook_ids, l.created_at, l.updated_at
		 FROM links l
		 JOIN repositories r ON r.id = l.repository_id
		 WHERE r.owner = $1 AND r.name = $2
		 ORDER BY l.created_at
		 LIMIT 1`,
		owner, name,
	)
	return scanLink(row)
}

// Create はリンクを作成する。
func (r *PostgresLinkRepo) Create(ctx context.Context, link *model.Link) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO links (id, user_id, repository_id, name, enabled, action_type,
		                    upstream_branch, forward_url, secret, hook_ids, created_at, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		link.ID, link.UserID, link.RepositoryID, link.Name, link.Enabled, link.ActionType,
		link.UpstreamBranch, link.ForwardURL, link.Secret, pq.Array(link.HookIDs),
		link.CreatedAt, link.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

// Update はリンクを上書き更新する。同時更新はlast-write-winsで解決される。
func (r *PostgresLinkRepo) Update(ctx context.Context, link *model.Link) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE links
		 SET repository_id = NULLIF($2, ''), name = $3, enabled = $4, action_type = $5,
		     upstream_branch = $6, forward_url = $7, secret = $8, hook_ids = $9, updated_at = $10
		 WHERE id = $1`,
		link.ID, link.RepositoryID, link.Name, link.Enabled, link.ActionType,
		link.UpstreamBranch, link.ForwardURL, link.Secret, pq.Array(link.HookIDs),
		link.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのリンクを削除する。存在しない場合もエラーにしない（冪等）。
func (r *PostgresLinkRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM links WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	return nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通Scanインターフェース。
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLink(row *sql.Row) (*model.Link, error) {
	link, err := scanLinkFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find link: %w", err)
	}
	return link, nil
}

func scanLinkRows(rows *sql.Rows) (*model.Link, error) {
	link, err := scanLinkFrom(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan link: %w", err)
	}
	return link, nil
}

func scanLinkFrom(s rowScanner) (*model.Link, error) {
	link := &model.Link{}
	var repositoryID sql.NullString
	var hookIDs pq.Int64Array
	err := s.Scan(
		&link.ID, &link.UserID, &repositoryID, &link.Name, &link.Enabled, &link.ActionType,
		&link.UpstreamBranch, &link.ForwardURL, &link.Secret, &hookIDs,
		&link.CreatedAt, &link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	link.RepositoryID = repositoryID.String
	link.HookIDs = []int64(hookIDs)
	return link, nil
}

// compile-time interface check
var _ LinkRepository = (*PostgresLinkRepo)(nil)
