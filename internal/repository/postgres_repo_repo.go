package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/jlertle/backstroke/internal/model"
)

// PostgresRepoRepo はPostgreSQLを使用したリポジトリメタデータのリポジトリ。
type PostgresRepoRepo struct {
	db *sql.DB
}

// NewPostgresRepoRepo はPostgresRepoRepoを生成する。
func NewPostgresRepoRepo(db *sql.DB) *PostgresRepoRepo {
	return &PostgresRepoRepo{db: db}
}

// FindByID は指定IDのリポジトリを取得する。見つからない場合はnilを返す。
func (r *PostgresRepoRepo) FindByID(ctx context.Context, id string) (*model.Repository, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, provider, owner, name, default_branch, branches, fork, private, fetched_at, created_at
		 FROM repositories
		 WHERE id = $1`,
		id,
	)
	return scanRepository(row)
}

// FindByProviderOwnerName はprovider/owner/nameでリポジトリを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresRepoRepo) FindByProviderOwnerName(ctx context.Context, provider, owner, name string) (*model.Repository, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, provider, owner, name, default_branch, branches, fork, private, fetched_at, created_at
		 FROM repositories
		 WHERE provider = $1 AND owner = $2 AND name = $3`,
		provider, owner, name,
	)
	return scanRepository(row)
}

// Upsert はリポジトリメタデータを作成または更新する。
// (provider, owner, name)の一意制約に基づきブランチキャッシュを更新する。
func (r *PostgresRepoRepo) Upsert(ctx context.Context, repo *model.Repository) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO repositories (id, provider, owner, name, default_branch, branches, fork, private, fetched_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (provider, owner, name) DO UPDATE
		 SET default_branch = EXCLUDED.default_branch,
		     branches = EXCLUDED.branches,
		     fork = EXCLUDED.fork,
		     private = EXCLUDED.private,
		     fetched_at = EXCLUDED.fetched_at`,
		repo.ID, repo.Provider, repo.Owner, repo.Name, repo.DefaultBranch,
		pq.Array(repo.Branches), repo.Fork, repo.Private, repo.FetchedAt, repo.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert repository: %w", err)
	}
	return nil
}

func scanRepository(row *sql.Row) (*model.Repository, error) {
	repo := &model.Repository{}
	var branches pq.StringArray
	err := row.Scan(
		&repo.ID, &repo.Provider, &repo.Owner, &repo.Name, &repo.DefaultBranch,
		&branches, &repo.Fork, &repo.Private, &repo.FetchedAt, &repo.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find repository: %w", err)
	}
	repo.Branches = []string(branches)
	return repo, nil
}

// compile-time interface check
var _ RepoRepository = (*PostgresRepoRepo)(nil)
