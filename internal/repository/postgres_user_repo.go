package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jlertle/backstroke/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx,
		`SELECT id, github_id, username, email, name, access_token, scope, created_at, updated_at
		 FROM users
		 WHERE id = $1`,
		id,
	)
}

// FindByGithubID はGitHub側ユーザーIDでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByGithubID(ctx context.Context, githubID int64) (*model.User, error) {
	return r.findOne(ctx,
		`SELECT id, github_id, username, email, name, access_token, scope, created_at, updated_at
		 FROM users
		 WHERE github_id = $1`,
		githubID,
	)
}

// Create は新規ユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, github_id, username, email, name, access_token, scope, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.GithubID, user.Username, user.Email, user.Name,
		user.AccessToken, user.Scope, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// Update はプロフィールとアクセストークンを更新する。
func (r *PostgresUserRepo) Update(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET username = $2, email = $3, name = $4, access_token = $5, scope = $6, updated_at = $7
		 WHERE id = $1`,
		user.ID, user.Username, user.Email, user.Name,
		user.AccessToken, user.Scope, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepo) findOne(ctx context.Context, query string, arg interface{}) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.GithubID, &user.Username, &user.Email, &user.Name,
		&user.AccessToken, &user.Scope, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
