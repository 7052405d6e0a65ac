// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/jlertle/backstroke/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByGithubID はGitHub側ユーザーIDでユーザーを検索する。見つからない場合はnilを返す。
	FindByGithubID(ctx context.Context, githubID int64) (*model.User, error)

	// Create は新規ユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// Update はプロフィールとアクセストークンを更新する。再ログイン時に使用する。
	Update(ctx context.Context, user *model.User) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// LinkRepository はリンクデータの永続化インターフェース。
// 各操作は単一エンティティ単位でアトミックであり、複数エンティティに
// またがるトランザクション保証は提供しない。
type LinkRepository interface {
	// FindByID は指定IDのリンクを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Link, error)

	// ListByUserID はユーザーが所有するリンクの一覧を作成日時順に返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Link, error)

	// FindByRepository はリポジトリのowner/nameでリンクを検索する。
	// 旧Webhook受信エンドポイントでのリンク解決に使用する。見つからない場合はnilを返す。
	FindByRepository(ctx context.Context, owner, name string) (*model.Link, error)

	// Create はリンクを作成する。
	Create(ctx context.Context, link *model.Link) error

	// Update はリンクを上書き更新する。同時更新はlast-write-winsで解決される。
	Update(ctx context.Context, link *model.Link) error

	// DeleteByID は指定IDのリンクを削除する。存在しない場合もエラーにしない（冪等）。
	DeleteByID(ctx context.Context, id string) error
}

// RepoRepository はリポジトリメタデータ（ブランチキャッシュ）の永続化インターフェース。
type RepoRepository interface {
	// FindByID は指定IDのリポジトリを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Repository, error)

	// FindByProviderOwnerName はprovider/owner/nameでリポジトリを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderOwnerName(ctx context.Context, provider, owner, name string) (*model.Repository, error)

	// Upsert はリポジトリメタデータを作成または更新する。
	// リポジトリチェック操作によるブランチキャッシュの更新で使用する。
	Upsert(ctx context.Context, repo *model.Repository) error
}
