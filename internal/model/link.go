// Package model はドメインモデルを定義する。
package model

import "time"

// ActionType はWebhook受信時にリンクが実行するアクションの種別を表す。
type ActionType string

const (
	// ActionTypeSync はupstreamの変更をフォークへPull Requestとして同期するアクション。
	ActionTypeSync ActionType = "sync"
	// ActionTypeForward は受信したペイロードを設定済みURLへ転送するアクション。
	ActionTypeForward ActionType = "forward"
)

// Link はユーザーが所有する「ソースリポジトリ → アクション」のバインディングを表す。
// 所有ユーザーはちょうど1人、リポジトリバインディングは高々1つ。
type Link struct {
	ID     string
	UserID string
	// RepositoryID はバインドされたRepositoryのID。未バインドの場合は空文字列。
	RepositoryID string
	Name         string
	Enabled      bool

	// アクション設定
	ActionType ActionType
	// UpstreamBranch はsyncアクションで同期対象とするブランチ。
	UpstreamBranch string
	// ForwardURL はforwardアクションの転送先URL。
	ForwardURL string
	// Secret は旧Webhook受信エンドポイントで使用する共有シークレット。
	Secret string

	// HookIDs はプロバイダー側に登録したWebhookのID。削除・無効化時の解除に使用する。
	HookIDs []int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository はリンクに紐づくホスティングプロバイダー上のリポジトリを表す。
// ブランチ一覧はリポジトリチェック操作で更新されるキャッシュであり、
// エンドユーザーが直接変更することはない。
type Repository struct {
	ID            string
	Provider      string
	Owner         string
	Name          string
	DefaultBranch string
	Branches      []string
	Fork          bool
	Private       bool
	FetchedAt     time.Time
	CreatedAt     time.Time
}

// FullName は"owner/name"形式のリポジトリ名を返す。
func (r *Repository) FullName() string {
	return r.Owner + "/" + r.Name
}
