// Package model はドメインモデルを定義する。
package model

import "time"

// User はGitHubアカウントで認証したサービス利用ユーザーを表す。
// GitHub側のユーザーIDをキーとして初回ログイン時に自動作成され、
// 再ログイン時にはプロフィールとアクセストークンが更新される。
type User struct {
	ID          string
	GithubID    int64
	Username    string
	Email       string
	Name        string
	AccessToken string
	// Scope はOAuth認可時に要求したリポジトリスコープ（"private" または "public"）。
	Scope     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session はユーザーのログインセッションを表す。
// IDは暗号的に安全なランダムトークンで、Cookieには
// SESSION_SECRETによるHMAC署名付きで格納される。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
