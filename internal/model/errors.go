// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, link, repo, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	ErrCodeOwnershipViolation     = "OWNERSHIP_VIOLATION"
	ErrCodeLinkNotFound           = "LINK_NOT_FOUND"
	ErrCodeLinkDisabled           = "LINK_DISABLED"
	ErrCodeRepoNotFound           = "REPO_NOT_FOUND"
	ErrCodeUnknownProvider        = "UNKNOWN_PROVIDER"
	ErrCodeValidationFailed       = "VALIDATION_FAILED"
	ErrCodeUpstreamFailure        = "UPSTREAM_FAILURE"
	ErrCodeUpstreamTimeout        = "UPSTREAM_TIMEOUT"
	ErrCodeForwardBlocked         = "FORWARD_BLOCKED"
)

// NewAuthenticationRequiredError は未認証エラーを生成する。
func NewAuthenticationRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthenticationRequired,
		Message:  "Not authenticated.",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewOwnershipViolationError は所有権違反エラーを生成する。
func NewOwnershipViolationError(linkID string) *APIError {
	return &APIError{
		Code:     ErrCodeOwnershipViolation,
		Message:  fmt.Sprintf("link %s is not owned by the caller", linkID),
		Category: "auth",
		Action:   "自分が作成したリンクに対してのみ操作できます。",
	}
}

// NewLinkNotFoundError はリンク未検出エラーを生成する。
func NewLinkNotFoundError(linkID string) *APIError {
	return &APIError{
		Code:     ErrCodeLinkNotFound,
		Message:  fmt.Sprintf("no such link: %s", linkID),
		Category: "link",
		Action:   "リンクIDを確認してください。",
	}
}

// NewLinkDisabledError は無効化済みリンクへのWebhook配送エラーを生成する。
func NewLinkDisabledError(linkID string) *APIError {
	return &APIError{
		Code:     ErrCodeLinkDisabled,
		Message:  fmt.Sprintf("link %s is disabled", linkID),
		Category: "link",
		Action:   "リンクを有効化してから再度Webhookを送信してください。",
	}
}

// NewRepoNotFoundError はリポジトリ未検出エラーを生成する。
func NewRepoNotFoundError(owner, name string) *APIError {
	return &APIError{
		Code:     ErrCodeRepoNotFound,
		Message:  fmt.Sprintf("repository %s/%s was not found", owner, name),
		Category: "repo",
		Action:   "リポジトリのオーナー名とリポジトリ名を確認してください。",
	}
}

// NewUnknownProviderError は未対応プロバイダーエラーを生成する。
func NewUnknownProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownProvider,
		Message:  fmt.Sprintf("unknown hosting provider: %s", provider),
		Category: "validation",
		Action:   "対応しているプロバイダーは github のみです。",
	}
}

// NewValidationFailedError はリクエストペイロードの検証失敗エラーを生成する。
func NewValidationFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("invalid link configuration: %s", reason),
		Category: "validation",
		Action:   "リクエストボディの必須フィールドを確認してください。",
	}
}

// NewUpstreamFailureError はプロバイダーAPI呼び出し失敗エラーを生成する。
// 上流エラーの内容はMessageに保存され、クライアントに伝搬する。
func NewUpstreamFailureError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailure,
		Message:  fmt.Sprintf("upstream provider call failed: %s", reason),
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUpstreamTimeoutError はプロバイダーAPI呼び出しのタイムアウトエラーを生成する。
// 失敗とタイムアウトはコードで区別される。
func NewUpstreamTimeoutError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamTimeout,
		Message:  fmt.Sprintf("upstream provider call timed out: %s", reason),
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewForwardBlockedError は転送先URLがセキュリティポリシーでブロックされた場合のエラーを生成する。
func NewForwardBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeForwardBlocked,
		Message:  "the configured forward URL is not allowed.",
		Category: "validation",
		Action:   "公開されているHTTP(S)エンドポイントのURLを指定してください。プライベートIPやローカルホストへの転送は許可されていません。",
	}
}
