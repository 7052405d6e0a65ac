package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/jlertle/backstroke/internal/auth"
	"github.com/jlertle/backstroke/internal/model"
)

const (
	sessionCookieName = "session_id"
	oauthStateCookie  = "oauth_state"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string, scope auth.Scope) string
	HandleCallback(ctx context.Context, code string, scope auth.Scope) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// CookieSigner はセッションCookie値の署名・検証インターフェース。
// auth.CookieSignerの部分集合として定義する。
type CookieSigner interface {
	Sign(sessionID string) string
	Verify(value string) (string, bool)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	signer  CookieSigner
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, signer CookieSigner, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		signer:  signer,
		config:  config,
	}
}

// Login はプライベートリポジトリスコープでOAuthフローを開始する。
// GET /setup/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.beginLogin(w, r, auth.ScopePrivate)
}

// LoginPublic は公開リポジトリスコープでOAuthフローを開始する。
// GET /setup/login/public
func (h *AuthHandler) LoginPublic(w http.ResponseWriter, r *http.Request) {
	h.beginLogin(w, r, auth.ScopePublic)
}

func (h *AuthHandler) beginLogin(w http.ResponseWriter, r *http.Request, scope auth.Scope) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// stateとスコープをCookieに保存（CSRF対策、コールバックでのスコープ復元）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state + ":" + string(scope),
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.GetLoginURL(state, scope), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/github/callback?code=xxx&state=yyy
// 認可コードの交換に失敗した場合は/setup/failedへリダイレクトする。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || !matchesState(stateCookie.Value, state) {
		slog.Warn("oauth state mismatch",
			slog.String("query_state", state),
		)
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}
	scope := scopeFromStateCookie(stateCookie.Value)

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Redirect(w, r, h.config.BaseURL+"/setup/failed", http.StatusTemporaryRedirect)
		return
	}

	// 3. 認証処理
	session, err := h.service.HandleCallback(r.Context(), code, scope)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		http.Redirect(w, r, h.config.BaseURL+"/setup/failed", http.StatusTemporaryRedirect)
		return
	}

	// 4. 署名付きセッションCookieを設定（HTTP Only）
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    h.signer.Sign(session.ID),
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 5. リンク一覧画面にリダイレクト
	http.Redirect(w, r, h.config.BaseURL+"/#/links", http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄してルートにリダイレクトする。
// GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		if sessionID, ok := h.signer.Verify(cookie.Value); ok {
			if logoutErr := h.service.Logout(r.Context(), sessionID); logoutErr != nil {
				slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
				// ログアウト失敗してもCookieはクリアする
			}
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// Whoami は現在の呼び出しユーザーを返す。
// GET /api/v1/whoami
// 認証は不要で、未認証の呼び出しには200でnullを返す。
func (h *AuthHandler) Whoami(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	sessionID, ok := h.signer.Verify(cookie.Value)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), sessionID)
	if err != nil || user == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
		"name":     user.Name,
		"scope":    user.Scope,
	})
}

// matchesState はstateクッキー値（"state:scope"形式）とクエリのstateを照合する。
func matchesState(cookieValue, state string) bool {
	return len(cookieValue) > len(state) && cookieValue[:len(state)] == state && cookieValue[len(state)] == ':'
}

// scopeFromStateCookie はstateクッキー値からスコープを復元する。
func scopeFromStateCookie(cookieValue string) auth.Scope {
	for i := 0; i < len(cookieValue); i++ {
		if cookieValue[i] == ':' {
			if auth.Scope(cookieValue[i+1:]) == auth.ScopePublic {
				return auth.ScopePublic
			}
			break
		}
	}
	return auth.ScopePrivate
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
