package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jlertle/backstroke/internal/middleware"
)

// HealthChecker はデータベース疎通確認に必要なインターフェース。
// *sql.DBの部分集合として定義する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CookieVerifier    middleware.CookieVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	Signer      CookieSigner
	AuthConfig  AuthHandlerConfig

	// リンク
	LinkService LinkServiceInterface

	// リポジトリ照会
	RepoChecker RepoCheckerInterface

	// Webhook受信
	Dispatcher    DispatcherInterface
	LetsencryptID string

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORSMiddleware → SessionMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// 認証ルートとWebhook受信ルートはミドルウェアチェーンの外に配置する。
// Webhook受信は外部プロバイダーからの呼び出しのためCookie認証を要求できない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// CORS ミドルウェアを最上位に適用（全ルートに効く）
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.Signer, deps.AuthConfig)
	linkHandler := NewLinkHandler(deps.LinkService)
	repoHandler := NewRepoHandler(deps.RepoChecker)
	webhookHandler := NewWebhookHandler(deps.Dispatcher, deps.LetsencryptID)

	// --- 認証不要のルート ---

	// 認証ルート（OAuthフロー）
	r.Get("/setup/login", authHandler.Login)
	r.Get("/setup/login/public", authHandler.LoginPublic)
	r.Get("/auth/github/callback", authHandler.Callback)
	r.Get("/logout", authHandler.Logout)
	r.Get("/api/v1/whoami", authHandler.Whoami)

	// リポジトリ照会（公開リポジトリのみ対象のため認証不要）
	r.Get("/api/v1/repos/{provider}/{user}/{repo}", repoHandler.Check)

	// Webhook受信
	r.Post("/", webhookHandler.LegacyRoot)
	r.Get("/ping/github/{user}/{repo}", webhookHandler.PingRedirect)
	r.Post("/ping/github/{user}/{repo}", webhookHandler.PingDispatch)
	r.Handle("/_{linkId}", http.HandlerFunc(webhookHandler.Receive))

	// ACMEチャレンジ
	r.Get("/.well-known/acme-challenge/{id}", webhookHandler.AcmeChallenge)

	// 運用エンドポイント
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, deps.CookieVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// リンク管理
		r.Route("/api/v1/links", func(r chi.Router) {
			r.Get("/", linkHandler.List)
			// POST /api/v1/links - リンク作成（作成専用レート制限を追加）
			r.With(deps.RateLimiter.LinkCreateMiddleware()).Post("/", linkHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", linkHandler.Get)
				r.Post("/", linkHandler.Update)
				r.Delete("/", linkHandler.Delete)
			})
		})

		// 有効フラグ切り替え（旧APIのパス形状をそのまま維持する）
		r.Post("/api/v1/link/{linkId}/enable", linkHandler.SetEnabled)
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
