package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jlertle/backstroke/internal/model"
	"github.com/jlertle/backstroke/internal/webhook"
)

// maxPayloadBytes はWebhookペイロードの最大サイズ。
const maxPayloadBytes = 1 << 20

// DispatcherInterface はWebhook受信ハンドラーが必要とするディスパッチャー。
// webhook.Dispatcherの部分集合として定義する。
type DispatcherInterface interface {
	DispatchByLinkID(ctx context.Context, linkID string, payload []byte) *webhook.Result
	DispatchByRepository(ctx context.Context, owner, name, signature string, payload []byte) *webhook.Result
}

// WebhookHandler はWebhook受信エンドポイント群のHTTPハンドラー。
// 外部プロバイダーは配信失敗時にフックを無効化することがあるため、
// ディスパッチに失敗しても200で応答し、失敗内容はボディで返す。
type WebhookHandler struct {
	dispatcher DispatcherInterface
	// letsencryptID はACMEチャレンジ応答としてそのまま返す値。
	letsencryptID string
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(dispatcher DispatcherInterface, letsencryptID string) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher, letsencryptID: letsencryptID}
}

// webhookResponse はWebhook受信エンドポイントの応答ボディ。
type webhookResponse struct {
	OK          bool             `json:"ok"`
	LinkID      string           `json:"linkId,omitempty"`
	Action      model.ActionType `json:"action,omitempty"`
	PullsOpened int              `json:"pullsOpened,omitempty"`
	Error       *apiErrorBody    `json:"error,omitempty"`
}

// apiErrorBody はwebhookResponse内に埋め込むエラー表現。
type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeWebhookResult(w http.ResponseWriter, result *webhook.Result) {
	res := webhookResponse{
		OK:          result.OK(),
		LinkID:      result.LinkID,
		Action:      result.ActionType,
		PullsOpened: result.PullsOpened,
	}
	if result.Err != nil {
		res.Error = &apiErrorBody{Code: result.Err.Code, Message: result.Err.Message}
	}
	writeJSON(w, http.StatusOK, res)
}

func readPayload(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
}

// LegacyRoot は旧形式のWebhook受信を処理する。
// POST /
// ペイロードのrepositoryフィールドからリンクを解決する。
func (h *WebhookHandler) LegacyRoot(w http.ResponseWriter, r *http.Request) {
	payload, err := readPayload(r)
	if err != nil {
		writeWebhookResult(w, &webhook.Result{Err: model.NewValidationFailedError("payload could not be read")})
		return
	}

	owner, name, err := webhook.ResolvePushRepository(payload)
	if err != nil {
		writeWebhookResult(w, &webhook.Result{Err: model.NewValidationFailedError(err.Error())})
		return
	}

	signature := r.Header.Get("X-Hub-Signature")
	writeWebhookResult(w, h.dispatcher.DispatchByRepository(r.Context(), owner, name, signature, payload))
}

// PingRedirect はブラウザでのフック疎通確認をリポジトリページへ転送する。
// GET /ping/github/{user}/{repo}
func (h *WebhookHandler) PingRedirect(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	repo := chi.URLParam(r, "repo")
	http.Redirect(w, r, "https://github.com/"+user+"/"+repo, http.StatusFound)
}

// PingDispatch はパスで指定されたリポジトリのリンクをディスパッチする。
// POST /ping/github/{user}/{repo}
func (h *WebhookHandler) PingDispatch(w http.ResponseWriter, r *http.Request) {
	payload, err := readPayload(r)
	if err != nil {
		writeWebhookResult(w, &webhook.Result{Err: model.NewValidationFailedError("payload could not be read")})
		return
	}

	user := chi.URLParam(r, "user")
	repo := chi.URLParam(r, "repo")
	signature := r.Header.Get("X-Hub-Signature")
	writeWebhookResult(w, h.dispatcher.DispatchByRepository(r.Context(), user, repo, signature, payload))
}

// Receive はリンクID指定のWebhook受信を処理する。
// ANY /_{linkId}
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	payload, err := readPayload(r)
	if err != nil {
		writeWebhookResult(w, &webhook.Result{Err: model.NewValidationFailedError("payload could not be read")})
		return
	}

	writeWebhookResult(w, h.dispatcher.DispatchByLinkID(r.Context(), chi.URLParam(r, "linkId"), payload))
}

// AcmeChallenge はHTTP-01チャレンジの応答値を返す。
// GET /.well-known/acme-challenge/{id}
func (h *WebhookHandler) AcmeChallenge(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(h.letsencryptID))
}
