package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jlertle/backstroke/internal/link"
	"github.com/jlertle/backstroke/internal/middleware"
	"github.com/jlertle/backstroke/internal/model"
)

// LinkServiceInterface はリンクハンドラーが必要とするサービスインターフェース。
type LinkServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.Link, error)
	Get(ctx context.Context, userID, linkID string) (*model.Link, error)
	Create(ctx context.Context, userID string, input link.CreateInput) (*model.Link, error)
	Update(ctx context.Context, userID, linkID string, input link.UpdateInput) (*model.Link, error)
	Delete(ctx context.Context, userID, linkID string) error
	SetEnabled(ctx context.Context, userID, linkID string, enabled bool) (*model.Link, error)
}

// LinkHandler はリンク管理のHTTPハンドラー。
type LinkHandler struct {
	service LinkServiceInterface
}

// NewLinkHandler はLinkHandlerを生成する。
func NewLinkHandler(service LinkServiceInterface) *LinkHandler {
	return &LinkHandler{service: service}
}

// repositoryRef はリクエスト内のリポジトリ参照。
type repositoryRef struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// actionConfig はリクエスト内のアクション設定。
type actionConfig struct {
	Type           string `json:"type"`
	UpstreamBranch string `json:"upstreamBranch"`
	ForwardURL     string `json:"forwardUrl"`
}

// createLinkRequest はリンク作成リクエストのボディ。
type createLinkRequest struct {
	Name       string         `json:"name"`
	Repository *repositoryRef `json:"repository"`
	Action     *actionConfig  `json:"action"`
}

// updateLinkRequest はリンク部分更新リクエストのボディ。
// 省略されたフィールドは変更しない。
type updateLinkRequest struct {
	Name       *string        `json:"name"`
	Repository *repositoryRef `json:"repository"`
	Action     *actionConfig  `json:"action"`
}

// setEnabledRequest は有効フラグ切り替えリクエストのボディ。
type setEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// linkResponse はリンクのAPIレスポンス。
type linkResponse struct {
	ID           string       `json:"id"`
	OwnerID      string       `json:"ownerId"`
	RepositoryID string       `json:"repositoryId,omitempty"`
	Name         string       `json:"name"`
	Enabled      bool         `json:"enabled"`
	Action       actionConfig `json:"action"`
	HookIDs      []int64      `json:"hookIds,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

func toLinkResponse(l *model.Link) linkResponse {
	return linkResponse{
		ID:           l.ID,
		OwnerID:      l.UserID,
		RepositoryID: l.RepositoryID,
		Name:         l.Name,
		Enabled:      l.Enabled,
		Action: actionConfig{
			Type:           string(l.ActionType),
			UpstreamBranch: l.UpstreamBranch,
			ForwardURL:     l.ForwardURL,
		},
		HookIDs:   l.HookIDs,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

// List はユーザーのリンク一覧を返す。
// GET /api/v1/links
func (h *LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewAuthenticationRequiredError())
		return
	}

	links, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	res := make([]linkResponse, len(links))
	for i, l := range links {
		res[i] = toLinkResponse(l)
	}
	writeJSON(w, http.StatusOK, res)
}

// Get は単一リンクを返す。
// GET /api/v1/links/{id}
func (h *LinkHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewAuthenticationRequiredError())
		return
	}

	l, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toLinkResponse(l))
}

// Create はリンクを作成する。
// POST /api/v1/links
func (h *LinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewAuthenticationRequiredError())
		return
	}

	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationFailedError("request body could not be parsed"))
		return
	}
	if req.Repository == nil || req.Action == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationFailedError("repository and action are required"))
		return
	}

	input := link.CreateInput{
		Name:           req.Name,
		RepoOwner:      req.Repository.Owner,
		RepoName:       req.Repository.Name,
		ActionType:     model.ActionType(req.Action.Type),
		UpstreamBranch: req.Action.UpstreamBranch,
		ForwardURL:     req.Action.ForwardURL,
	}

	l, err := h.service.Create(r.Context(), userID, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toLinkResponse(l))
}

// Update はリンクを部分更新する。
// POST /api/v1/links/{id}
func (h *LinkHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewAuthenticationRequiredError())
		return
	}

	var req updateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationFailedError("request body could not be parsed"))
		return
	}

	input := link.UpdateInput{Name: req.Name}
	if req.Repository != nil {
		input.RepoOwner = &req.Repository.Owner
		input.RepoName = &req.Repository.Name
	}
	if req.Action != nil {
		if req.Action.Type != "" {
			actionType := model.ActionType(req.Action.Type)
			input.ActionType = &actionType
		}
		input.UpstreamBranch = &req.Action.UpstreamBranch
		input.ForwardURL = &req.Action.ForwardURL
	}

	l, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toLinkResponse(l))
}

// Delete はリンクを削除する。
// DELETE /api/v1/links/{id}
// 存在しないリンクの削除も204を返す（冪等）。
func (h *LinkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewAuthenticationRequiredError())
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetEnabled はリンクの有効フラグを切り替える。
// POST /api/v1/link/{linkId}/enable
func (h *LinkHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewAuthenticationRequiredError())
		return
	}

	var req setEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationFailedError("enabled flag is required"))
		return
	}

	l, err := h.service.SetEnabled(r.Context(), userID, chi.URLParam(r, "linkId"), *req.Enabled)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toLinkResponse(l))
}
