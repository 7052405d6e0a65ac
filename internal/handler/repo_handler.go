package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jlertle/backstroke/internal/model"
)

// RepoCheckerInterface はリポジトリ照会ハンドラーが必要とするサービスインターフェース。
// link.Serviceの部分集合として定義する。
type RepoCheckerInterface interface {
	CheckRepo(ctx context.Context, provider, owner, name string) (*model.Repository, error)
}

// RepoHandler はリポジトリ照会のHTTPハンドラー。
type RepoHandler struct {
	checker RepoCheckerInterface
}

// NewRepoHandler はRepoHandlerを生成する。
func NewRepoHandler(checker RepoCheckerInterface) *RepoHandler {
	return &RepoHandler{checker: checker}
}

// repoCheckResponse はリポジトリ照会のAPIレスポンス。
type repoCheckResponse struct {
	Valid         bool     `json:"valid"`
	Provider      string   `json:"provider"`
	Owner         string   `json:"owner"`
	Name          string   `json:"name"`
	Private       bool     `json:"private"`
	Fork          bool     `json:"fork"`
	DefaultBranch string   `json:"defaultBranch"`
	Branches      []string `json:"branches"`
}

// Check はリポジトリの存在とブランチ一覧を照会する。認証不要。
// GET /api/v1/repos/{provider}/{user}/{repo}
func (h *RepoHandler) Check(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	owner := chi.URLParam(r, "user")
	name := chi.URLParam(r, "repo")

	repo, err := h.checker.CheckRepo(r.Context(), provider, owner, name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	branches := repo.Branches
	if branches == nil {
		branches = []string{}
	}
	writeJSON(w, http.StatusOK, repoCheckResponse{
		Valid:         true,
		Provider:      repo.Provider,
		Owner:         repo.Owner,
		Name:          repo.Name,
		Private:       repo.Private,
		Fork:          repo.Fork,
		DefaultBranch: repo.DefaultBranch,
		Branches:      branches,
	})
}
