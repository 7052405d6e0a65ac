// Package github はGitHub REST APIとの連携機能を提供する。
// リポジトリ・ブランチの照会、Webhookの登録・解除、フォーク一覧の取得、
// プルリクエストの作成を含む。すべての呼び出しはユーザーのOAuthトークンで行う。
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
)

const (
	// defaultBaseURL はGitHub REST APIのベースURL。
	defaultBaseURL = "https://api.github.com"
	// perPage は一覧系APIの1ページあたりの取得件数。
	perPage = 100
	// maxPages は一覧系APIで辿るページ数の上限。
	maxPages = 10
)

// ErrNotFound はリポジトリまたはリソースが存在しない（もしくはトークンから
// 見えない）場合に返される。
var ErrNotFound = errors.New("github: resource not found")

// ErrPullExists は同一head/baseのプルリクエストが既に存在する場合に返される。
// 同期アクションでは成功と同等に扱う。
var ErrPullExists = errors.New("github: pull request already exists")

// Client はGitHub REST APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string // テスト用にベースURLを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    defaultBaseURL,
	}
}

// Repo はリポジトリAPIのレスポンスのうち必要な情報。
type Repo struct {
	Owner         string
	Name          string
	FullName      string
	DefaultBranch string
	Fork          bool
	Private       bool
	Parent        *RepoRef
}

// RepoRef はリポジトリへの参照（owner/name）。
type RepoRef struct {
	Owner string
	Name  string
}

// Hook はWebhook登録APIのレスポンス。
type Hook struct {
	ID int64
}

// Pull は作成されたプルリクエストの情報。
type Pull struct {
	Number  int
	HTMLURL string
}

// NewPull はプルリクエスト作成のパラメータ。
type NewPull struct {
	Title string
	Head  string // "owner:branch" 形式
	Base  string
	Body  string
}

type repoResponse struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Fork          bool   `json:"fork"`
	Private       bool   `json:"private"`
	Owner         struct {
		Login string `json:"login"`
	} `json:"owner"`
	Parent *struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"parent"`
}

// GetRepo は単一リポジトリの情報を取得する。
// 存在しない、またはトークンから見えない場合はErrNotFoundを返す。
func (c *Client) GetRepo(ctx context.Context, token, owner, name string) (*Repo, error) {
	path := fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(name))

	var res repoResponse
	if err := c.doJSON(ctx, token, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}

	repo := &Repo{
		Owner:         res.Owner.Login,
		Name:          res.Name,
		FullName:      res.FullName,
		DefaultBranch: res.DefaultBranch,
		Fork:          res.Fork,
		Private:       res.Private,
	}
	if res.Parent != nil {
		repo.Parent = &RepoRef{
			Owner: res.Parent.Owner.Login,
			Name:  res.Parent.Name,
		}
	}

	return repo, nil
}

// ListBranches はリポジトリの全ブランチ名を取得する。
// perPage件ずつmaxPagesページまでページングする。
func (c *Client) ListBranches(ctx context.Context, token, owner, name string) ([]string, error) {
	var branches []string

	for page := 1; page <= maxPages; page++ {
		path := fmt.Sprintf("/repos/%s/%s/branches?per_page=%d&page=%d",
			url.PathEscape(owner), url.PathEscape(name), perPage, page)

		var res []struct {
			Name string `json:"name"`
		}
		if err := c.doJSON(ctx, token, http.MethodGet, path, nil, &res); err != nil {
			return nil, err
		}

		for _, b := range res {
			branches = append(branches, b.Name)
		}

		// ページが埋まっていなければ最終ページ
		if len(res) < perPage {
			break
		}
	}

	return branches, nil
}

// CreateHook はリポジトリにpushイベントのWebhookを登録し、フックIDを返す。
// secretを指定すると、プロバイダーは配信ペイロードにHMAC署名
// （X-Hub-Signatureヘッダー）を付与する。
func (c *Client) CreateHook(ctx context.Context, token, owner, name, hookURL, secret string) (int64, error) {
	path := fmt.Sprintf("/repos/%s/%s/hooks", url.PathEscape(owner), url.PathEscape(name))

	config := map[string]string{
		"url":          hookURL,
		"content_type": "json",
	}
	if secret != "" {
		config["secret"] = secret
	}

	reqBody := map[string]any{
		"name":   "web",
		"active": true,
		"events": []string{"push"},
		"config": config,
	}

	var res struct {
		ID int64 `json:"id"`
	}
	if err := c.doJSON(ctx, token, http.MethodPost, path, reqBody, &res); err != nil {
		return 0, err
	}

	return res.ID, nil
}

// DeleteHook はリポジトリからWebhookを解除する。
// フックが既に存在しない場合（404）はエラーとしない。
func (c *Client) DeleteHook(ctx context.Context, token, owner, name string, hookID int64) error {
	path := fmt.Sprintf("/repos/%s/%s/hooks/%d", url.PathEscape(owner), url.PathEscape(name), hookID)

	err := c.doJSON(ctx, token, http.MethodDelete, path, nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// ListForks はリポジトリの全フォークを取得する。
// perPage件ずつmaxPagesページまでページングする。
func (c *Client) ListForks(ctx context.Context, token, owner, name string) ([]RepoRef, error) {
	var forks []RepoRef

	for page := 1; page <= maxPages; page++ {
		path := fmt.Sprintf("/repos/%s/%s/forks?per_page=%d&page=%d",
			url.PathEscape(owner), url.PathEscape(name), perPage, page)

		var res []struct {
			Name  string `json:"name"`
			Owner struct {
				Login string `json:"login"`
			} `json:"owner"`
		}
		if err := c.doJSON(ctx, token, http.MethodGet, path, nil, &res); err != nil {
			return nil, err
		}

		for _, f := range res {
			forks = append(forks, RepoRef{Owner: f.Owner.Login, Name: f.Name})
		}

		if len(res) < perPage {
			break
		}
	}

	return forks, nil
}

// CreatePull はリポジトリにプルリクエストを作成する。
// 同一head/baseのプルリクエストが既に存在する場合はErrPullExistsを返す。
func (c *Client) CreatePull(ctx context.Context, token, owner, name string, pull NewPull) (*Pull, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls", url.PathEscape(owner), url.PathEscape(name))

	reqBody := map[string]any{
		"title":                 pull.Title,
		"head":                  pull.Head,
		"base":                  pull.Base,
		"body":                  pull.Body,
		"maintainer_can_modify": false,
	}

	var res struct {
		Number  int    `json:"number"`
		HTMLURL string `json:"html_url"`
	}
	if err := c.doJSON(ctx, token, http.MethodPost, path, reqBody, &res); err != nil {
		return nil, err
	}

	return &Pull{Number: res.Number, HTMLURL: res.HTMLURL}, nil
}

// doJSON はGitHub APIへのリクエストを実行し、レスポンスJSONをoutにデコードする。
// outがnilの場合はボディを破棄する。404はErrNotFound、422のうちhead/base重複は
// ErrPullExistsにマップする。
func (c *Client) doJSON(ctx context.Context, token, method, path string, reqBody any, out any) error {
	var bodyReader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	// 公開リポジトリの照会はトークンなしでも行える
	if token != "" {
		req.Header.Set("Authorization", "token "+token)
	}
	req.Header.Set("User-Agent", "Backstroke/1.0")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("GitHub APIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnprocessableEntity:
		// head/base重複による422はプルリクエスト既存として扱う
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if bytes.Contains(body, []byte("pull request already exists")) {
			return ErrPullExists
		}
		return fmt.Errorf("GitHub APIがステータス %d を返しました: %s", resp.StatusCode, string(body))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		c.logger.Error("GitHub APIがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("GitHub APIがステータス %d を返しました", resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error("GitHub APIのレスポンスのパースに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	return nil
}

// IsTimeout はエラーが上流APIのタイムアウト起因かを判定する。
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
