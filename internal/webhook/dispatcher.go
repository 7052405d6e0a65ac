package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jlertle/backstroke/internal/github"
	"github.com/jlertle/backstroke/internal/metrics"
	"github.com/jlertle/backstroke/internal/model"
	"github.com/jlertle/backstroke/internal/repository"
)

// SyncClient は同期アクションの実行に必要なGitHub API操作のインターフェース。
// github.Clientの部分集合として定義する。
type SyncClient interface {
	ListForks(ctx context.Context, token, owner, name string) ([]github.RepoRef, error)
	CreatePull(ctx context.Context, token, owner, name string, pull github.NewPull) (*github.Pull, error)
}

// Result はディスパッチ1回の実行結果。
// 受信エンドポイントはエラーでも200で応答し、このResultをボディとして返す。
type Result struct {
	LinkID      string           `json:"linkId,omitempty"`
	ActionType  model.ActionType `json:"action,omitempty"`
	PullsOpened int              `json:"pullsOpened,omitempty"`
	// Err はディスパッチ失敗の内容。成功時はnil。
	Err *model.APIError `json:"-"`
}

// OK はディスパッチが成功したかを返す。
func (r *Result) OK() bool {
	return r.Err == nil
}

// Dispatcher はWebhook受信時のリンク解決とアクション実行を行う。
// 未知のリンク・無効化されたリンク・不正なペイロードはResultとして報告され、
// 受信プロセスを停止させることはない。
type Dispatcher struct {
	linkRepo      repository.LinkRepository
	repoRepo      repository.RepoRepository
	userRepo      repository.UserRepository
	gh            SyncClient
	forwardClient *http.Client
	collector     metrics.MetricsCollector
	logger        *slog.Logger
}

// NewDispatcher はDispatcherの新しいインスタンスを生成する。
// forwardClientにはSSRF防止付きHTTPクライアントを渡すこと。
func NewDispatcher(
	linkRepo repository.LinkRepository,
	repoRepo repository.RepoRepository,
	userRepo repository.UserRepository,
	gh SyncClient,
	forwardClient *http.Client,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		linkRepo:      linkRepo,
		repoRepo:      repoRepo,
		userRepo:      userRepo,
		gh:            gh,
		forwardClient: forwardClient,
		collector:     collector,
		logger:        logger,
	}
}

// DispatchByLinkID はリンクIDでリンクを解決し、アクションを実行する。
// 現行形式の受信エンドポイント（/_{linkId}）から使用する。
func (d *Dispatcher) DispatchByLinkID(ctx context.Context, linkID string, payload []byte) *Result {
	link, err := d.linkRepo.FindByID(ctx, linkID)
	if err != nil {
		d.logger.Error("リンクの取得に失敗しました",
			slog.String("link_id", linkID),
			slog.String("error", err.Error()),
		)
		return &Result{LinkID: linkID, Err: model.NewLinkNotFoundError(linkID)}
	}
	if link == nil {
		return &Result{LinkID: linkID, Err: model.NewLinkNotFoundError(linkID)}
	}

	return d.execute(ctx, link, payload)
}

// DispatchByRepository はリポジトリのowner/nameでリンクを解決し、アクションを実行する。
// 旧形式の受信エンドポイント（POST / および POST /ping/...）から使用する。
// signatureにはX-Hub-Signatureヘッダーの値を渡す。ヘッダーが付与されている場合、
// リンクの共有シークレットに対するHMAC署名として検証する。
func (d *Dispatcher) DispatchByRepository(ctx context.Context, owner, name, signature string, payload []byte) *Result {
	link, err := d.linkRepo.FindByRepository(ctx, owner, name)
	if err != nil {
		d.logger.Error("リポジトリによるリンク解決に失敗しました",
			slog.String("repository", owner+"/"+name),
			slog.String("error", err.Error()),
		)
		return &Result{Err: model.NewLinkNotFoundError(owner + "/" + name)}
	}
	if link == nil {
		return &Result{Err: model.NewLinkNotFoundError(owner + "/" + name)}
	}

	if signature != "" && link.Secret != "" && !verifySignature(link.Secret, signature, payload) {
		d.logger.Warn("Webhook署名の検証に失敗しました",
			slog.String("link_id", link.ID),
			slog.String("repository", owner+"/"+name),
		)
		return &Result{LinkID: link.ID, Err: model.NewValidationFailedError("webhook signature mismatch")}
	}

	return d.execute(ctx, link, payload)
}

// verifySignature はGitHubのX-Hub-Signature形式（"sha1="+hex）の署名を検証する。
func verifySignature(secret, signature string, payload []byte) bool {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(payload)
	expected := "sha1=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// execute はリンクの有効性を検証し、設定されたアクションを実行する。
func (d *Dispatcher) execute(ctx context.Context, link *model.Link, payload []byte) *Result {
	result := &Result{LinkID: link.ID, ActionType: link.ActionType}

	if !link.Enabled {
		result.Err = model.NewLinkDisabledError(link.ID)
		d.collector.RecordDispatchFailure(string(link.ActionType), "disabled")
		return result
	}

	start := time.Now()
	defer func() {
		d.collector.RecordDispatchLatency(time.Since(start))
	}()

	switch link.ActionType {
	case model.ActionTypeSync:
		d.executeSync(ctx, link, result)
	case model.ActionTypeForward:
		d.executeForward(ctx, link, payload, result)
	default:
		result.Err = model.NewValidationFailedError(fmt.Sprintf("unknown action type: %q", link.ActionType))
	}

	if result.OK() {
		d.collector.RecordDispatchSuccess(string(link.ActionType))
	} else {
		d.collector.RecordDispatchFailure(string(link.ActionType), result.Err.Code)
	}

	return result
}

// executeSync はupstreamの変更を各フォークへプルリクエストとして同期する。
// 既に同内容のプルリクエストが存在するフォークはスキップする。
// 個別フォークでの失敗はログに記録して続行する。
func (d *Dispatcher) executeSync(ctx context.Context, link *model.Link, result *Result) {
	user, err := d.userRepo.FindByID(ctx, link.UserID)
	if err != nil || user == nil {
		result.Err = model.NewUpstreamFailureError("link owner could not be resolved")
		return
	}

	repo, err := d.repoRepo.FindByID(ctx, link.RepositoryID)
	if err != nil || repo == nil {
		result.Err = model.NewValidationFailedError("link has no repository binding")
		return
	}

	branch := link.UpstreamBranch
	if branch == "" {
		branch = repo.DefaultBranch
	}

	forks, err := d.gh.ListForks(ctx, user.AccessToken, repo.Owner, repo.Name)
	if err != nil {
		result.Err = mapUpstreamError(err, repo.Owner, repo.Name, "fork listing")
		return
	}

	opened := 0
	for _, fork := range forks {
		pull := github.NewPull{
			Title: fmt.Sprintf("Update from upstream repo %s", repo.FullName()),
			Head:  fmt.Sprintf("%s:%s", repo.Owner, branch),
			Base:  branch,
			Body:  fmt.Sprintf("Hello! The upstream repository %s has some new changes that aren't in this fork yet.", repo.FullName()),
		}

		if _, err := d.gh.CreatePull(ctx, user.AccessToken, fork.Owner, fork.Name, pull); err != nil {
			if errors.Is(err, github.ErrPullExists) {
				continue
			}
			d.logger.Warn("フォークへのプルリクエスト作成に失敗しました",
				slog.String("link_id", link.ID),
				slog.String("fork", fork.Owner+"/"+fork.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		opened++
	}

	result.PullsOpened = opened
	d.collector.RecordPullRequestsOpened(opened)

	d.logger.Info("同期アクションを実行しました",
		slog.String("link_id", link.ID),
		slog.String("repository", repo.FullName()),
		slog.Int("forks", len(forks)),
		slog.Int("pulls_opened", opened),
	)
}

// executeForward は受信したペイロードを設定済みURLへ転送する。
// 転送クライアントはSSRF防止付きであり、内部ネットワーク宛の転送はブロックされる。
func (d *Dispatcher) executeForward(ctx context.Context, link *model.Link, payload []byte, result *Result) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, link.ForwardURL, bytes.NewReader(payload))
	if err != nil {
		result.Err = model.NewValidationFailedError(fmt.Sprintf("invalid forward URL: %v", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Backstroke/1.0")

	resp, err := d.forwardClient.Do(req)
	if err != nil {
		if github.IsTimeout(err) {
			result.Err = model.NewUpstreamTimeoutError("forward request timed out")
			return
		}
		// SSRF防止によるブロックと到達不能はまとめて転送失敗として扱う
		d.logger.Warn("ペイロードの転送に失敗しました",
			slog.String("link_id", link.ID),
			slog.String("error", err.Error()),
		)
		result.Err = model.NewForwardBlockedError()
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	d.collector.RecordForwardStatus(resp.StatusCode)

	if resp.StatusCode >= 500 {
		result.Err = model.NewUpstreamFailureError(fmt.Sprintf("forward target returned status %d", resp.StatusCode))
		return
	}

	d.logger.Info("転送アクションを実行しました",
		slog.String("link_id", link.ID),
		slog.Int("status", resp.StatusCode),
	)
}

// mapUpstreamError はGitHub APIのエラーをAPIエラーにマップする。
func mapUpstreamError(err error, owner, name, operation string) *model.APIError {
	if errors.Is(err, github.ErrNotFound) {
		return model.NewRepoNotFoundError(owner, name)
	}
	if github.IsTimeout(err) {
		return model.NewUpstreamTimeoutError(operation + " timed out")
	}
	return model.NewUpstreamFailureError(fmt.Sprintf("%s failed: %v", operation, err))
}
