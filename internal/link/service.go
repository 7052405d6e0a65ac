// Package link はリンク（リポジトリ→アクションのバインディング）管理の
// ドメインロジックを提供する。CRUD、所有権検証、プロバイダー側Webhookの
// 登録・解除のオーケストレーションを含む。
package link

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jlertle/backstroke/internal/github"
	"github.com/jlertle/backstroke/internal/metrics"
	"github.com/jlertle/backstroke/internal/model"
	"github.com/jlertle/backstroke/internal/repository"
)

// GithubClient はリンク管理に必要なGitHub API操作のインターフェース。
// github.Clientの部分集合として定義する。
type GithubClient interface {
	GetRepo(ctx context.Context, token, owner, name string) (*github.Repo, error)
	ListBranches(ctx context.Context, token, owner, name string) ([]string, error)
	CreateHook(ctx context.Context, token, owner, name, hookURL, secret string) (int64, error)
	DeleteHook(ctx context.Context, token, owner, name string, hookID int64) error
}

// URLValidator は転送先URLの安全性検証に必要なインターフェース。
// security.SSRFGuardServiceの部分集合として定義する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Service はリンク管理のサービス層。
type Service struct {
	linkRepo     repository.LinkRepository
	repoRepo     repository.RepoRepository
	userRepo     repository.UserRepository
	gh           GithubClient
	urlValidator URLValidator
	collector    metrics.MetricsCollector
	baseURL      string
	logger       *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
// baseURLはWebhook受信エンドポイントのURL構築に使用する。
func NewService(
	linkRepo repository.LinkRepository,
	repoRepo repository.RepoRepository,
	userRepo repository.UserRepository,
	gh GithubClient,
	urlValidator URLValidator,
	collector metrics.MetricsCollector,
	baseURL string,
	logger *slog.Logger,
) *Service {
	return &Service{
		linkRepo:     linkRepo,
		repoRepo:     repoRepo,
		userRepo:     userRepo,
		gh:           gh,
		urlValidator: urlValidator,
		collector:    collector,
		baseURL:      strings.TrimRight(baseURL, "/"),
		logger:       logger,
	}
}

// CreateInput はリンク作成のパラメータ。
type CreateInput struct {
	Name           string
	RepoOwner      string
	RepoName       string
	ActionType     model.ActionType
	UpstreamBranch string
	ForwardURL     string
}

// UpdateInput はリンクの部分更新のパラメータ。nilのフィールドは変更しない。
type UpdateInput struct {
	Name           *string
	RepoOwner      *string
	RepoName       *string
	ActionType     *model.ActionType
	UpstreamBranch *string
	ForwardURL     *string
}

// List はユーザーが所有するリンクの一覧を返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Link, error) {
	links, err := s.linkRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("リンク一覧の取得に失敗しました: %w", err)
	}
	return links, nil
}

// Get は指定IDのリンクを返す。
// 存在しない、または呼び出しユーザーから見えないリンクはLINK_NOT_FOUND。
func (s *Service) Get(ctx context.Context, userID, linkID string) (*model.Link, error) {
	link, err := s.linkRepo.FindByID(ctx, linkID)
	if err != nil {
		return nil, fmt.Errorf("リンクの取得に失敗しました: %w", err)
	}
	// 他ユーザーのリンクは存在自体を隠す
	if link == nil || link.UserID != userID {
		return nil, model.NewLinkNotFoundError(linkID)
	}
	return link, nil
}

// Create は新規リンクを作成する。
// リポジトリ参照をプロバイダーAPIで検証し、ブランチキャッシュを更新した上で、
// 有効状態で作成しWebhookを登録する。
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*model.Link, error) {
	if err := s.validateActionConfig(input.ActionType, input.ForwardURL); err != nil {
		return nil, err
	}
	if input.RepoOwner == "" || input.RepoName == "" {
		return nil, model.NewValidationFailedError("repository reference (owner/name) is required")
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewAuthenticationRequiredError()
	}

	// リポジトリ参照の検証とキャッシュ更新
	repo, err := s.resolveRepository(ctx, user.AccessToken, input.RepoOwner, input.RepoName)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	link := &model.Link{
		ID:             uuid.New().String(),
		UserID:         userID,
		RepositoryID:   repo.ID,
		Name:           input.Name,
		Enabled:        true,
		ActionType:     input.ActionType,
		UpstreamBranch: input.UpstreamBranch,
		ForwardURL:     input.ForwardURL,
		Secret:         generateSecret(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if link.Name == "" {
		link.Name = repo.FullName()
	}
	if link.ActionType == model.ActionTypeSync && link.UpstreamBranch == "" {
		link.UpstreamBranch = repo.DefaultBranch
	}

	// 有効状態で作成するためWebhookを登録する
	hookID, err := s.registerHook(ctx, user.AccessToken, repo, link)
	if err != nil {
		return nil, err
	}
	link.HookIDs = []int64{hookID}

	if err := s.linkRepo.Create(ctx, link); err != nil {
		// 永続化に失敗した場合は登録したフックを解除する
		s.deregisterHooks(ctx, user.AccessToken, repo, []int64{hookID})
		return nil, fmt.Errorf("リンクの作成に失敗しました: %w", err)
	}

	s.logger.Info("リンクを作成しました",
		slog.String("link_id", link.ID),
		slog.String("user_id", userID),
		slog.String("repository", repo.FullName()),
		slog.String("action_type", string(link.ActionType)),
	)

	return link, nil
}

// Update はリンクを部分更新する。所有者以外の呼び出しはOWNERSHIP_VIOLATION。
// リポジトリバインディングまたはアクション設定の変更時は、旧Webhookを解除して
// 新しい設定で再登録する。同時更新はlast-write-winsで解決される。
func (s *Service) Update(ctx context.Context, userID, linkID string, input UpdateInput) (*model.Link, error) {
	link, err := s.linkRepo.FindByID(ctx, linkID)
	if err != nil {
		return nil, fmt.Errorf("リンクの取得に失敗しました: %w", err)
	}
	if link == nil {
		return nil, model.NewLinkNotFoundError(linkID)
	}
	if link.UserID != userID {
		return nil, model.NewOwnershipViolationError(linkID)
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewAuthenticationRequiredError()
	}

	if input.Name != nil {
		link.Name = *input.Name
	}

	actionChanged := false
	if input.ActionType != nil && *input.ActionType != link.ActionType {
		link.ActionType = *input.ActionType
		actionChanged = true
	}
	if input.UpstreamBranch != nil && *input.UpstreamBranch != link.UpstreamBranch {
		link.UpstreamBranch = *input.UpstreamBranch
		actionChanged = true
	}
	if input.ForwardURL != nil && *input.ForwardURL != link.ForwardURL {
		link.ForwardURL = *input.ForwardURL
		actionChanged = true
	}
	if err := s.validateActionConfig(link.ActionType, link.ForwardURL); err != nil {
		return nil, err
	}

	repoChanged := false
	var newRepo *model.Repository
	if input.RepoOwner != nil || input.RepoName != nil {
		owner, name := "", ""
		if input.RepoOwner != nil {
			owner = *input.RepoOwner
		}
		if input.RepoName != nil {
			name = *input.RepoName
		}
		if owner == "" || name == "" {
			return nil, model.NewValidationFailedError("repository reference must include both owner and name")
		}

		current, err := s.repoRepo.FindByID(ctx, link.RepositoryID)
		if err != nil {
			return nil, fmt.Errorf("リポジトリの取得に失敗しました: %w", err)
		}
		if current == nil || current.Owner != owner || current.Name != name {
			newRepo, err = s.resolveRepository(ctx, user.AccessToken, owner, name)
			if err != nil {
				return nil, err
			}
			repoChanged = true
		}
	}

	// バインディングまたはアクション設定の変更時はWebhookを再登録する
	if (repoChanged || actionChanged) && link.Enabled {
		oldRepo, err := s.repoRepo.FindByID(ctx, link.RepositoryID)
		if err != nil {
			return nil, fmt.Errorf("リポジトリの取得に失敗しました: %w", err)
		}
		if oldRepo != nil {
			s.deregisterHooks(ctx, user.AccessToken, oldRepo, link.HookIDs)
		}
		link.HookIDs = nil

		target := oldRepo
		if repoChanged {
			target = newRepo
			link.RepositoryID = newRepo.ID
		}
		if target != nil {
			hookID, err := s.registerHook(ctx, user.AccessToken, target, link)
			if err != nil {
				return nil, err
			}
			link.HookIDs = []int64{hookID}
		}
	} else if repoChanged {
		link.RepositoryID = newRepo.ID
	}

	link.UpdatedAt = time.Now()
	if err := s.linkRepo.Update(ctx, link); err != nil {
		return nil, fmt.Errorf("リンクの更新に失敗しました: %w", err)
	}

	return link, nil
}

// Delete はリンクを削除し、登録済みWebhookを解除する。
// 存在しないリンクの削除はエラーとしない（冪等）。
// 所有者以外の呼び出しはOWNERSHIP_VIOLATIONで拒否し、リンクは変更されない。
func (s *Service) Delete(ctx context.Context, userID, linkID string) error {
	link, err := s.linkRepo.FindByID(ctx, linkID)
	if err != nil {
		return fmt.Errorf("リンクの取得に失敗しました: %w", err)
	}
	if link == nil {
		// 既に存在しない場合も成功として扱う
		return nil
	}
	if link.UserID != userID {
		return model.NewOwnershipViolationError(linkID)
	}

	s.cleanupHooks(ctx, link)

	if err := s.linkRepo.DeleteByID(ctx, linkID); err != nil {
		return fmt.Errorf("リンクの削除に失敗しました: %w", err)
	}

	s.logger.Info("リンクを削除しました",
		slog.String("link_id", linkID),
		slog.String("user_id", userID),
	)

	return nil
}

// SetEnabled はリンクの有効フラグを切り替える。
// 有効化時はWebhookをちょうど1つ登録し、無効化時は登録済みWebhookを解除する。
func (s *Service) SetEnabled(ctx context.Context, userID, linkID string, enabled bool) (*model.Link, error) {
	link, err := s.linkRepo.FindByID(ctx, linkID)
	if err != nil {
		return nil, fmt.Errorf("リンクの取得に失敗しました: %w", err)
	}
	if link == nil {
		return nil, model.NewLinkNotFoundError(linkID)
	}
	if link.UserID != userID {
		return nil, model.NewOwnershipViolationError(linkID)
	}

	if link.Enabled == enabled {
		return link, nil
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewAuthenticationRequiredError()
	}

	repo, err := s.repoRepo.FindByID(ctx, link.RepositoryID)
	if err != nil {
		return nil, fmt.Errorf("リポジトリの取得に失敗しました: %w", err)
	}

	if enabled {
		if repo == nil {
			return nil, model.NewValidationFailedError("link has no repository binding")
		}
		hookID, err := s.registerHook(ctx, user.AccessToken, repo, link)
		if err != nil {
			return nil, err
		}
		link.HookIDs = []int64{hookID}
	} else {
		if repo != nil {
			s.deregisterHooks(ctx, user.AccessToken, repo, link.HookIDs)
		}
		link.HookIDs = nil
	}

	link.Enabled = enabled
	link.UpdatedAt = time.Now()
	if err := s.linkRepo.Update(ctx, link); err != nil {
		return nil, fmt.Errorf("リンクの更新に失敗しました: %w", err)
	}

	return link, nil
}

// CheckRepo はホスティングプロバイダーにリポジトリの存在とブランチ一覧を問い合わせ、
// ブランチキャッシュを更新して返す。認証不要の公開操作のためトークンなしで照会する。
// 未知のプロバイダーはUNKNOWN_PROVIDER、リポジトリ不在はREPO_NOT_FOUND、
// 上流エラーはUPSTREAM_FAILURE、タイムアウトはUPSTREAM_TIMEOUTとして報告される。
func (s *Service) CheckRepo(ctx context.Context, provider, owner, name string) (*model.Repository, error) {
	if provider != "github" {
		return nil, model.NewUnknownProviderError(provider)
	}

	ghRepo, err := s.gh.GetRepo(ctx, "", owner, name)
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			return nil, model.NewRepoNotFoundError(owner, name)
		}
		if github.IsTimeout(err) {
			return nil, model.NewUpstreamTimeoutError("repository lookup timed out")
		}
		return nil, model.NewUpstreamFailureError(fmt.Sprintf("repository lookup failed: %v", err))
	}

	branches, err := s.gh.ListBranches(ctx, "", owner, name)
	if err != nil {
		if github.IsTimeout(err) {
			return nil, model.NewUpstreamTimeoutError("branch listing timed out")
		}
		return nil, model.NewUpstreamFailureError(fmt.Sprintf("branch listing failed: %v", err))
	}

	existing, err := s.repoRepo.FindByProviderOwnerName(ctx, "github", ghRepo.Owner, ghRepo.Name)
	if err != nil {
		return nil, fmt.Errorf("リポジトリの取得に失敗しました: %w", err)
	}

	repo := &model.Repository{
		Provider:      "github",
		Owner:         ghRepo.Owner,
		Name:          ghRepo.Name,
		DefaultBranch: ghRepo.DefaultBranch,
		Branches:      branches,
		Fork:          ghRepo.Fork,
		Private:       ghRepo.Private,
		FetchedAt:     time.Now(),
	}
	if existing != nil {
		repo.ID = existing.ID
		repo.CreatedAt = existing.CreatedAt
	} else {
		repo.ID = uuid.New().String()
		repo.CreatedAt = time.Now()
	}

	if err := s.repoRepo.Upsert(ctx, repo); err != nil {
		return nil, fmt.Errorf("リポジトリの保存に失敗しました: %w", err)
	}

	return repo, nil
}

// validateActionConfig はアクション設定の妥当性を検証する。
func (s *Service) validateActionConfig(actionType model.ActionType, forwardURL string) error {
	switch actionType {
	case model.ActionTypeSync:
		return nil
	case model.ActionTypeForward:
		if forwardURL == "" {
			return model.NewValidationFailedError("forward action requires a forward URL")
		}
		if err := s.urlValidator.ValidateURL(forwardURL); err != nil {
			return model.NewValidationFailedError(fmt.Sprintf("forward URL is not allowed: %v", err))
		}
		return nil
	default:
		return model.NewValidationFailedError(fmt.Sprintf("unknown action type: %q", actionType))
	}
}

// resolveRepository はプロバイダーAPIでリポジトリを検証し、
// ブランチキャッシュを更新して永続化済みのRepositoryを返す。
func (s *Service) resolveRepository(ctx context.Context, token, owner, name string) (*model.Repository, error) {
	ghRepo, err := s.gh.GetRepo(ctx, token, owner, name)
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			return nil, model.NewRepoNotFoundError(owner, name)
		}
		if github.IsTimeout(err) {
			return nil, model.NewUpstreamTimeoutError("repository lookup timed out")
		}
		return nil, model.NewUpstreamFailureError(fmt.Sprintf("repository lookup failed: %v", err))
	}

	existing, err := s.repoRepo.FindByProviderOwnerName(ctx, "github", ghRepo.Owner, ghRepo.Name)
	if err != nil {
		return nil, fmt.Errorf("リポジトリの取得に失敗しました: %w", err)
	}

	repo := &model.Repository{
		Provider:      "github",
		Owner:         ghRepo.Owner,
		Name:          ghRepo.Name,
		DefaultBranch: ghRepo.DefaultBranch,
		Fork:          ghRepo.Fork,
		Private:       ghRepo.Private,
		FetchedAt:     time.Now(),
	}
	if existing != nil {
		repo.ID = existing.ID
		repo.Branches = existing.Branches
		repo.CreatedAt = existing.CreatedAt
	} else {
		repo.ID = uuid.New().String()
		repo.CreatedAt = time.Now()
	}

	if err := s.repoRepo.Upsert(ctx, repo); err != nil {
		return nil, fmt.Errorf("リポジトリの保存に失敗しました: %w", err)
	}

	return repo, nil
}

// registerHook はリンクのWebhook受信URLをプロバイダーに登録する。
// リンクの共有シークレットをフック設定に含め、配信時のHMAC署名検証を
// 有効にする。
func (s *Service) registerHook(ctx context.Context, token string, repo *model.Repository, link *model.Link) (int64, error) {
	hookURL := fmt.Sprintf("%s/_%s", s.baseURL, link.ID)

	hookID, err := s.gh.CreateHook(ctx, token, repo.Owner, repo.Name, hookURL, link.Secret)
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			return 0, model.NewRepoNotFoundError(repo.Owner, repo.Name)
		}
		if github.IsTimeout(err) {
			return 0, model.NewUpstreamTimeoutError("webhook registration timed out")
		}
		return 0, model.NewUpstreamFailureError(fmt.Sprintf("webhook registration failed: %v", err))
	}

	s.collector.RecordHookRegistration()
	return hookID, nil
}

// deregisterHooks は登録済みWebhookを解除する。
// 解除失敗はログに記録するのみでエラーとしない（ベストエフォート）。
func (s *Service) deregisterHooks(ctx context.Context, token string, repo *model.Repository, hookIDs []int64) {
	for _, hookID := range hookIDs {
		if err := s.gh.DeleteHook(ctx, token, repo.Owner, repo.Name, hookID); err != nil {
			s.logger.Warn("Webhookの解除に失敗しました",
				slog.String("repository", repo.FullName()),
				slog.Int64("hook_id", hookID),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.collector.RecordHookDeregistration()
	}
}

// cleanupHooks はリンク削除時のWebhook解除を行う。
// トークンまたはリポジトリが解決できない場合はスキップする。
func (s *Service) cleanupHooks(ctx context.Context, link *model.Link) {
	if len(link.HookIDs) == 0 || link.RepositoryID == "" {
		return
	}

	user, err := s.userRepo.FindByID(ctx, link.UserID)
	if err != nil || user == nil {
		s.logger.Warn("Webhook解除のためのユーザー解決に失敗しました",
			slog.String("link_id", link.ID),
		)
		return
	}
	repo, err := s.repoRepo.FindByID(ctx, link.RepositoryID)
	if err != nil || repo == nil {
		s.logger.Warn("Webhook解除のためのリポジトリ解決に失敗しました",
			slog.String("link_id", link.ID),
		)
		return
	}

	s.deregisterHooks(ctx, user.AccessToken, repo, link.HookIDs)
}

// generateSecret はWebhook配信のHMAC署名検証に使う共有シークレットを生成する。
func generateSecret() string {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		// crypto/randの失敗は実行環境の異常
		panic(fmt.Sprintf("failed to generate secret: %v", err))
	}
	return hex.EncodeToString(b)
}
