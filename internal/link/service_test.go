package link

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jlertle/backstroke/internal/github"
	"github.com/jlertle/backstroke/internal/model"
)

// --- モック定義 ---

type mockLinkRepository struct {
	findByIDFn         func(ctx context.Context, id string) (*model.Link, error)
	listByUserIDFn     func(ctx context.Context, userID string) ([]*model.Link, error)
	findByRepositoryFn func(ctx context.Context, owner, name string) (*model.Link, error)
	createFn           func(ctx context.Context, link *model.Link) error
	updateFn           func(ctx context.Context, link *model.Link) error
	deleteByIDFn       func(ctx context.Context, id string) error
}

func (m *mockLinkRepository) FindByID(ctx context.Context, id string) (*model.Link, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockLinkRepository) ListByUserID(ctx context.Context, userID string) ([]*model.Link, error) {
	if m.listByUserIDFn != nil {
		return m.listByUserIDFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockLinkRepository) FindByRepository(ctx context.Context, owner, name string) (*model.Link, error) {
	if m.findByRepositoryFn != nil {
		return m.findByRepositoryFn(ctx, owner, name)
	}
	return nil, nil
}

func (m *mockLinkRepository) Create(ctx context.Context, link *model.Link) error {
	if m.createFn != nil {
		return m.createFn(ctx, link)
	}
	return nil
}

func (m *mockLinkRepository) Update(ctx context.Context, link *model.Link) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, link)
	}
	return nil
}

func (m *mockLinkRepository) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

type mockRepoRepository struct {
	findByIDFn                func(ctx context.Context, id string) (*model.Repository, error)
	findByProviderOwnerNameFn func(ctx context.Context, provider, owner, name string) (*model.Repository, error)
	upsertFn                  func(ctx context.Context, repo *model.Repository) error
}

func (m *mockRepoRepository) FindByID(ctx context.Context, id string) (*model.Repository, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockRepoRepository) FindByProviderOwnerName(ctx context.Context, provider, owner, name string) (*model.Repository, error) {
	if m.findByProviderOwnerNameFn != nil {
		return m.findByProviderOwnerNameFn(ctx, provider, owner, name)
	}
	return nil, nil
}

func (m *mockRepoRepository) Upsert(ctx context.Context, repo *model.Repository) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, repo)
	}
	return nil
}

type mockUserRepository struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepository) FindByGithubID(ctx context.Context, githubID int64) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepository) Create(ctx context.Context, user *model.User) error { return nil }
func (m *mockUserRepository) Update(ctx context.Context, user *model.User) error { return nil }

type mockGithubClient struct {
	getRepoFn      func(ctx context.Context, token, owner, name string) (*github.Repo, error)
	listBranchesFn func(ctx context.Context, token, owner, name string) ([]string, error)
	createHookFn   func(ctx context.Context, token, owner, name, hookURL, secret string) (int64, error)
	deleteHookFn   func(ctx context.Context, token, owner, name string, hookID int64) error
}

func (m *mockGithubClient) ListBranches(ctx context.Context, token, owner, name string) ([]string, error) {
	if m.listBranchesFn != nil {
		return m.listBranchesFn(ctx, token, owner, name)
	}
	return []string{"main"}, nil
}

func (m *mockGithubClient) GetRepo(ctx context.Context, token, owner, name string) (*github.Repo, error) {
	if m.getRepoFn != nil {
		return m.getRepoFn(ctx, token, owner, name)
	}
	return &github.Repo{Owner: owner, Name: name, FullName: owner + "/" + name, DefaultBranch: "main"}, nil
}

func (m *mockGithubClient) CreateHook(ctx context.Context, token, owner, name, hookURL, secret string) (int64, error) {
	if m.createHookFn != nil {
		return m.createHookFn(ctx, token, owner, name, hookURL, secret)
	}
	return 1, nil
}

func (m *mockGithubClient) DeleteHook(ctx context.Context, token, owner, name string, hookID int64) error {
	if m.deleteHookFn != nil {
		return m.deleteHookFn(ctx, token, owner, name, hookID)
	}
	return nil
}

type mockURLValidator struct {
	validateURLFn func(rawURL string) error
}

func (m *mockURLValidator) ValidateURL(rawURL string) error {
	if m.validateURLFn != nil {
		return m.validateURLFn(rawURL)
	}
	return nil
}

type noopCollector struct{}

func (noopCollector) RecordDispatchSuccess(actionType string)                {}
func (noopCollector) RecordDispatchFailure(actionType string, reason string) {}
func (noopCollector) RecordPullRequestsOpened(count int)                     {}
func (noopCollector) RecordForwardStatus(statusCode int)                     {}
func (noopCollector) RecordDispatchLatency(duration time.Duration)           {}
func (noopCollector) RecordHookRegistration()                                {}
func (noopCollector) RecordHookDeregistration()                              {}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testUser() *model.User {
	return &model.User{
		ID:          "user-1",
		GithubID:    100,
		Username:    "alice",
		AccessToken: "token-abc",
	}
}

func newTestService(
	linkRepo *mockLinkRepository,
	repoRepo *mockRepoRepository,
	userRepo *mockUserRepository,
	gh *mockGithubClient,
) *Service {
	if userRepo == nil {
		userRepo = &mockUserRepository{
			findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
				return testUser(), nil
			},
		}
	}
	return NewService(linkRepo, repoRepo, userRepo, gh, &mockURLValidator{}, noopCollector{}, "https://backstroke.us", discardLogger())
}

// --- Create のテスト ---

func TestService_Create_Success(t *testing.T) {
	var created *model.Link
	linkRepo := &mockLinkRepository{
		createFn: func(ctx context.Context, link *model.Link) error {
			created = link
			return nil
		},
	}

	hookCallCount := 0
	var capturedHookURL, capturedSecret string
	gh := &mockGithubClient{
		createHookFn: func(ctx context.Context, token, owner, name, hookURL, secret string) (int64, error) {
			hookCallCount++
			capturedHookURL = hookURL
			capturedSecret = secret
			return 555, nil
		},
	}

	svc := newTestService(linkRepo, &mockRepoRepository{}, nil, gh)

	link, err := svc.Create(context.Background(), "user-1", CreateInput{
		RepoOwner:  "octocat",
		RepoName:   "hello-world",
		ActionType: model.ActionTypeSync,
	})
	if err != nil {
		t.Fatalf("Create がエラーを返した: %v", err)
	}

	if link.ID == "" {
		t.Error("生成されたIDが空であってはならない")
	}
	if link.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", link.UserID, "user-1")
	}
	if !link.Enabled {
		t.Error("作成直後のリンクは有効であること")
	}
	if link.Name != "octocat/hello-world" {
		t.Errorf("デフォルト名 = %q, want %q", link.Name, "octocat/hello-world")
	}
	if link.UpstreamBranch != "main" {
		t.Errorf("デフォルトupstreamブランチ = %q, want %q", link.UpstreamBranch, "main")
	}
	if link.Secret == "" {
		t.Error("共有シークレットが生成されていること")
	}
	if capturedSecret != link.Secret {
		t.Errorf("フック設定のシークレット = %q, want %q", capturedSecret, link.Secret)
	}
	if hookCallCount != 1 {
		t.Errorf("Webhook登録回数 = %d, want 1", hookCallCount)
	}
	if want := "https://backstroke.us/_" + link.ID; capturedHookURL != want {
		t.Errorf("hook URL = %q, want %q", capturedHookURL, want)
	}
	if len(link.HookIDs) != 1 || link.HookIDs[0] != 555 {
		t.Errorf("HookIDs = %v, want [555]", link.HookIDs)
	}
	if created == nil {
		t.Fatal("リポジトリにリンクが永続化されていること")
	}
}

func TestService_Create_ForwardWithoutURL_ValidationFailed(t *testing.T) {
	svc := newTestService(&mockLinkRepository{}, &mockRepoRepository{}, nil, &mockGithubClient{})

	_, err := svc.Create(context.Background(), "user-1", CreateInput{
		RepoOwner:  "octocat",
		RepoName:   "hello-world",
		ActionType: model.ActionTypeForward,
	})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidationFailed {
		t.Errorf("err = %v, want VALIDATION_FAILED", err)
	}
}

func TestService_Create_BlockedForwardURL_ValidationFailed(t *testing.T) {
	svc := NewService(
		&mockLinkRepository{},
		&mockRepoRepository{},
		&mockUserRepository{},
		&mockGithubClient{},
		&mockURLValidator{
			validateURLFn: func(rawURL string) error {
				return errors.New("blocked IP address")
			},
		},
		noopCollector{},
		"https://backstroke.us",
		discardLogger(),
	)

	_, err := svc.Create(context.Background(), "user-1", CreateInput{
		RepoOwner:  "octocat",
		RepoName:   "hello-world",
		ActionType: model.ActionTypeForward,
		ForwardURL: "http://169.254.169.254/latest/meta-data/",
	})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidationFailed {
		t.Errorf("err = %v, want VALIDATION_FAILED", err)
	}
}

func TestService_Create_UnknownAction_ValidationFailed(t *testing.T) {
	svc := newTestService(&mockLinkRepository{}, &mockRepoRepository{}, nil, &mockGithubClient{})

	_, err := svc.Create(context.Background(), "user-1", CreateInput{
		RepoOwner:  "octocat",
		RepoName:   "hello-world",
		ActionType: model.ActionType("explode"),
	})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidationFailed {
		t.Errorf("err = %v, want VALIDATION_FAILED", err)
	}
}

func TestService_Create_RepoNotFound(t *testing.T) {
	gh := &mockGithubClient{
		getRepoFn: func(ctx context.Context, token, owner, name string) (*github.Repo, error) {
			return nil, github.ErrNotFound
		},
	}
	svc := newTestService(&mockLinkRepository{}, &mockRepoRepository{}, nil, gh)

	_, err := svc.Create(context.Background(), "user-1", CreateInput{
		RepoOwner:  "nobody",
		RepoName:   "missing",
		ActionType: model.ActionTypeSync,
	})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeRepoNotFound {
		t.Errorf("err = %v, want REPO_NOT_FOUND", err)
	}
}

func TestService_Create_PersistFailure_RollsBackHook(t *testing.T) {
	linkRepo := &mockLinkRepository{
		createFn: func(ctx context.Context, link *model.Link) error {
			return errors.New("insert failed")
		},
	}

	var deletedHookIDs []int64
	gh := &mockGithubClient{
		createHookFn: func(ctx context.Context, token, owner, name, hookURL, secret string) (int64, error) {
			return 777, nil
		},
		deleteHookFn: func(ctx context.Context, token, owner, name string, hookID int64) error {
			deletedHookIDs = append(deletedHookIDs, hookID)
			return nil
		},
	}

	svc := newTestService(linkRepo, &mockRepoRepository{}, nil, gh)

	_, err := svc.Create(context.Background(), "user-1", CreateInput{
		RepoOwner:  "octocat",
		RepoName:   "hello-world",
		ActionType: model.ActionTypeSync,
	})
	if err == nil {
		t.Fatal("永続化失敗時はエラーが返ること")
	}
	if len(deletedHookIDs) != 1 || deletedHookIDs[0] != 777 {
		t.Errorf("登録済みフックが解除されること: %v", deletedHookIDs)
	}
}

// --- Get のテスト ---

func TestService_Get_OwnedLink(t *testing.T) {
	linkRepo := &mockLinkRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Link, error) {
			return &model.Link{ID: id, UserID: "user-1", Name: "my-link"}, nil
		},
	}
	svc := newTestService(linkRepo, &mockRepoRepository{}, nil, &mockGithubClient{})

	link, err := svc.Get(context.Background(), "user-1", "link-1")
	if err != nil {
		t.Fatalf("Get がエラーを返した: %v", err)
	}
	if link.Name != "my-link" {
		t.Errorf("Name = %q, want %q", link.Name, "my-link")
	}
}

func TestService_Get_OtherUsersLink_NotFound(t *testing.T) {
	linkRepo := &mockLinkRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Link, error) {
			return &model.Link{ID: id, UserID: "user-2"}, nil
		},
	}
	svc := newTestService(linkRepo, &mockRepoRepository{}, nil, &mockGithubClient{})

	_, err := svc.Get(context.Background(), "user-1", "link-1")

	// 他ユーザーのリンクは存在を隠してnot foundとする
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeLinkNotFound {
		t.Errorf("err = %v, want LINK_NOT_FOUND", err)
	}
}

// --- Delete のテスト ---

func TestService_Delete_ByNonOwner_OwnershipViolation(t *testing.T) {
	deleteCalled := false
	linkRepo := &mockLinkRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Link, error) {
			return &model.Link{ID: id, UserID: "user-owner"}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			deleteCalled = true
			return nil
		},
	}
	svc := newTestService(linkRepo, &mockRepoRepository{}, nil, &mockGithubClient{})

	err := svc.Delete(context.Background(), "user-intruder", "link-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeOwnershipViolation {
		t.Errorf("err = %v, want OWNERSHIP_VIOLATION", err)
	}
	if deleteCalled {
		t.Error("所有者以外の削除でリンクが変更されてはならない")
	}
}

func TestService_Delete_MissingLink_Idempotent(t *testing.T) {
	linkRepo := &mockLinkRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Link, error) {
			return nil, nil
		},
	}
	svc := newTestService(linkRepo, &mockRepoRepository{}, nil, &mockGithubClient{})

	if err := svc.Delete(context.Background(), "user-1", "already-gone"); err != nil {
		t.Errorf("存在しないリンクの削除はエラーにならないこと: %v", err)
	}
}

func TestService_Delete_DeregistersHooks(t *testing.T) {
	linkRepo := &mockLinkRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Link, error) {
			return &model.Link{
				ID:           id,
				UserID:       "user-1",
				RepositoryID: "repo-1",
				HookIDs:      []int64{11, 22},
			}, nil
		},
	}
	repoRepo := &mockRepoRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Repository, error) {
			return &model.Repository{ID: id, Provider: "github", Owner: "octocat", Name: "hello-world"}, nil
		},
	}

	var deletedHookIDs []int64
	gh := &mockGithubClient{
		deleteHookFn: func(ctx context.Context, token, owner, name string, hookID int64) error {
			deletedHookIDs = append(deletedHookIDs, hookID)
			return nil
		},
	}

	svc := newTestService(linkRepo, repoRepo, nil, gh)

	if err := svc.Delete(context.Background(), "user-1", "link-1"); err != nil {
		t.Fatalf("Delete がエラーを返した: %v", err)
	}
	if len(deletedHookIDs) != 2 {
		t.Errorf("解除されたフック数 = %d, want 2", len(deletedHookIDs))
	}
}

// --- SetEnabled のテスト ---

func TestService_SetEnabled_Enable_RegistersExactlyOneHook(t *testing.T) {
	stored := &model.Link{
		ID:           "link-1",
		UserID:       "user-1",
		RepositoryID: "repo-1",
		Enabled:      false,
		ActionType:   model.ActionTypeSync,
	}
	linkRepo := &mockLinkRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Link, error) {
			return stored, nil
		},
	}
	repoRepo := &mockRepoRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Repository, error) {
			return &model.Repository{ID: id, Owner: "octocat", Name: "hello-world"}, nil
		},
	}

	hookCallCount := 0
	gh := &mockGithubClient{
		createHookFn: func(ctx context.Context, token, owner, name, hookURL, secret string) (int64, error) {
			hookCallCount++
			return 333, nil
		},
	}

	svc := newTestService(linkRepo, repoRepo, nil, gh)

	link, err := svc.SetEnabled(context.Background(), "user-1", "link-1", true)
	if err != nil {
		t.Fatalf("SetEnabled がエラーを返した: %v", err)
	}
	if !link.Enabled {
		t.Error("Enabled = false, want true")
	}
	if hookCallCount != 1 {
		t.Errorf("Webhook登録回数 = %d, want 1", hookCallCount)
	}
	if len(link.HookIDs) != 1 || link.HookIDs[0] != 333 {
		t.Errorf("HookIDs = %v, want [333]", link.HookIDs)
	}
}

func TestService_SetEnabled_Disable_DeregistersHooks(t *testing.T) {
	stored := &model.Link{
		ID:           "link-1",
		UserID:       "user-1",
		RepositoryID: "repo-1",
		Enabled:      true,
		HookIDs:      []int64{444},
	}
	linkRepo := &mockLinkRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Link, error) {
			return stored, nil
		},
	}
	repoRepo := &mockRepoRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Repository, error) {
			return &model.Repository{ID: id, Owner: "octocat", Name: "hello-world"}, nil
		},
	}

	var deletedHookIDs []int64
	gh := &mockGithubClient{
		deleteHookFn: func(ctx context.Context, token, owner, name string, hookID int64) error {
			deletedHookIDs = append(deletedHookIDs, hookID)
			return nil
		},
	}

	svc := newTestService(linkRepo, repoRepo, nil, gh)

	link, err := svc.SetEnabled(context.Background(), "user-1", "link-1", false)
	if err != nil {
		t.Fatalf("SetEnabled がエラーを返した: %v", err)
	}
	if link.Enabled {
		t.Error("Enabled = true, want false")
	}
	if len(deletedHookIDs) != 1 || deletedHookIDs[0] != 444 {
		t.Errorf("解除されたフック = %v, want [444]", deletedHookIDs)
	}
	if len(link.HookIDs) != 0 {
		t.Errorf("HookIDs = %v, want empty", link.HookIDs)
	}
}

func TestService_SetEnabled_NonOwner_OwnershipViolation(t *testing.T) {
	linkRepo := &mockLinkRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Link, error) {
			return &model.Link{ID: id, UserID: "user-owner"}, nil
		},
	}
	svc := newTestService(linkRepo, &mockRepoRepository{}, nil, &mockGithubClient{})

	_, err := svc.SetEnabled(context.Background(), "user-intruder", "link-1", true)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeOwnershipViolation {
		t.Errorf("err = %v, want OWNERSHIP_VIOLATION", err)
	}
}

// --- Update のテスト ---

func TestService_Update_ActionChange_ReregistersHook(t *testing.T) {
	stored := &model.Link{
		ID:           "link-1",
		UserID:       "user-1",
		RepositoryID: "repo-1",
		Enabled:      true,
		ActionType:   model.ActionTypeSync,
		HookIDs:      []int64{10},
	}
	var updated *model.Link
	linkRepo := &mockLinkRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Link, error) {
			return stored, nil
		},
		updateFn: func(ctx context.Context, link *model.Link) error {
			updated = link
			return nil
		},
	}
	repoRepo := &mockRepoRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Repository, error) {
			return &model.Repository{ID: id, Owner: "octocat", Name: "hello-world"}, nil
		},
	}

	var deletedHookIDs []int64
	createHookCount := 0
	gh := &mockGithubClient{
		deleteHookFn: func(ctx context.Context, token, owner, name string, hookID int64) error {
			deletedHookIDs = append(deletedHookIDs, hookID)
			return nil
		},
		createHookFn: func(ctx context.Context, token, owner, name, hookURL, secret string) (int64, error) {
			createHookCount++
			return 20, nil
		},
	}

	svc := newTestService(linkRepo, repoRepo, nil, gh)

	action := model.ActionTypeForward
	forwardURL := "https://ci.example.org/webhook"
	link, err := svc.Update(context.Background(), "user-1", "link-1", UpdateInput{
		ActionType: &action,
		ForwardURL: &forwardURL,
	})
	if err != nil {
		t.Fatalf("Update がエラーを返した: %v", err)
	}

	if link.ActionType != model.ActionTypeForward {
		t.Errorf("ActionType = %q, want %q", link.ActionType, model.ActionTypeForward)
	}
	if len(deletedHookIDs) != 1 || deletedHookIDs[0] != 10 {
		t.Errorf("旧フックの解除 = %v, want [10]", deletedHookIDs)
	}
	if createHookCount != 1 {
		t.Errorf("新フックの登録回数 = %d, want 1", createHookCount)
	}
	if len(link.HookIDs) != 1 || link.HookIDs[0] != 20 {
		t.Errorf("HookIDs = %v, want [20]", link.HookIDs)
	}
	if updated == nil {
		t.Fatal("更新が永続化されていること")
	}
}

func TestService_Update_NameOnly_NoHookChange(t *testing.T) {
	stored := &model.Link{
		ID:           "link-1",
		UserID:       "user-1",
		RepositoryID: "repo-1",
		Enabled:      true,
		ActionType:   model.ActionTypeSync,
		HookIDs:      []int64{10},
	}
	linkRepo := &mockLinkRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Link, error) {
			return stored, nil
		},
	}

	gh := &mockGithubClient{
		deleteHookFn: func(ctx context.Context, token, owner, name string, hookID int64) error {
			t.Error("名前のみの更新でフックが解除されてはならない")
			return nil
		},
		createHookFn: func(ctx context.Context, token, owner, name, hookURL, secret string) (int64, error) {
			t.Error("名前のみの更新でフックが登録されてはならない")
			return 0, nil
		},
	}

	svc := newTestService(linkRepo, &mockRepoRepository{}, nil, gh)

	name := "renamed"
	link, err := svc.Update(context.Background(), "user-1", "link-1", UpdateInput{Name: &name})
	if err != nil {
		t.Fatalf("Update がエラーを返した: %v", err)
	}
	if link.Name != "renamed" {
		t.Errorf("Name = %q, want %q", link.Name, "renamed")
	}
	if len(link.HookIDs) != 1 || link.HookIDs[0] != 10 {
		t.Errorf("HookIDs = %v, want [10]", link.HookIDs)
	}
}

func TestService_Update_NotFound(t *testing.T) {
	svc := newTestService(&mockLinkRepository{}, &mockRepoRepository{}, nil, &mockGithubClient{})

	_, err := svc.Update(context.Background(), "user-1", "missing", UpdateInput{})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeLinkNotFound {
		t.Errorf("err = %v, want LINK_NOT_FOUND", err)
	}
}

// --- List のテスト ---

func TestService_List_ReturnsOwnedLinks(t *testing.T) {
	now := time.Now()
	linkRepo := &mockLinkRepository{
		listByUserIDFn: func(ctx context.Context, userID string) ([]*model.Link, error) {
			if userID != "user-1" {
				t.Errorf("userID = %q, want %q", userID, "user-1")
			}
			return []*model.Link{
				{ID: "link-1", UserID: userID, CreatedAt: now},
				{ID: "link-2", UserID: userID, CreatedAt: now},
			}, nil
		},
	}
	svc := newTestService(linkRepo, &mockRepoRepository{}, nil, &mockGithubClient{})

	links, err := svc.List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("List がエラーを返した: %v", err)
	}
	if len(links) != 2 {
		t.Errorf("リンク数 = %d, want 2", len(links))
	}
}

// --- CheckRepo のテスト ---

func TestService_CheckRepo_ReturnsBranchesAndUpdatesCache(t *testing.T) {
	var upserted *model.Repository
	repoRepo := &mockRepoRepository{
		upsertFn: func(ctx context.Context, repo *model.Repository) error {
			upserted = repo
			return nil
		},
	}
	gh := &mockGithubClient{
		getRepoFn: func(ctx context.Context, token, owner, name string) (*github.Repo, error) {
			if token != "" {
				t.Errorf("公開操作はトークンなしで照会すること: token = %q", token)
			}
			return &github.Repo{Owner: owner, Name: name, DefaultBranch: "main", Fork: false}, nil
		},
		listBranchesFn: func(ctx context.Context, token, owner, name string) ([]string, error) {
			return []string{"main", "develop"}, nil
		},
	}

	svc := newTestService(&mockLinkRepository{}, repoRepo, nil, gh)

	repo, err := svc.CheckRepo(context.Background(), "github", "octocat", "hello-world")
	if err != nil {
		t.Fatalf("CheckRepo がエラーを返した: %v", err)
	}
	if len(repo.Branches) != 2 {
		t.Errorf("ブランチ数 = %d, want 2", len(repo.Branches))
	}
	if upserted == nil {
		t.Fatal("ブランチキャッシュが更新されること")
	}
	if upserted.DefaultBranch != "main" {
		t.Errorf("DefaultBranch = %q, want %q", upserted.DefaultBranch, "main")
	}
}

func TestService_CheckRepo_UnknownProvider(t *testing.T) {
	svc := newTestService(&mockLinkRepository{}, &mockRepoRepository{}, nil, &mockGithubClient{})

	_, err := svc.CheckRepo(context.Background(), "gitlab", "octocat", "hello-world")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnknownProvider {
		t.Errorf("err = %v, want UNKNOWN_PROVIDER", err)
	}
}

func TestService_CheckRepo_NotFound(t *testing.T) {
	gh := &mockGithubClient{
		getRepoFn: func(ctx context.Context, token, owner, name string) (*github.Repo, error) {
			return nil, github.ErrNotFound
		},
	}
	svc := newTestService(&mockLinkRepository{}, &mockRepoRepository{}, nil, gh)

	_, err := svc.CheckRepo(context.Background(), "github", "nobody", "missing")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeRepoNotFound {
		t.Errorf("err = %v, want REPO_NOT_FOUND", err)
	}
}

// --- インターフェース適合のテスト ---

func TestMockGithubClient_SatisfiesInterface(t *testing.T) {
	var _ GithubClient = (*mockGithubClient)(nil)
}
