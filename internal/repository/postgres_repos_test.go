package repository

import (
	"testing"
)

// PostgresUserRepoはUserRepositoryインターフェースを満たすことを検証
func TestPostgresUserRepo_ImplementsInterface(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
}

// PostgresSessionRepoはSessionRepositoryインターフェースを満たすことを検証
func TestPostgresSessionRepo_ImplementsInterface(t *testing.T) {
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
}

// PostgresLinkRepoはLinkRepositoryインターフェースを満たすことを検証
func TestPostgresLinkRepo_ImplementsInterface(t *testing.T) {
	var _ LinkRepository = (*PostgresLinkRepo)(nil)
}

// PostgresRepoRepoはRepoRepositoryインターフェースを満たすことを検証
func TestPostgresRepoRepo_ImplementsInterface(t *testing.T) {
	var _ RepoRepository = (*PostgresRepoRepo)(nil)
}

// NewPostgresUserRepoが正しく初期化されることを検証
func TestNewPostgresUserRepo_Initializes(t *testing.T) {
	repo := NewPostgresUserRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// NewPostgresSessionRepoが正しく初期化されることを検証
func TestNewPostgresSessionRepo_Initializes(t *testing.T) {
	repo := NewPostgresSessionRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// NewPostgresLinkRepoが正しく初期化されることを検証
func TestNewPostgresLinkRepo_Initializes(t *testing.T) {
	repo := NewPostgresLinkRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// NewPostgresRepoRepoが正しく初期化されることを検証
func TestNewPostgresRepoRepo_Initializes(t *testing.T) {
	repo := NewPostgresRepoRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}
