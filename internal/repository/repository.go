// Package repository declares the storage interfaces used by the services.
// internal/repository/sqlite implements them.
package repository

import (
	"context"

	"github.com/sakif/compiler-playground/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// SnippetRepository stores snippets. Every method that takes a userID
// only sees that user's rows; another user's snippet is reported as not found.
type SnippetRepository interface {
	Create(ctx context.Context, snippet *model.Snippet) error
	GetByID(ctx context.Context, userID, id string) (*model.Snippet, error)
	List(ctx context.Context, userID string, opts ListOptions) ([]model.Snippet, error)
	Update(ctx context.Context, snippet *model.Snippet) error
	Delete(ctx context.Context, userID, id string) error
}

type UserRepository interface {
	// CreateUser inserts a password account. A taken username is an
	// apperror.ErrConflict.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	// UpsertGitHubUser creates or refreshes the account linked to user.GitHubID.
	UpsertGitHubUser(ctx context.Context, user *model.User) error
}
