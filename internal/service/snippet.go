// Package service holds the account and snippet rules that sit between the
// HTTP handlers and the repositories.
//
// LAYERS:
//
//	handler     parses requests, writes responses, maps error kinds to status codes
//	service     validates input, enforces ownership, orchestrates
//	repository  reads and writes rows
//
// Services take repository interfaces, never *sqlite.DB, so their tests run
// against in-memory fakes. They return apperror kinds and know nothing
// about HTTP.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/compiler-playground/internal/apperror"
	"github.com/sakif/compiler-playground/internal/model"
	"github.com/sakif/compiler-playground/internal/repository"
)

const (
	MaxTitleLength   = 100
	MaxCodeLength    = 100000
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// SnippetService manages a user's saved snippets. Every method takes the
// owner's user ID; a snippet owned by someone else behaves as if it did
// not exist.
type SnippetService struct {
	repo   repository.SnippetRepository
	logger *slog.Logger
}

func NewSnippetService(repo repository.SnippetRepository, logger *slog.Logger) *SnippetService {
	return &SnippetService{repo: repo, logger: logger}
}

func (s *SnippetService) Create(ctx context.Context, userID, title, code string) (*model.Snippet, error) {
	title = strings.TrimSpace(title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if err := validateCode(code); err != nil {
		return nil, err
	}

	snippet := &model.Snippet{UserID: userID, Title: title, Code: code}
	if err := s.repo.Create(ctx, snippet); err != nil {
		s.logger.Error("failed to create snippet",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	s.logger.Info("snippet created",
		slog.String("id", snippet.ID),
		slog.String("user_id", userID),
	)
	return snippet, nil
}

func (s *SnippetService) Get(ctx context.Context, userID, id string) (*model.Snippet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "snippet ID is required")
	}
	// NotFound comes back as a proper apperror already.
	return s.repo.GetByID(ctx, userID, id)
}

// List returns the user's snippets, most recently updated first. limit is
// clamped to [1, MaxListLimit] with DefaultListLimit for zero.
func (s *SnippetService) List(ctx context.Context, userID string, limit, offset int) ([]model.Snippet, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	snippets, err := s.repo.List(ctx, userID, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list snippets",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing snippets: %w", err)
	}
	return snippets, nil
}

// Replace overwrites title and code (PUT semantics).
func (s *SnippetService) Replace(ctx context.Context, userID, id, title, code string) (*model.Snippet, error) {
	return s.Patch(ctx, userID, id, model.SnippetPatch{Title: &title, Code: &code})
}

// Patch applies the non-nil fields of patch.
func (s *SnippetService) Patch(ctx context.Context, userID, id string, patch model.SnippetPatch) (*model.Snippet, error) {
	snippet, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if err := validateTitle(title); err != nil {
			return nil, err
		}
		snippet.Title = title
	}
	if patch.Code != nil {
		if err := validateCode(*patch.Code); err != nil {
			return nil, err
		}
		snippet.Code = *patch.Code
	}

	if err := s.repo.Update(ctx, snippet); err != nil {
		s.logger.Error("failed to update snippet",
			slog.String("id", snippet.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating snippet: %w", err)
	}

	s.logger.Info("snippet updated", slog.String("id", snippet.ID))
	return snippet, nil
}

func (s *SnippetService) Delete(ctx context.Context, userID, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "snippet ID is required")
	}
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.logger.Info("snippet deleted", slog.String("id", id), slog.String("user_id", userID))
	return nil
}

func validateTitle(title string) error {
	if title == "" {
		return apperror.ValidationFailed("title", "title is required")
	}
	if len(title) > MaxTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	return nil
}

func validateCode(code string) error {
	if len(code) > MaxCodeLength {
		return apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d bytes or less", MaxCodeLength))
	}
	return nil
}
