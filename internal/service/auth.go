package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/compiler-playground/internal/apperror"
	"github.com/sakif/compiler-playground/internal/auth"
	"github.com/sakif/compiler-playground/internal/model"
	"github.com/sakif/compiler-playground/internal/repository"
)

const MaxUsernameLength = 64

// AuthService registers accounts and turns credentials into tokens.
//
//	AuthHandler -> AuthService -> UserRepository
//	                           -> TokenService, PasswordService
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// Session is a user together with a freshly issued token.
type Session struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
}

// Register creates a password account. It does not log the user in.
func (s *AuthService) Register(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	if len(username) > MaxUsernameLength {
		return nil, apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d characters or less", MaxUsernameLength))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{Username: username, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("registering %s: %w", username, err)
	}

	s.logger.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Login checks username and password. Unknown users and wrong passwords
// produce the same ErrUnauthorized so usernames cannot be probed.
func (s *AuthService) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Unauthorized("invalid username or password")
	}
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", username, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.logger.Debug("login rejected", slog.String("username", user.Username))
		return nil, err
	}
	return s.issue(user)
}

// LoginGitHub links or creates the account for a GitHub identity and logs
// it in.
func (s *AuthService) LoginGitHub(ctx context.Context, gh *auth.GitHubUser) (*Session, error) {
	if gh == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user := &model.User{
		GitHubID:  gh.ID,
		Username:  gh.Login,
		AvatarURL: gh.AvatarURL,
	}
	if err := s.users.UpsertGitHubUser(ctx, user); err != nil {
		return nil, fmt.Errorf("upserting GitHub user %d: %w", gh.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return s.issue(user)
}

// Me returns the account behind an authenticated request.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("valid authentication required")
	}
	return s.users.GetUserByID(ctx, userID)
}

func (s *AuthService) issue(user *model.User) (*Session, error) {
	token, expires, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issuing token for %s: %w", user.ID, err)
	}
	return &Session{User: user, Token: token, ExpiresAt: expires}, nil
}
