package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/compiler-playground/internal/apperror"
)

const (
	// MinPasswordLength keeps trivially guessable passwords out.
	MinPasswordLength = 8
	// MaxPasswordLength is bcrypt's input limit. Longer input would be
	// silently truncated, so it is rejected instead.
	MaxPasswordLength = 72

	defaultCost = 12
)

// PasswordService hashes and checks passwords with bcrypt. The cost is a
// field so tests can use bcrypt.MinCost.
type PasswordService struct {
	cost int
}

func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceWithCost is for tests in other packages; production
// code uses NewPasswordService.
func NewPasswordServiceWithCost(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Validate checks the length rules without hashing.
func (p *PasswordService) Validate(plaintext string) error {
	switch {
	case len(plaintext) < MinPasswordLength:
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	case len(plaintext) > MaxPasswordLength:
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", MaxPasswordLength))
	}
	return nil
}

// Hash returns the bcrypt hash of plaintext. The salt and cost are encoded
// in the result, so it is the only thing that needs storing.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if err := p.Validate(plaintext); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash. A mismatch, or an empty
// hash (GitHub-only account), is ErrUnauthorized.
func (p *PasswordService) Verify(hash, plaintext string) error {
	if hash == "" {
		return apperror.Unauthorized("invalid username or password")
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return apperror.Unauthorized("invalid username or password")
	}
	if err != nil {
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
