// Package auth issues and checks the credentials of playground accounts.
//
// FLOWS:
//
//	POST /auth/register   username + password -> bcrypt hash stored
//	POST /auth/login      username + password -> JWT {token}
//	GET  /auth/github/*   GitHub OAuth        -> JWT {token} (+ cookie)
//
// Protected routes accept the JWT either as "Authorization: Bearer <jwt>"
// (API clients, the editor) or as the HttpOnly "token" cookie set after a
// browser GitHub login.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/compiler-playground/internal/apperror"
)

const (
	issuer          = "compiler-playground"
	DefaultTokenTTL = 24 * time.Hour
	minSecretLength = 16
)

// TokenService signs and verifies HS256 access tokens. The subject claim
// is the internal user ID.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", minSecretLength)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL is how long issued tokens stay valid.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue returns a signed token for userID and its expiry time.
func (s *TokenService) Issue(userID string) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, expires, nil
}

// Validate returns the user ID carried by a valid token. Every failure is
// an apperror.ErrUnauthorized; the cause is kept for logging.
//
// Restricting methods to HS256 rejects "alg: none" and RS/HS confusion.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenStr, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", &apperror.AppError{Err: apperror.ErrUnauthorized, Message: "token expired", Cause: err}
		}
		return "", &apperror.AppError{Err: apperror.ErrUnauthorized, Message: "invalid token", Cause: err}
	}
	if claims.Subject == "" {
		return "", apperror.Unauthorized("token has no subject")
	}
	return claims.Subject, nil
}
