package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sakif/compiler-playground/internal/apperror"
)

// CookieName is the cookie holding the JWT after a browser login.
const CookieName = "token"

// contextKey is unexported so no other package can read or overwrite the value.
type contextKey struct{}

// RequireAuth rejects requests without a valid token with 401 and stores
// the user ID in the request context otherwise.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := TokenFromRequest(r)
			if raw == "" {
				writeUnauthorized(w, "valid authentication required")
				return
			}
			userID, err := tokens.Validate(raw)
			if err != nil {
				writeUnauthorized(w, apperror.Message(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// TokenFromRequest returns the bearer token, falling back to the cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// WithUserID returns a context carrying userID. Used by RequireAuth and tests.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserIDFromContext returns the authenticated user, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// writeUnauthorized uses the same body shape as the handler package's errors.
func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="playground"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}
