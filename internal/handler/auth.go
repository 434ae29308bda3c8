package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/compiler-playground/internal/auth"
	"github.com/sakif/compiler-playground/internal/service"
)

const stateCookie = "oauth_state"

// AuthHandler serves registration, password login and the GitHub OAuth
// flow. github is nil when no OAuth credentials are configured; the
// server then does not mount the /auth/github routes.
type AuthHandler struct {
	auth   *service.AuthService
	github *auth.GitHubProvider
	// secure marks cookies HTTPS-only. Off for local development.
	secure bool
	logger *slog.Logger
}

func NewAuthHandler(svc *service.AuthService, github *auth.GitHubProvider, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, github: github, secure: secureCookies, logger: logger}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HandleRegister creates a password account.
//
// HTTP: POST /auth/register {"username": "...", "password": "..."}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// HandleLogin exchanges a username and password for a token.
//
// HTTP: POST /auth/login {"username": "...", "password": "..."}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: session.Token, ExpiresAt: session.ExpiresAt})
}

// HandleGitHubLogin redirects to GitHub's consent page. A random state is
// stored in a short-lived cookie and checked on the callback.
//
// HTTP: GET /auth/github/login
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/github",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback finishes the OAuth flow. The token is returned in
// the body for API clients and also set as the "token" cookie for browsers.
//
// HTTP: GET /auth/github/callback?code=...&state=...
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || q.Get("state") != c.Value {
		h.logger.Warn("github callback: state mismatch")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "invalid OAuth state"})
		return
	}
	// Single use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/auth/github", MaxAge: -1})

	if denied := q.Get("error"); denied != "" {
		h.logger.Info("github callback: authorization denied", slog.String("reason", denied))
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "GitHub authorization was denied"})
		return
	}
	code := q.Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "missing OAuth code"})
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "upstream_error", Message: "GitHub authentication failed"})
		return
	}

	session, err := h.auth.LoginGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("github callback: login failed",
			slog.Int64("github_id", ghUser.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, session.Token, time.Until(session.ExpiresAt))
	writeJSON(w, http.StatusOK, tokenResponse{Token: session.Token, ExpiresAt: session.ExpiresAt})
}

// HandleLogout clears the token cookie. Bearer tokens stay valid until
// they expire; there is no server-side revocation.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.setTokenCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe returns the authenticated user.
//
// HTTP: GET /api/me (RequireAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	user, err := h.auth.Me(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, value string, ttl time.Duration) {
	maxAge := int(ttl.Seconds())
	if ttl < 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
