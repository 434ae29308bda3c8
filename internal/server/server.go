// Package server is the composition root of the HTTP service: it builds
// the router, mounts every handler and runs the listener with graceful
// shutdown.
//
// ROUTES:
//
//	GET    /                       banner
//	GET    /healthz                liveness + dependency checks
//	GET    /metrics                Prometheus
//	POST   /compile                run code, output as server-sent events
//	GET    /ws                     run code interactively over a WebSocket
//	POST   /auth/register          \
//	POST   /auth/login              |
//	POST   /auth/logout             | only with a JWT secret
//	GET    /auth/github/login       | only with GitHub credentials
//	GET    /auth/github/callback    |
//	GET    /api/me                  | RequireAuth
//	GET    /api/sessions            | RequireAuth
//	*      /snippets[/{id}]        /  RequireAuth
//
// MIDDLEWARE ORDER:
// RequestID and RealIP run first so the logger sees them; Recoverer sits
// inside the logger so a panic is still logged as a 500.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/compiler-playground/internal/auth"
	"github.com/sakif/compiler-playground/internal/executor"
	"github.com/sakif/compiler-playground/internal/handler"
	"github.com/sakif/compiler-playground/internal/metrics"
	"github.com/sakif/compiler-playground/internal/middleware"
	"github.com/sakif/compiler-playground/internal/repository/sqlite"
	"github.com/sakif/compiler-playground/internal/service"
	"github.com/sakif/compiler-playground/internal/tracker"
)

type Config struct {
	Port            int
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
	// SecureCookies marks auth cookies HTTPS-only.
	SecureCookies bool
	Compiler      string
	Execute       handler.ExecuteOptions
}

// Deps are the long-lived collaborators built by cmd/playground.
type Deps struct {
	Executor executor.Executor
	Tracker  tracker.Tracker
	Metrics  *metrics.Metrics
	DB       *sqlite.DB

	// Tokens is nil when no JWT secret is configured; account and snippet
	// routes are then not mounted.
	Tokens    *auth.TokenService
	Passwords *auth.PasswordService
	// GitHub is nil when OAuth credentials are missing.
	GitHub *auth.GitHubProvider
}

type Server struct {
	router *chi.Mux
	config Config
	deps   Deps
	logger *slog.Logger
}

func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Executor == nil {
		return nil, errors.New("server: an executor is required")
	}
	if deps.Tracker == nil {
		deps.Tracker = tracker.NewMemory()
	}
	if deps.Passwords == nil {
		deps.Passwords = auth.NewPasswordService()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRoutes()
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics(s.deps.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(s.config.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	checks := map[string]handler.Pinger{}
	if s.deps.DB != nil {
		checks["database"] = s.deps.DB
	}
	playground := handler.NewPlaygroundHandler(s.config.Compiler, s.deps.Tracker, checks, s.logger)
	r.Get("/", playground.HandleIndex)
	r.Get("/healthz", playground.HandleHealth)
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Handler())
	}

	exec := handler.NewExecuteHandler(s.deps.Executor, s.config.Execute, s.logger)
	r.Post("/compile", exec.HandleCompile)
	r.Get("/ws", exec.HandleSocket)

	if s.deps.Tokens == nil || s.deps.DB == nil {
		s.logger.Warn("authentication disabled: account and snippet routes are not mounted")
		return
	}

	authSvc := service.NewAuthService(s.deps.DB, s.deps.Tokens, s.deps.Passwords, s.logger)
	authHandler := handler.NewAuthHandler(authSvc, s.deps.GitHub, s.config.SecureCookies, s.logger)
	snippets := handler.NewSnippetHandler(service.NewSnippetService(s.deps.DB, s.logger), s.logger)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		if s.deps.GitHub != nil {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(s.deps.Tokens))

		r.Get("/api/me", authHandler.HandleMe)
		r.Get("/api/sessions", playground.HandleSessions)

		r.Route("/snippets", func(r chi.Router) {
			r.Get("/", snippets.HandleList)
			r.Post("/", snippets.HandleCreate)
			r.Get("/{id}", snippets.HandleGet)
			r.Put("/{id}", snippets.HandleReplace)
			r.Patch("/{id}", snippets.HandlePatch)
			r.Delete("/{id}", snippets.HandleDelete)
		})
	})
}

// Start serves until ctx is cancelled or SIGINT/SIGTERM arrives, then
// drains in-flight requests for up to ShutdownTimeout.
//
// WriteTimeout is left at zero: /compile and /ws stay open for as long as
// the program runs, and the execution config bounds that instead.
//
// Request contexts derive from sessionCtx, cancelled once Shutdown
// returns. Shutdown does not track hijacked WebSocket connections; their
// sessions end on that cancellation.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionCtx, cancelSessions := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelSessions()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return sessionCtx },
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("compiler", s.config.Compiler),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown requested", slog.String("cause", context.Cause(ctx).Error()))

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	}
}

func corsOrigins(allowed []string) []string {
	if len(allowed) == 0 {
		return []string{"*"}
	}
	return allowed
}
