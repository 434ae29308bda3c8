package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/sakif/compiler-playground/internal/auth"
	"github.com/sakif/compiler-playground/internal/config"
	"github.com/sakif/compiler-playground/internal/executor"
	"github.com/sakif/compiler-playground/internal/handler"
	"github.com/sakif/compiler-playground/internal/metrics"
	sqliteRepo "github.com/sakif/compiler-playground/internal/repository/sqlite"
	"github.com/sakif/compiler-playground/internal/server"
	"github.com/sakif/compiler-playground/internal/tracker"
	"github.com/sakif/compiler-playground/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the playground HTTP server: POST /compile (server-sent events),
GET /ws (interactive WebSocket), accounts, snippets and /metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().Duration("timeout", 0, "Kill programs running longer than this (0 = no limit)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	// === STORAGE ===
	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	// === OBSERVABILITY ===
	m := metrics.New()
	sessions, closeTracker := buildTracker(ctx, cfg.Tracker, logger)
	defer closeTracker()

	// === EXECUTION ===
	ctrl := executor.NewController(cfg.Toolchain, cfg.Execution, logger,
		executor.WithTracker(sessions),
		executor.WithMetrics(m),
	)

	// === AUTH ===
	var tokens *auth.TokenService
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set: authentication is disabled")
	} else if tokens, err = auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL); err != nil {
		return err
	}

	var github *auth.GitHubProvider
	if cfg.Auth.GitHubClientID != "" && cfg.Auth.GitHubClientSecret != "" {
		callback := cfg.Auth.GitHubCallbackURL
		if callback == "" {
			callback = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Server.Port)
		}
		github = auth.NewGitHubProvider(cfg.Auth.GitHubClientID, cfg.Auth.GitHubClientSecret, callback)
	}

	wsOpts := transport.DefaultWebSocketOptions()
	wsOpts.InboundBuffer = cfg.Execution.InboundBuffer

	srv, err := server.New(server.Config{
		Port:            cfg.Server.Port,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		SecureCookies:   strings.HasPrefix(cfg.Auth.GitHubCallbackURL, "https://"),
		Compiler:        cfg.Toolchain.Compiler,
		Execute: handler.ExecuteOptions{
			MaxCodeBytes:   cfg.Execution.MaxCodeBytes,
			Heartbeat:      cfg.Execution.Heartbeat,
			WebSocket:      wsOpts,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		},
	}, server.Deps{
		Executor:  ctrl,
		Tracker:   sessions,
		Metrics:   m,
		DB:        db,
		Tokens:    tokens,
		Passwords: auth.NewPasswordService(),
		GitHub:    github,
	}, logger)
	if err != nil {
		return err
	}

	return srv.Start(ctx)
}

// buildTracker returns the Redis tracker when an address is configured and
// reachable, else the in-memory one. The tracker is observational, so an
// unreachable Redis is a warning, not a startup failure.
func buildTracker(ctx context.Context, tc config.TrackerConfig, logger *slog.Logger) (tracker.Tracker, func()) {
	if tc.RedisAddr == "" {
		return tracker.NewMemory(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     tc.RedisAddr,
		Password: tc.RedisPassword,
		DB:       tc.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, tracking sessions in memory",
			slog.String("addr", tc.RedisAddr),
			slog.String("error", err.Error()),
		)
		client.Close()
		return tracker.NewMemory(), func() {}
	}

	logger.Info("tracking sessions in redis", slog.String("addr", tc.RedisAddr))
	return tracker.NewRedis(client, tc.Prefix, tc.TTL), func() { client.Close() }
}
