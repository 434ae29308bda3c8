// Package config loads playground configuration.
//
// LAYERING:
// Values are resolved in this order, later layers winning:
//
//  1. Default()            built-in values (rustc, ./temp, port 3001)
//  2. YAML file            optional, passed with --config
//  3. Environment vars     PORT, DB_PATH, JWT_SECRET, ... (see applyEnv)
//  4. CLI flags            applied by cmd/playground after Load returns
//
// The toolchain section is the only place that knows which compiler is used.
// Nothing in internal/executor hard-codes "rustc" or ".rs".
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Placeholders substituted into Toolchain.Args by the compiler invoker.
const (
	SourcePlaceholder   = "{source}"
	ArtifactPlaceholder = "{artifact}"
)

// Config is the root configuration object.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Toolchain ToolchainConfig `yaml:"toolchain"`
	Execution ExecutionConfig `yaml:"execution"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ToolchainConfig describes the external compiler.
type ToolchainConfig struct {
	// Compiler is the executable name or path, e.g. "rustc".
	Compiler string `yaml:"compiler"`
	// Args is the argument template. {source} and {artifact} are replaced
	// with the workspace paths.
	Args []string `yaml:"args"`
	// SourceExt is appended to the source file name, e.g. ".rs".
	SourceExt string `yaml:"source_ext"`
	// ArtifactExt is appended to the compiled binary name ("" or ".exe").
	ArtifactExt string `yaml:"artifact_ext"`
	// SideProducts are suffixes of extra files the compiler leaves next to
	// the artifact (".pdb" debug symbols on Windows). Teardown removes them.
	SideProducts []string `yaml:"side_products"`
	// ScratchDir holds every workspace.
	ScratchDir string `yaml:"scratch_dir"`
}

// ExecutionConfig tunes the running phase.
type ExecutionConfig struct {
	ChunkSize     int           `yaml:"chunk_size"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
	DrainTimeout  time.Duration `yaml:"drain_timeout"`
	ReapGrace     time.Duration `yaml:"reap_grace"`
	RunTimeout    time.Duration `yaml:"run_timeout"` // 0 disables
	InboundBuffer int           `yaml:"inbound_buffer"`
	MaxCodeBytes  int           `yaml:"max_code_bytes"`
}

type AuthConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	TokenTTL           time.Duration `yaml:"token_ttl"`
	GitHubClientID     string        `yaml:"github_client_id"`
	GitHubClientSecret string        `yaml:"github_client_secret"`
	GitHubCallbackURL  string        `yaml:"github_callback_url"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// TrackerConfig selects the live-session registry. An empty RedisAddr keeps
// the registry in memory.
type TrackerConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Prefix        string        `yaml:"prefix"`
	TTL           time.Duration `yaml:"ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Default returns the configuration used when nothing else is provided.
func Default() Config {
	tc := ToolchainConfig{
		Compiler:   "rustc",
		Args:       []string{SourcePlaceholder, "-o", ArtifactPlaceholder},
		SourceExt:  ".rs",
		ScratchDir: "temp",
	}
	if runtime.GOOS == "windows" {
		tc.ArtifactExt = ".exe"
		tc.SideProducts = []string{".pdb"}
	}

	return Config{
		Server: ServerConfig{
			Port:            3001,
			ShutdownTimeout: 30 * time.Second,
		},
		Toolchain: tc,
		Execution: ExecutionConfig{
			ChunkSize:     1024,
			Heartbeat:     15 * time.Second,
			DrainTimeout:  2 * time.Second,
			ReapGrace:     time.Second,
			InboundBuffer: 64,
			MaxCodeBytes:  100000,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Database: DatabaseConfig{
			Path: "data/playground.db",
		},
		Tracker: TrackerConfig{
			Prefix: "playground:session:",
			TTL:    time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// applyEnv overlays environment variables. Unset variables leave the value alone.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v) // Atoi = ASCII to Integer
		if err != nil {
			return fmt.Errorf("config: invalid PORT value %q", v)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	if v := os.Getenv("PLAYGROUND_COMPILER"); v != "" {
		cfg.Toolchain.Compiler = v
	}
	if v := os.Getenv("PLAYGROUND_SCRATCH_DIR"); v != "" {
		cfg.Toolchain.ScratchDir = v
	}
	if v := os.Getenv("PLAYGROUND_RUN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid PLAYGROUND_RUN_TIMEOUT value %q", v)
		}
		cfg.Execution.RunTimeout = d
	}

	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("GITHUB_CLIENT_ID"); v != "" {
		cfg.Auth.GitHubClientID = v
	}
	if v := os.Getenv("GITHUB_CLIENT_SECRET"); v != "" {
		cfg.Auth.GitHubClientSecret = v
	}
	if v := os.Getenv("GITHUB_CALLBACK_URL"); v != "" {
		cfg.Auth.GitHubCallbackURL = v
	}

	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Tracker.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Tracker.RedisPassword = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	return nil
}

// Validate reports configuration that would make every session fail.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if strings.TrimSpace(c.Toolchain.Compiler) == "" {
		errs = append(errs, errors.New("toolchain.compiler is required"))
	}
	if !contains(c.Toolchain.Args, SourcePlaceholder) {
		errs = append(errs, fmt.Errorf("toolchain.args must reference %s", SourcePlaceholder))
	}
	if !contains(c.Toolchain.Args, ArtifactPlaceholder) {
		errs = append(errs, fmt.Errorf("toolchain.args must reference %s", ArtifactPlaceholder))
	}
	if c.Toolchain.ScratchDir == "" {
		errs = append(errs, errors.New("toolchain.scratch_dir is required"))
	}
	if c.Execution.ChunkSize < 1 {
		errs = append(errs, errors.New("execution.chunk_size must be at least 1"))
	}
	if c.Execution.Heartbeat <= 0 {
		errs = append(errs, errors.New("execution.heartbeat must be positive"))
	}
	if c.Execution.DrainTimeout <= 0 {
		errs = append(errs, errors.New("execution.drain_timeout must be positive"))
	}
	if c.Execution.ReapGrace < 0 {
		errs = append(errs, errors.New("execution.reap_grace must not be negative"))
	}
	if c.Execution.InboundBuffer < 1 {
		errs = append(errs, errors.New("execution.inbound_buffer must be at least 1"))
	}
	if c.Execution.RunTimeout < 0 {
		errs = append(errs, errors.New("execution.run_timeout must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func contains(args []string, placeholder string) bool {
	for _, a := range args {
		if strings.Contains(a, placeholder) {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
