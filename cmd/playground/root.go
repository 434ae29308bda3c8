package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/compiler-playground/internal/config"
	"github.com/sakif/compiler-playground/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "playground",
	Short: "Compile-and-run playground server",
	Long: `playground compiles source code with a configured toolchain (rustc by
default), runs the result and streams its output to the client over
server-sent events or a WebSocket.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json (overrides config)")
	rootCmd.PersistentFlags().String("compiler", "", "Compiler executable (overrides config)")
}

// loadConfig resolves the configuration for cmd: defaults, the --config
// file, environment, then flags. The result is validated.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}

	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if v, _ := cmd.Flags().GetString("compiler"); v != "" {
		cfg.Toolchain.Compiler = v
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Execution.RunTimeout, _ = cmd.Flags().GetDuration("timeout")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}

	// Logs go to stderr so "run" keeps stdout for the program.
	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	return cfg, logger, nil
}
