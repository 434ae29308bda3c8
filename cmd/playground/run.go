package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/compiler-playground/internal/executor"
	"github.com/sakif/compiler-playground/internal/transport"
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Compile and run one source file in this terminal",
	Long: `Compiles <file> with the configured toolchain and runs it with this
terminal attached: program output goes to stdout, each line typed on stdin
is sent to the program. The command exits with the program's exit status.`,
	Args: cobra.ExactArgs(1),
	RunE: runFile,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Duration("timeout", 0, "Kill the program after this long (0 = no limit)")
}

func runFile(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	src, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl := executor.NewController(cfg.Toolchain, cfg.Execution, logger)
	term := transport.NewStdio(os.Stdin, os.Stdout)

	report := ctrl.Interact(ctx, executor.ExecutionRequest{Code: string(src)}, term)

	switch {
	case report.State == executor.StateCompleted && report.ExitCode == 0:
		return nil
	case report.State == executor.StateCompleted && report.ExitCode > 0:
		return &exitError{code: report.ExitCode}
	case report.State == executor.StateInterrupted && ctx.Err() != nil:
		// 128 + SIGINT, as a shell would report it.
		return &exitError{code: 130}
	default:
		// Diagnostics were already written to the terminal.
		fmt.Fprintln(os.Stdout)
		return &exitError{code: 1}
	}
}
