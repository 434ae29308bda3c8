// Package compiler turns a workspace's source file into an executable.
//
// The toolchain is an external program configured in config.ToolchainConfig.
// Its argument template is expanded with the workspace paths, it runs to
// completion, and its stderr becomes the diagnostic shown to the client when
// it fails.
package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sakif/compiler-playground/internal/apperror"
	"github.com/sakif/compiler-playground/internal/config"
	"github.com/sakif/compiler-playground/internal/executor/workspace"
)

// Outcome is the result of one compilation. Exactly one of Artifact and
// Diagnostic is meaningful, selected by OK.
type Outcome struct {
	OK         bool
	Artifact   string
	Diagnostic string
	Duration   time.Duration
}

// Invoker runs the configured compiler.
type Invoker struct {
	compiler string
	args     []string
	logger   *slog.Logger
}

func New(tc config.ToolchainConfig, logger *slog.Logger) *Invoker {
	return &Invoker{
		compiler: tc.Compiler,
		args:     tc.Args,
		logger:   logger,
	}
}

// Name returns the configured compiler executable.
func (c *Invoker) Name() string {
	return c.compiler
}

// WriteSource stores the client's code at the workspace source path.
func (c *Invoker) WriteSource(ws *workspace.Workspace, src string) error {
	if err := os.WriteFile(ws.SourcePath, []byte(src), 0o644); err != nil {
		return apperror.IOFailed("Failed to write file", err)
	}
	return nil
}

// Invoke compiles the workspace source into its artifact path.
// It blocks until the compiler exits; cancelling ctx kills the compiler.
func (c *Invoker) Invoke(ctx context.Context, ws *workspace.Workspace) Outcome {
	start := time.Now()

	cmd := exec.CommandContext(ctx, c.compiler, c.expand(ws)...)
	cmd.Dir = ws.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	elapsed := time.Since(start)

	if err == nil {
		c.logger.Debug("compilation succeeded",
			slog.String("workspace_id", ws.ID.String()),
			slog.Duration("duration", elapsed),
		)
		return Outcome{OK: true, Artifact: ws.ArtifactPath, Duration: elapsed}
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		// The compiler never started: missing binary, bad permissions.
		return Outcome{
			Diagnostic: fmt.Sprintf("Failed to execute %s: %v", c.compiler, err),
			Duration:   elapsed,
		}
	}

	diagnostic := stderr.String()
	if strings.TrimSpace(diagnostic) == "" {
		diagnostic = stdout.String()
	}
	if strings.TrimSpace(diagnostic) == "" {
		diagnostic = "compilation failed: " + exitErr.Error()
	}

	c.logger.Debug("compilation failed",
		slog.String("workspace_id", ws.ID.String()),
		slog.Int("exit_code", exitErr.ExitCode()),
		slog.Duration("duration", elapsed),
	)
	return Outcome{Diagnostic: diagnostic, Duration: elapsed}
}

// Compile writes src and compiles it. The error is non-nil only when the
// source could not be written; compiler failures are reported in Outcome.
func (c *Invoker) Compile(ctx context.Context, src string, ws *workspace.Workspace) (Outcome, error) {
	if err := c.WriteSource(ws, src); err != nil {
		return Outcome{}, err
	}
	return c.Invoke(ctx, ws), nil
}

func (c *Invoker) expand(ws *workspace.Workspace) []string {
	r := strings.NewReplacer(
		config.SourcePlaceholder, ws.SourcePath,
		config.ArtifactPlaceholder, ws.ArtifactPath,
	)
	out := make([]string, len(c.args))
	for i, a := range c.args {
		out[i] = r.Replace(a)
	}
	return out
}
