// Package process starts a compiled program and exposes its standard streams.
//
// PIPES:
// The three streams are plain OS pipes created with os.Pipe rather than
// cmd.StdinPipe/StdoutPipe. exec.Cmd.Wait closes the pipes it created itself,
// which would race with readers still draining output after the child exits.
// With our own pipes, Wait only reaps the child and the parent ends stay open
// until Close.
//
//	parent                     child
//	Stdin  (write end)   --->  fd 0
//	Stdout (read end)    <---  fd 1
//	Stderr (read end)    <---  fd 2
package process

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/sakif/compiler-playground/internal/apperror"
)

// Handle is a running (or finished) child process.
type Handle struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	cmd    *exec.Cmd
	done   chan struct{}
	logger *slog.Logger

	// Written by the reaper before done is closed.
	exitCode int
	waitErr  error

	stdinOnce  sync.Once
	outputOnce sync.Once
}

// Spawn starts the program at path with no arguments.
func Spawn(ctx context.Context, path string, logger *slog.Logger) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperror.SpawnFailed(err)
	}

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, apperror.SpawnFailed(err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW)
		return nil, apperror.SpawnFailed(err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW)
		return nil, apperror.SpawnFailed(err)
	}

	cmd := exec.Command(path)
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW, stderrR, stderrW)
		return nil, apperror.SpawnFailed(err)
	}

	// The child holds its own copies now. Keeping the write ends open in the
	// parent would prevent EOF on stdout/stderr.
	closeAll(stdinR, stdoutW, stderrW)

	h := &Handle{
		Stdin:    stdinW,
		Stdout:   stdoutR,
		Stderr:   stderrR,
		cmd:      cmd,
		done:     make(chan struct{}),
		logger:   logger,
		exitCode: -1,
	}
	go h.reap()

	logger.Debug("process spawned", slog.Int("pid", cmd.Process.Pid), slog.String("path", path))
	return h, nil
}

func (h *Handle) reap() {
	err := h.cmd.Wait()
	if h.cmd.ProcessState != nil {
		h.exitCode = h.cmd.ProcessState.ExitCode()
	}
	h.waitErr = err
	close(h.done)

	h.logger.Debug("process exited",
		slog.Int("pid", h.PID()),
		slog.Int("exit_code", h.exitCode),
	)
}

// PID of the child.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Done is closed once the child has exited and been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Exited reports whether Done is closed.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ExitCode is valid after Done is closed. It is -1 when the child was
// terminated by a signal.
func (h *Handle) ExitCode() int {
	<-h.done
	return h.exitCode
}

// Wait blocks until the child exits or ctx is done.
func (h *Handle) Wait(ctx context.Context) (int, error) {
	select {
	case <-h.done:
		return h.exitCode, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Kill terminates the child. Killing a process that already exited is a no-op.
func (h *Handle) Kill() error {
	if h.Exited() {
		return nil
	}
	err := h.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// CloseStdin signals EOF to the child.
func (h *Handle) CloseStdin() {
	h.stdinOnce.Do(func() {
		_ = h.Stdin.Close()
	})
}

// CloseOutput closes the stdout and stderr read ends. Pending reads return
// os.ErrClosed.
func (h *Handle) CloseOutput() {
	h.outputOnce.Do(func() {
		_ = h.Stdout.Close()
		_ = h.Stderr.Close()
	})
}

// Close releases every parent-side pipe end. It does not kill the child.
func (h *Handle) Close() {
	h.CloseStdin()
	h.CloseOutput()
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
