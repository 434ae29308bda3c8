package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/compiler-playground/internal/apperror"
	"github.com/sakif/compiler-playground/internal/executor/process"
	"github.com/sakif/compiler-playground/internal/transport"
)

// session is the per-request state owned by one Controller.run call.
type session struct {
	id        string
	transport string
	state     State
	started   time.Time
	pid       int
	exitCode  int

	ctrl   *Controller
	logger *slog.Logger
}

// enter records a transition. Tracker writes outlive a cancelled request
// context so the registry does not keep stale states.
func (s *session) enter(ctx context.Context, next State) {
	s.logger.Debug("session transition",
		slog.String("from", string(s.state)),
		slog.String("to", string(next)),
	)
	s.state = next

	if err := s.ctrl.tracker.Update(context.WithoutCancel(ctx), s.id, string(next), s.pid); err != nil {
		s.logger.Warn("tracking session", slog.String("error", err.Error()))
	}
}

// fail moves to a terminal pre-run state and sends the one diagnostic the
// client gets for it.
func (s *session) fail(ctx context.Context, out transport.Sender, state State, err error) error {
	s.enter(ctx, state)
	if sendErr := out.Send(ctx, apperror.Message(err)); sendErr != nil {
		s.logger.Debug("diagnostic not delivered", slog.String("error", sendErr.Error()))
	}
	return err
}

func (s *session) kill(h *process.Handle, reason string) {
	if err := h.Kill(); err != nil {
		s.logger.Warn("killing process",
			slog.Int("pid", s.pid),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Debug("process killed", slog.Int("pid", s.pid), slog.String("reason", reason))
}

func (s *session) close(ctx context.Context, err error) Report {
	r := Report{
		ID:        s.id,
		Transport: s.transport,
		State:     s.state,
		Err:       err,
		ExitCode:  s.exitCode,
		Duration:  time.Since(s.started),
	}

	if err := s.ctrl.tracker.End(context.WithoutCancel(ctx), s.id); err != nil {
		s.logger.Warn("untracking session", slog.String("error", err.Error()))
	}
	s.ctrl.metrics.SessionFinished(s.transport, string(s.state))

	attrs := []any{
		slog.String("state", string(r.State)),
		slog.Int("exit_code", r.ExitCode),
		slog.Duration("duration", r.Duration),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.logger.Info("session finished", attrs...)
	return r
}
