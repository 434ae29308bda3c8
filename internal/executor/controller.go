package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/compiler-playground/internal/apperror"
	"github.com/sakif/compiler-playground/internal/config"
	"github.com/sakif/compiler-playground/internal/executor/bridge"
	"github.com/sakif/compiler-playground/internal/executor/compiler"
	"github.com/sakif/compiler-playground/internal/executor/process"
	"github.com/sakif/compiler-playground/internal/executor/workspace"
	"github.com/sakif/compiler-playground/internal/metrics"
	"github.com/sakif/compiler-playground/internal/tracker"
	"github.com/sakif/compiler-playground/internal/transport"
)

var errDrainTimeout = errors.New("output still open after the program exited")

// Controller drives sessions. It is safe for concurrent use; sessions
// share nothing but the scratch directory.
type Controller struct {
	exec       config.ExecutionConfig
	workspaces *workspace.Manager
	compiler   *compiler.Invoker
	tracker    tracker.Tracker
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

type Option func(*Controller)

// WithTracker records live sessions in t. The default is an in-memory tracker.
func WithTracker(t tracker.Tracker) Option {
	return func(c *Controller) { c.tracker = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func NewController(tc config.ToolchainConfig, ec config.ExecutionConfig, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		exec:       ec,
		workspaces: workspace.NewManager(tc, logger),
		compiler:   compiler.New(tc, logger),
		tracker:    tracker.NewMemory(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tracker returns the live-session registry the controller writes to.
func (c *Controller) Tracker() tracker.Tracker {
	return c.tracker
}

func (c *Controller) Stream(ctx context.Context, req ExecutionRequest, out transport.Sender) Report {
	return c.run(ctx, req, out, nil, bridge.Line)
}

func (c *Controller) Interact(ctx context.Context, req ExecutionRequest, d transport.Duplex) Report {
	return c.run(ctx, req, d, d, bridge.Chunk)
}

func (c *Controller) ServeDuplex(ctx context.Context, d transport.Duplex) Report {
	first, err := d.Receive(ctx)
	if err != nil {
		_ = d.Close()
		c.logger.Debug("duplex closed before source was received",
			slog.String("transport", transport.Kind(d)),
			slog.String("error", err.Error()),
		)
		return Report{
			Transport: transport.Kind(d),
			State:     StateInterrupted,
			Err:       apperror.TransportFault("no source received", err),
			ExitCode:  -1,
		}
	}
	return c.Interact(ctx, ParseEnvelope(first), d)
}

func (c *Controller) run(ctx context.Context, req ExecutionRequest, out transport.Sender, in transport.Receiver, framing bridge.Framing) Report {
	s := c.open(ctx, transport.Kind(out))

	err := c.execute(ctx, s, req, out, in, framing)

	if cerr := out.Close(); cerr != nil {
		s.logger.Debug("closing transport", slog.String("error", cerr.Error()))
	}
	return s.close(ctx, err)
}

// execute owns the workspace for the whole session; Teardown is deferred
// right after Prepare so it runs on every path below.
func (c *Controller) execute(ctx context.Context, s *session, req ExecutionRequest, out transport.Sender, in transport.Receiver, framing bridge.Framing) error {
	ws, err := c.workspaces.Prepare()
	if err != nil {
		return s.fail(ctx, out, StateWorkspaceFailed, err)
	}
	defer c.workspaces.Teardown(ws)
	s.logger = s.logger.With(slog.String("workspace_id", ws.ID.String()))

	if err := c.compiler.WriteSource(ws, req.Code); err != nil {
		return s.fail(ctx, out, StateWriteFailed, err)
	}
	s.enter(ctx, StateSourceWritten)

	s.enter(ctx, StateCompiling)
	outcome := c.compiler.Invoke(ctx, ws)
	c.metrics.CompileObserved(outcome.OK, outcome.Duration)
	if !outcome.OK {
		return s.fail(ctx, out, StateCompileFailed, apperror.CompileFailed(outcome.Diagnostic, nil))
	}
	s.enter(ctx, StateCompileSucceeded)

	s.enter(ctx, StateSpawning)
	h, err := process.Spawn(ctx, outcome.Artifact, s.logger)
	if err != nil {
		return s.fail(ctx, out, StateSpawnFailed, err)
	}
	s.pid = h.PID()
	s.enter(ctx, StateRunning)

	return c.supervise(ctx, s, h, out, in, framing)
}

// supervise runs the bridge and then makes sure the child is gone.
func (c *Controller) supervise(ctx context.Context, s *session, h *process.Handle, out transport.Sender, in transport.Receiver, framing bridge.Framing) error {
	runCtx := ctx
	if c.exec.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.exec.RunTimeout)
		defer cancel()
	}

	started := time.Now()
	res := bridge.Run(runCtx, h, out, bridge.Options{
		Framing:      framing,
		ChunkSize:    c.exec.ChunkSize,
		DrainTimeout: c.exec.DrainTimeout,
		Input:        in,
		OnOutput: func(stream string, n int) {
			c.metrics.OutputForwarded(s.transport, stream, n)
		},
	})

	h.CloseStdin()
	if res.Status == bridge.Interrupted {
		s.kill(h, "session interrupted")
	} else {
		select {
		case <-h.Done():
		case <-time.After(c.exec.ReapGrace):
			s.kill(h, "output closed but process still running")
		}
	}
	<-h.Done()
	h.Close()

	s.exitCode = h.ExitCode()
	c.metrics.RunObserved(s.transport, time.Since(started))

	if res.Status == bridge.Completed {
		s.enter(ctx, StateCompleted)
		return res.Err
	}

	s.enter(ctx, StateInterrupted)
	switch {
	case res.TimedOut:
		err := apperror.StreamFault("output", errDrainTimeout)
		if sendErr := out.Send(ctx, apperror.Message(err)); sendErr != nil {
			s.logger.Debug("drain timeout notice not delivered", slog.String("error", sendErr.Error()))
		}
		return err
	case errors.Is(res.Err, context.DeadlineExceeded) && ctx.Err() == nil:
		notice := fmt.Sprintf("Execution timed out after %s", c.exec.RunTimeout)
		if err := out.Send(ctx, notice); err != nil {
			s.logger.Debug("timeout notice not delivered", slog.String("error", err.Error()))
		}
		return apperror.TransportFault(notice, res.Err)
	}
	return res.Err
}

func (c *Controller) open(ctx context.Context, kind string) *session {
	s := &session{
		id:        xid.New().String(),
		transport: kind,
		state:     StateReceived,
		started:   time.Now(),
		exitCode:  -1,
		ctrl:      c,
	}
	s.logger = c.logger.With(slog.String("session_id", s.id), slog.String("transport", kind))

	c.metrics.SessionStarted(kind)
	err := c.tracker.Begin(context.WithoutCancel(ctx), tracker.Session{
		ID:        s.id,
		Transport: kind,
		State:     string(StateReceived),
		StartedAt: s.started.UTC(),
	})
	if err != nil {
		s.logger.Warn("tracking session", slog.String("error", err.Error()))
	}
	s.logger.Debug("session received")
	return s
}
