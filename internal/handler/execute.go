package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/compiler-playground/internal/apperror"
	"github.com/sakif/compiler-playground/internal/executor"
	"github.com/sakif/compiler-playground/internal/transport"
)

// ExecuteOptions configures the two execution endpoints.
type ExecuteOptions struct {
	MaxCodeBytes   int
	Heartbeat      time.Duration
	WebSocket      transport.WebSocketOptions
	AllowedOrigins []string
}

// ExecuteHandler exposes the session controller over HTTP.
//
//	POST /compile  one-shot, output as server-sent events, no stdin
//	GET  /ws       interactive, first message is the source, later ones are stdin
type ExecuteHandler struct {
	exec     executor.Executor
	opts     ExecuteOptions
	upgrader *websocket.Upgrader
	logger   *slog.Logger
}

func NewExecuteHandler(exec executor.Executor, opts ExecuteOptions, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		exec: exec,
		opts: opts,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
		logger: logger,
	}
}

// HandleCompile streams the program's output one line per event.
//
// Request validation happens before the stream opens so the client still
// gets a normal JSON 400. Once the event stream is open, every failure
// (including compiler diagnostics) arrives as an event.
func (h *ExecuteHandler) HandleCompile(w http.ResponseWriter, r *http.Request) {
	var req executor.ExecutionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid compile request", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	if err := h.validate(req); err != nil {
		writeError(w, err)
		return
	}

	stream, err := transport.NewEventStream(w, h.opts.Heartbeat)
	if err != nil {
		h.logger.Error("cannot open event stream", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	report := h.exec.Stream(r.Context(), req, stream)
	h.logger.Debug("compile request finished",
		slog.String("session_id", report.ID),
		slog.String("state", string(report.State)),
	)
}

// HandleSocket upgrades to a WebSocket and hands it to the controller.
// The session owns the connection from here on and closes it.
func (h *ExecuteHandler) HandleSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := transport.Upgrade(w, r, h.upgrader, h.opts.WebSocket)
	if err != nil {
		// The upgrader has already written an HTTP error.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	report := h.exec.ServeDuplex(r.Context(), ws)
	h.logger.Debug("websocket session finished",
		slog.String("session_id", report.ID),
		slog.String("state", string(report.State)),
	)
}

func (h *ExecuteHandler) validate(req executor.ExecutionRequest) error {
	if h.opts.MaxCodeBytes > 0 && len(req.Code) > h.opts.MaxCodeBytes {
		return apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d bytes or less", h.opts.MaxCodeBytes))
	}
	return nil
}

// originChecker allows every origin when the list is empty or contains
// "*"; otherwise the Origin header must match one entry exactly. Requests
// without an Origin header (non-browser clients) are always allowed.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = true
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		return set[u.Scheme+"://"+u.Host]
	}
}
