// Package handler holds the HTTP handlers. Handlers parse requests, call a
// service or the session controller, and write responses; they hold no
// business rules of their own.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/compiler-playground/internal/tracker"
)

// Pinger is anything whose liveness /healthz should report, such as the
// database.
type Pinger interface {
	Ping() error
}

// PlaygroundHandler serves the service-level endpoints: banner, health
// and the live session list.
type PlaygroundHandler struct {
	compiler string
	tracker  tracker.Tracker
	checks   map[string]Pinger
	started  time.Time
	logger   *slog.Logger
}

func NewPlaygroundHandler(compiler string, t tracker.Tracker, checks map[string]Pinger, logger *slog.Logger) *PlaygroundHandler {
	return &PlaygroundHandler{
		compiler: compiler,
		tracker:  t,
		checks:   checks,
		started:  time.Now(),
		logger:   logger,
	}
}

// HandleIndex: GET /
func (h *PlaygroundHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "compiler playground (%s)\n\nPOST /compile  {\"code\": \"...\"}  -> text/event-stream\nGET  /ws       websocket: source first, then stdin lines\n", h.compiler)
}

type healthResponse struct {
	Status   string            `json:"status"`
	Compiler string            `json:"compiler"`
	Uptime   string            `json:"uptime"`
	Checks   map[string]string `json:"checks,omitempty"`
}

// HandleHealth: GET /healthz. 503 when any dependency check fails.
func (h *PlaygroundHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Compiler: h.compiler,
		Uptime:   time.Since(h.started).Round(time.Second).String(),
	}
	status := http.StatusOK

	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
		for name, p := range h.checks {
			if err := p.Ping(); err != nil {
				h.logger.Warn("health check failed",
					slog.String("check", name),
					slog.String("error", err.Error()),
				)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	writeJSON(w, status, resp)
}

// HandleSessions: GET /api/sessions, the sessions running right now.
func (h *PlaygroundHandler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	sessions, err := h.tracker.List(ctx)
	if err != nil {
		h.logger.Error("listing sessions failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []tracker.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}
