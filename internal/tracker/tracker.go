// Package tracker keeps a registry of live execution sessions.
//
// The registry is observational: sessions write to it on every state change
// and the /api/sessions endpoint reads it. Nothing in a session's control
// flow depends on what the tracker returns, so write failures are logged by
// the caller and otherwise ignored.
//
// Two implementations:
//
//	Memory  single process, the default
//	Redis   shared by several playground instances behind a load balancer
package tracker

import (
	"context"
	"time"
)

// Session is the tracked view of one execution session.
type Session struct {
	ID        string    `json:"id"`
	Transport string    `json:"transport"`
	State     string    `json:"state"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Tracker interface {
	Begin(ctx context.Context, s Session) error
	Update(ctx context.Context, id, state string, pid int) error
	End(ctx context.Context, id string) error
	List(ctx context.Context) ([]Session, error)
}
