// Package executor runs one compile-and-execute session per client request.
//
// SESSION LIFECYCLE:
//
//	Received ─> SourceWritten ─> Compiling ─┬─> CompileFailed
//	   │             │                      └─> CompileSucceeded ─> Spawning ─┬─> SpawnFailed
//	   │             └─> WriteFailed                                          └─> Running ─┬─> Completed
//	   └─> WorkspaceFailed                                                                 └─> Interrupted
//
// Every failure before Running sends exactly one diagnostic to the client.
// Every path ends with the workspace removed and the transport closed.
package executor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sakif/compiler-playground/internal/transport"
)

// ExecutionRequest is the source a client asked to run.
type ExecutionRequest struct {
	Code string `json:"code"`
}

// ParseEnvelope builds a request from the first message of a duplex
// session. A JSON object with a string "code" field is unwrapped; anything
// else is taken as the source text itself.
func ParseEnvelope(msg string) ExecutionRequest {
	var envelope struct {
		Code *string `json:"code"`
	}
	if err := json.Unmarshal([]byte(msg), &envelope); err == nil && envelope.Code != nil {
		return ExecutionRequest{Code: *envelope.Code}
	}
	return ExecutionRequest{Code: msg}
}

type State string

const (
	StateReceived         State = "received"
	StateWorkspaceFailed  State = "workspace_failed"
	StateSourceWritten    State = "source_written"
	StateWriteFailed      State = "write_failed"
	StateCompiling        State = "compiling"
	StateCompileFailed    State = "compile_failed"
	StateCompileSucceeded State = "compile_succeeded"
	StateSpawning         State = "spawning"
	StateSpawnFailed      State = "spawn_failed"
	StateRunning          State = "running"
	StateCompleted        State = "completed"
	StateInterrupted      State = "interrupted"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateWorkspaceFailed, StateWriteFailed, StateCompileFailed,
		StateSpawnFailed, StateCompleted, StateInterrupted:
		return true
	}
	return false
}

// Report summarizes a finished session.
type Report struct {
	ID        string
	Transport string
	State     State
	// Err is the failure that ended the session, nil on a clean completion.
	Err error
	// ExitCode of the program, -1 if it never ran or was killed by a signal.
	ExitCode int
	Duration time.Duration
}

// Executor is what the HTTP layer needs from the session controller.
type Executor interface {
	// Stream compiles and runs req, sending one message per output line.
	Stream(ctx context.Context, req ExecutionRequest, out transport.Sender) Report
	// Interact compiles and runs req, forwarding raw output chunks and
	// feeding client messages to the program's stdin.
	Interact(ctx context.Context, req ExecutionRequest, d transport.Duplex) Report
	// ServeDuplex reads the request from the first client message, then
	// behaves like Interact.
	ServeDuplex(ctx context.Context, d transport.Duplex) Report
}
