// Package transport abstracts the client connection of an execution session.
//
// WHY INTERFACES?
// The session controller and I/O bridge only need two capabilities:
// sending text to the client and (for interactive transports) receiving
// text from it. Keeping those as small interfaces lets the same session
// logic drive a WebSocket, a Server-Sent Events response, or a terminal,
// and lets tests drive it with an in-memory fake.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned once the peer is gone or Close was called.
	ErrClosed = errors.New("transport: closed")

	// ErrInputDone is returned by Receive when the peer finished sending
	// input but still wants output (a terminal reaching EOF).
	ErrInputDone = errors.New("transport: input finished")
)

// Sender delivers text to the client. Send is never called concurrently by
// the session; Close may be called after a Send returned an error.
type Sender interface {
	Send(ctx context.Context, text string) error
	Close() error
}

// Receiver yields client messages in arrival order.
type Receiver interface {
	Receive(ctx context.Context) (string, error)
}

// Duplex is a bidirectional transport.
type Duplex interface {
	Sender
	Receiver
}

// Kind returns a short label for t, used in logs and metrics.
func Kind(t any) string {
	if k, ok := t.(interface{ Kind() string }); ok {
		return k.Kind()
	}
	return "unknown"
}
