package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"
)

// EventStream is an output-only transport writing Server-Sent Events.
//
// WIRE FORMAT:
// Each Send becomes one event. Text spanning several lines is written as
// several data: fields of the same event, which clients join with "\n".
//
//	data: error: expected `;`
//	data:  --> temp/temp_x.rs:1:5
//
// A ":keepalive" comment is written every heartbeat interval so proxies do
// not drop an idle connection while the program is thinking.
type EventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu     sync.Mutex // guards writes and closed
	closed bool
	done   chan struct{}
}

// NewEventStream writes the SSE headers and starts the heartbeat.
// The caller must call Close before the handler returns.
func NewEventStream(w http.ResponseWriter, heartbeat time.Duration) (*EventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("transport: response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	es := &EventStream{
		w:       w,
		flusher: flusher,
		done:    make(chan struct{}),
	}
	if heartbeat > 0 {
		go es.keepalive(heartbeat)
	}
	return es, nil
}

func (e *EventStream) Kind() string { return "eventstream" }

func (e *EventStream) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.mu.Lock()
			if e.closed {
				e.mu.Unlock()
				return
			}
			_, err := e.w.Write([]byte(":keepalive\n\n"))
			if err == nil {
				e.flusher.Flush()
			}
			e.mu.Unlock()
			if err != nil {
				return
			}
		case <-e.done:
			return
		}
	}
}

// Send writes text as one event and flushes it.
func (e *EventStream) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	if _, err := e.w.Write([]byte(encodeEvent(text))); err != nil {
		return errors.Join(ErrClosed, err)
	}
	e.flusher.Flush()
	return nil
}

// Close stops the heartbeat. The HTTP response itself ends when the handler returns.
func (e *EventStream) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.done)
	}
	return nil
}

func encodeEvent(text string) string {
	var b strings.Builder
	text = strings.TrimSuffix(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for _, line := range strings.Split(text, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}
