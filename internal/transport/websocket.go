package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketOptions tunes the keepalive and inbound queue of a WebSocket.
type WebSocketOptions struct {
	// InboundBuffer is how many client messages may queue before the read
	// loop stops reading. Messages sent before the program starts wait here.
	InboundBuffer int
	PingInterval  time.Duration
	PongWait      time.Duration
	WriteWait     time.Duration
	MaxMessage    int64
}

func DefaultWebSocketOptions() WebSocketOptions {
	return WebSocketOptions{
		InboundBuffer: 64,
		PingInterval:  30 * time.Second,
		PongWait:      60 * time.Second,
		WriteWait:     10 * time.Second,
		MaxMessage:    1 << 20,
	}
}

// WebSocket is a Duplex over a gorilla/websocket connection.
//
// CONCURRENCY:
// A background goroutine owns all reads and feeds the inbound channel.
// Writes are serialized by writeMu. Control frames (ping, close) use
// WriteControl, which gorilla allows concurrently with other writes.
type WebSocket struct {
	conn *websocket.Conn
	opts WebSocketOptions

	inbound chan string
	readErr error // set by readLoop before inbound is closed

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// Upgrade switches an HTTP request to a WebSocket connection.
func Upgrade(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader, opts WebSocketOptions) (*WebSocket, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocket(conn, opts), nil
}

// NewWebSocket wraps an established connection and starts its read and
// keepalive loops.
func NewWebSocket(conn *websocket.Conn, opts WebSocketOptions) *WebSocket {
	if opts.InboundBuffer < 1 {
		opts.InboundBuffer = 1
	}
	ws := &WebSocket{
		conn:    conn,
		opts:    opts,
		inbound: make(chan string, opts.InboundBuffer),
		done:    make(chan struct{}),
	}
	if opts.MaxMessage > 0 {
		conn.SetReadLimit(opts.MaxMessage)
	}
	go ws.readLoop()
	if opts.PingInterval > 0 {
		go ws.pingLoop()
	}
	return ws
}

func (w *WebSocket) Kind() string { return "websocket" }

func (w *WebSocket) readLoop() {
	defer close(w.inbound)

	if w.opts.PongWait > 0 {
		_ = w.conn.SetReadDeadline(time.Now().Add(w.opts.PongWait))
		w.conn.SetPongHandler(func(string) error {
			return w.conn.SetReadDeadline(time.Now().Add(w.opts.PongWait))
		})
	}

	for {
		msgType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.readErr = err
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		select {
		case w.inbound <- string(data):
		case <-w.done:
			return
		}
	}
}

func (w *WebSocket) pingLoop() {
	ticker := time.NewTicker(w.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(w.opts.WriteWait)
			if err := w.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-w.done:
			return
		}
	}
}

// Receive returns the next client message. Once the connection is gone and
// the queue is drained it returns an error wrapping ErrClosed.
func (w *WebSocket) Receive(ctx context.Context) (string, error) {
	select {
	case msg, ok := <-w.inbound:
		if !ok {
			if w.readErr != nil {
				return "", fmt.Errorf("%w: %v", ErrClosed, w.readErr)
			}
			return "", ErrClosed
		}
		return msg, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Send writes text as a single text message.
func (w *WebSocket) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-w.done:
		return ErrClosed
	default:
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if w.opts.WriteWait > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.opts.WriteWait))
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

// Close sends a normal close frame and releases the connection.
func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = w.conn.Close()
	})
	return err
}
