package transport

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// WEBSOCKET
// =============================================================================

// newSocketPair starts a server that hands its side of the connection to
// the test, and returns the client side.
func newSocketPair(t *testing.T, opts WebSocketOptions) (*WebSocket, *websocket.Conn) {
	t.Helper()

	serverSide := make(chan *WebSocket, 1)
	upgrader := &websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := Upgrade(w, r, upgrader, opts)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		serverSide <- ws
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case ws := <-serverSide:
		t.Cleanup(func() { _ = ws.Close() })
		return ws, client
	case <-time.After(5 * time.Second):
		t.Fatal("server never accepted the connection")
		return nil, nil
	}
}

func TestWebSocket_ReceiveInOrder(t *testing.T) {
	ws, client := newSocketPair(t, DefaultWebSocketOptions())
	ctx := context.Background()

	for _, msg := range []string{`{"code":"fn main(){}"}`, "first", "second"} {
		require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(msg)))
	}

	for _, want := range []string{`{"code":"fn main(){}"}`, "first", "second"} {
		got, err := ws.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestWebSocket_SendAndClose(t *testing.T) {
	ws, client := newSocketPair(t, DefaultWebSocketOptions())

	require.NoError(t, ws.Send(context.Background(), "Hello\n"))
	require.NoError(t, ws.Close())
	assert.NoError(t, ws.Close(), "second close is a no-op")

	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))
	msgType, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	assert.Equal(t, "Hello\n", string(data))

	_, _, err = client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	assert.ErrorIs(t, ws.Send(context.Background(), "late"), ErrClosed)
}

func TestWebSocket_PeerDisconnect(t *testing.T) {
	ws, client := newSocketPair(t, DefaultWebSocketOptions())

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("queued")))
	require.NoError(t, client.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Messages queued before the disconnect are still delivered.
	got, err := ws.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "queued", got)

	_, err = ws.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWebSocket_ReceiveHonorsContext(t *testing.T) {
	ws, _ := newSocketPair(t, DefaultWebSocketOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := ws.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebSocket_Pings(t *testing.T) {
	opts := DefaultWebSocketOptions()
	opts.PingInterval = 20 * time.Millisecond
	_, client := newSocketPair(t, opts)

	pinged := make(chan struct{}, 1)
	client.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	// Control frames are processed by the reader.
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}

// =============================================================================
// EVENT STREAM
// =============================================================================

func TestEventStream_HeadersAndEvents(t *testing.T) {
	rec := httptest.NewRecorder()

	es, err := NewEventStream(rec, 0)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, es.Send(ctx, "hi"))
	require.NoError(t, es.Send(ctx, "error: expected `;`\n --> main.rs:1:5\n"))
	require.NoError(t, es.Close())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.True(t, rec.Flushed)

	want := "data: hi\n\n" +
		"data: error: expected `;`\ndata:  --> main.rs:1:5\n\n"
	assert.Equal(t, want, rec.Body.String())

	assert.ErrorIs(t, es.Send(ctx, "late"), ErrClosed)
}

func TestEventStream_EmptyLine(t *testing.T) {
	assert.Equal(t, "data: \n\n", encodeEvent(""))
}

// lockedRecorder lets the test read the body while the heartbeat writes.
type lockedRecorder struct {
	*httptest.ResponseRecorder
	es *EventStream
}

func (l lockedRecorder) body() string {
	l.es.mu.Lock()
	defer l.es.mu.Unlock()
	return l.ResponseRecorder.Body.String()
}

func TestEventStream_Heartbeat(t *testing.T) {
	rec := httptest.NewRecorder()

	es, err := NewEventStream(rec, 10*time.Millisecond)
	require.NoError(t, err)
	defer es.Close()

	lr := lockedRecorder{ResponseRecorder: rec, es: es}
	assert.Eventually(t, func() bool {
		return strings.Contains(lr.body(), ":keepalive\n\n")
	}, 2*time.Second, 10*time.Millisecond)
}

type noFlush struct{ http.ResponseWriter }

func TestEventStream_RequiresFlusher(t *testing.T) {
	_, err := NewEventStream(noFlush{httptest.NewRecorder()}, 0)
	assert.Error(t, err)
}

// =============================================================================
// STDIO
// =============================================================================

func TestStdio(t *testing.T) {
	var out bytes.Buffer
	s := NewStdio(strings.NewReader("abc\ndef\n"), &out)
	ctx := context.Background()

	got, err := s.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	got, err = s.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "def", got)

	_, err = s.Receive(ctx)
	assert.True(t, errors.Is(err, ErrInputDone))

	require.NoError(t, s.Send(ctx, "Hello\n"))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Send(ctx, "late"), ErrClosed)
	assert.Equal(t, "Hello\n", out.String())
}

func TestKind(t *testing.T) {
	assert.Equal(t, "stdio", Kind(&Stdio{}))
	assert.Equal(t, "websocket", Kind(&WebSocket{}))
	assert.Equal(t, "eventstream", Kind(&EventStream{}))
	assert.Equal(t, "unknown", Kind(struct{}{}))
}
