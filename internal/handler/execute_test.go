package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/compiler-playground/internal/executor"
	"github.com/sakif/compiler-playground/internal/handler"
	"github.com/sakif/compiler-playground/internal/logging"
	"github.com/sakif/compiler-playground/internal/transport"
)

// MockExecutor stands in for the session controller. Stream sends each
// line of Output; ServeDuplex echoes messages until the client goes away.
type MockExecutor struct {
	mu          sync.Mutex
	CapturedReq executor.ExecutionRequest
	Output      []string
	Calls       int
}

func (m *MockExecutor) Stream(ctx context.Context, req executor.ExecutionRequest, out transport.Sender) executor.Report {
	m.mu.Lock()
	m.CapturedReq = req
	m.Calls++
	m.mu.Unlock()

	for _, line := range m.Output {
		if err := out.Send(ctx, line); err != nil {
			break
		}
	}
	out.Close()
	return executor.Report{ID: "mock", State: executor.StateCompleted}
}

func (m *MockExecutor) Interact(ctx context.Context, req executor.ExecutionRequest, d transport.Duplex) executor.Report {
	d.Close()
	return executor.Report{ID: "mock", State: executor.StateCompleted}
}

func (m *MockExecutor) ServeDuplex(ctx context.Context, d transport.Duplex) executor.Report {
	defer d.Close()

	first, err := d.Receive(ctx)
	if err != nil {
		return executor.Report{ID: "mock", State: executor.StateInterrupted, Err: err}
	}
	m.mu.Lock()
	m.CapturedReq = executor.ParseEnvelope(first)
	m.Calls++
	m.mu.Unlock()

	if err := d.Send(ctx, "compiled: "+m.CapturedReq.Code); err != nil {
		return executor.Report{ID: "mock", State: executor.StateInterrupted, Err: err}
	}
	for {
		msg, err := d.Receive(ctx)
		if err != nil {
			return executor.Report{ID: "mock", State: executor.StateInterrupted, Err: err}
		}
		if msg == "quit" {
			return executor.Report{ID: "mock", State: executor.StateCompleted}
		}
		if err := d.Send(ctx, "echo: "+msg); err != nil {
			return executor.Report{ID: "mock", State: executor.StateInterrupted, Err: err}
		}
	}
}

func newExecuteHandler(m *MockExecutor, origins ...string) *handler.ExecuteHandler {
	return handler.NewExecuteHandler(m, handler.ExecuteOptions{
		MaxCodeBytes:   64,
		Heartbeat:      0,
		WebSocket:      transport.DefaultWebSocketOptions(),
		AllowedOrigins: origins,
	}, logging.NewNop())
}

func TestExecuteHandler_HandleCompile(t *testing.T) {
	t.Run("streams one event per line", func(t *testing.T) {
		m := &MockExecutor{Output: []string{"hi", "there"}}
		h := newExecuteHandler(m)

		req := httptest.NewRequest(http.MethodPost, "/compile", strings.NewReader(`{"code":"fn main() {}"}`))
		rr := httptest.NewRecorder()
		h.HandleCompile(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
		assert.Equal(t, "data: hi\n\ndata: there\n\n", rr.Body.String())
		assert.Equal(t, "fn main() {}", m.CapturedReq.Code)
	})

	t.Run("empty code is still compiled", func(t *testing.T) {
		m := &MockExecutor{Output: []string{"error[E0601]: `main` function not found"}}
		h := newExecuteHandler(m)

		rr := httptest.NewRecorder()
		h.HandleCompile(rr, httptest.NewRequest(http.MethodPost, "/compile", strings.NewReader(`{"code":"  "}`)))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "data: error[E0601]: `main` function not found\n\n", rr.Body.String())
		assert.Equal(t, 1, m.Calls)
		assert.Equal(t, "  ", m.CapturedReq.Code)
	})

	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", `{"code":`},
		{"empty body", ``},
		{"code too large", `{"code":"` + strings.Repeat("x", 65) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &MockExecutor{}
			h := newExecuteHandler(m)

			rr := httptest.NewRecorder()
			h.HandleCompile(rr, httptest.NewRequest(http.MethodPost, "/compile", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			assert.Contains(t, rr.Body.String(), `"error":"validation_error"`)
			assert.Zero(t, m.Calls, "executor must not run for a rejected request")
		})
	}
}

func dialSocket(t *testing.T, srv *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	return websocket.DefaultDialer.Dial(url, header)
}

func TestExecuteHandler_HandleSocket(t *testing.T) {
	m := &MockExecutor{}
	srv := httptest.NewServer(http.HandlerFunc(newExecuteHandler(m).HandleSocket))
	defer srv.Close()

	conn, _, err := dialSocket(t, srv, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"code":"src"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("abc")))

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "compiled: src", string(msg))

	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "echo: abc", string(msg))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("quit")))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "want a normal close, got %v", err)
}

func TestExecuteHandler_HandleSocket_Origins(t *testing.T) {
	m := &MockExecutor{}
	srv := httptest.NewServer(http.HandlerFunc(newExecuteHandler(m, "https://play.example.com").HandleSocket))
	defer srv.Close()

	t.Run("allowed origin", func(t *testing.T) {
		conn, _, err := dialSocket(t, srv, http.Header{"Origin": {"https://play.example.com"}})
		require.NoError(t, err)
		conn.Close()
	})

	t.Run("foreign origin", func(t *testing.T) {
		_, resp, err := dialSocket(t, srv, http.Header{"Origin": {"https://evil.example.com"}})
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestExecuteHandler_HandleSocket_PlainHTTP(t *testing.T) {
	h := newExecuteHandler(&MockExecutor{})

	rr := httptest.NewRecorder()
	h.HandleSocket(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
