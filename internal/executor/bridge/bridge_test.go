package bridge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/compiler-playground/internal/apperror"
	"github.com/sakif/compiler-playground/internal/executor/process"
	"github.com/sakif/compiler-playground/internal/logging"
	"github.com/sakif/compiler-playground/internal/transport"
)

// =============================================================================
// FAKES
// =============================================================================

type recordingSender struct {
	mu      sync.Mutex
	msgs    []string
	failErr error
}

func (s *recordingSender) Send(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.msgs = append(s.msgs, text)
	return nil
}

func (s *recordingSender) Close() error { return nil }

func (s *recordingSender) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

// scriptedReceiver yields msgs, then endErr. With a nil endErr it blocks
// after the last message until the context ends.
type scriptedReceiver struct {
	msgs   chan string
	endErr error
}

func newReceiver(endErr error, msgs ...string) *scriptedReceiver {
	r := &scriptedReceiver{msgs: make(chan string, len(msgs)), endErr: endErr}
	for _, m := range msgs {
		r.msgs <- m
	}
	if endErr != nil {
		close(r.msgs)
	}
	return r
}

func (r *scriptedReceiver) Receive(ctx context.Context) (string, error) {
	select {
	case m, ok := <-r.msgs:
		if !ok {
			return "", r.endErr
		}
		return m, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func spawn(t *testing.T, body string) *process.Handle {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "prog")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))

	h, err := process.Spawn(context.Background(), path, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = h.Kill()
		<-h.Done()
		h.Close()
	})
	return h
}

func opts(framing Framing) Options {
	return Options{Framing: framing, ChunkSize: 1024, DrainTimeout: 2 * time.Second}
}

func assertInOrder(t *testing.T, output string, parts ...string) {
	t.Helper()
	last := -1
	for _, p := range parts {
		idx := strings.Index(output, p)
		require.GreaterOrEqual(t, idx, 0, "missing %q in %q", p, output)
		assert.Greater(t, idx, last, "%q out of order in %q", p, output)
		last = idx
	}
}

// =============================================================================
// OUTPUT
// =============================================================================

func TestRun_ChunkFramingMergesStreams(t *testing.T) {
	h := spawn(t, `echo out1; echo err1 >&2; echo out2; echo err2 >&2; echo out3`)
	out := &recordingSender{}

	res := Run(context.Background(), h, out, opts(Chunk))

	assert.Equal(t, Completed, res.Status)
	assert.NoError(t, res.Err)

	combined := strings.Join(out.messages(), "")
	assertInOrder(t, combined, "out1\n", "out2\n", "out3\n")
	assertInOrder(t, combined, "err1\n", "err2\n")
	assert.Len(t, combined, len("out1\nerr1\nout2\nerr2\nout3\n"))
}

func TestRun_ChunkSizeBoundsMessages(t *testing.T) {
	h := spawn(t, `printf 'abcdefghij'`)
	out := &recordingSender{}

	o := opts(Chunk)
	o.ChunkSize = 4
	res := Run(context.Background(), h, out, o)

	assert.Equal(t, Completed, res.Status)
	for _, m := range out.messages() {
		assert.LessOrEqual(t, len(m), 4)
	}
	assert.Equal(t, "abcdefghij", strings.Join(out.messages(), ""))
}

func TestRun_LineFraming(t *testing.T) {
	h := spawn(t, `echo hi`)
	out := &recordingSender{}

	res := Run(context.Background(), h, out, opts(Line))

	assert.Equal(t, Completed, res.Status)
	assert.Equal(t, []string{"hi"}, out.messages())
}

func TestRun_LineFramingFlushesPartialLine(t *testing.T) {
	h := spawn(t, `printf 'a\r\nb'`)
	out := &recordingSender{}

	res := Run(context.Background(), h, out, opts(Line))

	assert.Equal(t, Completed, res.Status)
	assert.Equal(t, []string{"a", "b"}, out.messages())
}

func TestRun_OnOutputReportsStreams(t *testing.T) {
	h := spawn(t, `echo out; echo err >&2`)
	out := &recordingSender{}

	var mu sync.Mutex
	seen := map[string]int{}
	o := opts(Line)
	o.OnOutput = func(stream string, n int) {
		mu.Lock()
		seen[stream] += n
		mu.Unlock()
	}

	Run(context.Background(), h, out, o)

	assert.Equal(t, map[string]int{"stdout": 3, "stderr": 3}, seen)
}

// =============================================================================
// INPUT
// =============================================================================

func TestRun_InputGetsTrailingNewline(t *testing.T) {
	h := spawn(t, `read line; echo "got $line"`)
	out := &recordingSender{}

	o := opts(Chunk)
	o.Input = newReceiver(nil, "abc")
	res := Run(context.Background(), h, out, o)

	assert.Equal(t, Completed, res.Status)
	assert.Equal(t, "got abc\n", strings.Join(out.messages(), ""))
}

func TestRun_NoInputClosesStdin(t *testing.T) {
	h := spawn(t, `read x; echo "got:$x"`)
	out := &recordingSender{}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res := Run(ctx, h, out, opts(Line))

	assert.Equal(t, Completed, res.Status)
	assert.Equal(t, []string{"got:"}, out.messages())
}

func TestRun_InputDoneClosesStdin(t *testing.T) {
	h := spawn(t, `cat`)
	out := &recordingSender{}

	o := opts(Chunk)
	o.Input = newReceiver(transport.ErrInputDone, "one", "two\n")
	res := Run(context.Background(), h, out, o)

	assert.Equal(t, Completed, res.Status)
	assert.Equal(t, "one\ntwo\n", strings.Join(out.messages(), ""))
}

func TestRun_ClientDisconnectInterrupts(t *testing.T) {
	h := spawn(t, `exec sleep 30`)
	out := &recordingSender{}

	o := opts(Chunk)
	o.Input = newReceiver(transport.ErrClosed)
	res := Run(context.Background(), h, out, o)

	assert.Equal(t, Interrupted, res.Status)
	assert.True(t, errors.Is(res.Err, apperror.ErrTransportFault))
	assert.False(t, h.Exited(), "the bridge does not kill; the controller does")
}

// =============================================================================
// TERMINATION
// =============================================================================

func TestRun_ContextCancelInterrupts(t *testing.T) {
	h := spawn(t, `exec sleep 30`)
	out := &recordingSender{}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	o := opts(Chunk)
	o.Input = newReceiver(nil)
	res := Run(ctx, h, out, o)

	assert.Equal(t, Interrupted, res.Status)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestRun_SendFailureInterrupts(t *testing.T) {
	h := spawn(t, `echo hi; exec sleep 30`)
	out := &recordingSender{failErr: transport.ErrClosed}

	res := Run(context.Background(), h, out, opts(Line))

	assert.Equal(t, Interrupted, res.Status)
	assert.True(t, errors.Is(res.Err, apperror.ErrTransportFault))
	assert.True(t, errors.Is(res.Err, transport.ErrClosed))
}

func TestRun_DrainTimeout(t *testing.T) {
	// The background sleep inherits stdout and keeps it open after the
	// script itself exits.
	h := spawn(t, `sleep 2 & echo started`)
	out := &recordingSender{}

	o := opts(Line)
	o.DrainTimeout = 100 * time.Millisecond
	res := Run(context.Background(), h, out, o)

	assert.Equal(t, Interrupted, res.Status)
	assert.True(t, res.TimedOut)
	assert.True(t, res.Drained)
	assert.Equal(t, []string{"started"}, out.messages())
}

func TestRun_ZeroDrainTimeoutUsesDefault(t *testing.T) {
	for i := 0; i < 5; i++ {
		h := spawn(t, `seq 1 2000`)
		out := &recordingSender{}

		o := opts(Line)
		o.DrainTimeout = 0
		res := Run(context.Background(), h, out, o)

		require.Equal(t, Completed, res.Status, "run %d: %v", i, res.Err)
		require.Len(t, out.messages(), 2000)
	}
}

func TestRun_OutputAfterExitIsDrained(t *testing.T) {
	h := spawn(t, `i=0; while [ $i -lt 200 ]; do echo line$i; i=$((i+1)); done`)
	out := &recordingSender{}

	res := Run(context.Background(), h, out, opts(Line))

	assert.Equal(t, Completed, res.Status)
	msgs := out.messages()
	require.Len(t, msgs, 200)
	assert.Equal(t, "line0", msgs[0])
	assert.Equal(t, "line199", msgs[199])
}
