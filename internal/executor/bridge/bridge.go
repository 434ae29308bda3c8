// Package bridge connects a running child process to a client transport.
//
// GOROUTINES (per Run):
//
//	pump(stdout) ─┐
//	              ├─> frames ──> writer loop (Run itself) ──> transport.Send
//	pump(stderr) ─┘
//	input loop   <── transport.Receive ──> child stdin     (Duplex only)
//
// Run's select is the only place that decides when the session ends. It
// watches: frames closed (output finished), input faults, send failures,
// child exit (starts the drain timer) and context cancellation.
package bridge

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sakif/compiler-playground/internal/apperror"
	"github.com/sakif/compiler-playground/internal/executor/process"
	"github.com/sakif/compiler-playground/internal/transport"
)

// Framing selects how output bytes become transport messages.
type Framing int

const (
	// Chunk forwards each read as one message, up to ChunkSize bytes.
	Chunk Framing = iota
	// Line forwards one message per output line, without the terminator.
	Line
)

// Status is how the running phase ended.
type Status int

const (
	Completed Status = iota
	Interrupted
)

func (s Status) String() string {
	if s == Completed {
		return "completed"
	}
	return "interrupted"
}

// DefaultDrainTimeout applies when Options.DrainTimeout is not positive.
const DefaultDrainTimeout = 2 * time.Second

type Options struct {
	Framing      Framing
	ChunkSize    int
	DrainTimeout time.Duration

	// Input, when set, is read until it fails and each message is written
	// to the child's stdin with a trailing newline.
	Input transport.Receiver

	// OnOutput is called with each forwarded frame's stream and size.
	OnOutput func(stream string, n int)
}

type Result struct {
	Status Status
	// Err explains an Interrupted result, or a read fault on one stream
	// that did not stop the session.
	Err      error
	Frames   int
	Bytes    int
	Drained  bool // child exited before output finished
	TimedOut bool // output was still open when DrainTimeout expired
}

type frame struct {
	stream string
	text   string
}

// Run forwards output (and input, if configured) until the running phase
// ends. When it returns, its goroutines have been told to stop and the
// handle's output pipes are closed. Killing and reaping the child is left
// to the caller.
func Run(ctx context.Context, h *process.Handle, out transport.Sender, opts Options) Result {
	if opts.ChunkSize < 1 {
		opts.ChunkSize = 1024
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}

	ctx, cancel := context.WithCancel(ctx)

	frames := make(chan frame, 16)
	faults := newFaultLog()

	var pumps sync.WaitGroup
	for _, src := range []struct {
		name string
		r    io.Reader
	}{
		{"stdout", h.Stdout},
		{"stderr", h.Stderr},
	} {
		pumps.Add(1)
		go func() {
			defer pumps.Done()
			if err := pump(ctx, src.name, src.r, opts, frames); err != nil {
				faults.record(apperror.StreamFault(src.name, err))
			}
		}()
	}
	go func() {
		pumps.Wait()
		close(frames)
	}()

	// Cancelling unblocks pumps waiting on frames; closing the pipes
	// unblocks pumps waiting on the child.
	defer func() {
		cancel()
		h.CloseOutput()
		pumps.Wait()
	}()

	// Without an input source the child reads EOF instead of blocking.
	inputErr := make(chan error, 1)
	if opts.Input != nil {
		go forwardInput(ctx, opts.Input, h, inputErr)
	} else {
		h.CloseStdin()
	}

	var (
		res    Result
		exited = h.Done()
		drain  <-chan time.Time
	)

	for {
		select {
		case f, ok := <-frames:
			if !ok {
				res.Status = Completed
				res.Err = faults.first()
				return res
			}
			if err := out.Send(ctx, f.text); err != nil {
				res.Status = Interrupted
				res.Err = apperror.TransportFault("failed to deliver output", err)
				return res
			}
			res.Frames++
			res.Bytes += len(f.text)
			if opts.OnOutput != nil {
				opts.OnOutput(f.stream, len(f.text))
			}

		case err := <-inputErr:
			res.Status = Interrupted
			res.Err = err
			return res

		case <-exited:
			// Keep forwarding whatever is still buffered in the pipes, but
			// not forever: a grandchild may hold them open.
			exited = nil
			res.Drained = true
			timer := time.NewTimer(opts.DrainTimeout)
			defer timer.Stop()
			drain = timer.C

		case <-drain:
			res.Status = Interrupted
			res.TimedOut = true
			return res

		case <-ctx.Done():
			res.Status = Interrupted
			res.Err = ctx.Err()
			return res
		}
	}
}

func pump(ctx context.Context, stream string, r io.Reader, opts Options, frames chan<- frame) error {
	emit := func(text string) bool {
		select {
		case frames <- frame{stream: stream, text: text}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if opts.Framing == Line {
		return pumpLines(r, opts.ChunkSize, emit)
	}
	return pumpChunks(r, opts.ChunkSize, emit)
}

func pumpChunks(r io.Reader, size int, emit func(string) bool) error {
	buf := make([]byte, size)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if !emit(strings.ToValidUTF8(string(buf[:n]), "�")) {
				return nil
			}
		}
		if err != nil {
			return endOfStream(err)
		}
	}
}

func pumpLines(r io.Reader, size int, emit func(string) bool) error {
	br := bufio.NewReaderSize(r, size)
	for {
		line, err := br.ReadString('\n')
		if line != "" && (err == nil || errors.Is(err, io.EOF)) {
			line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
			if !emit(strings.ToValidUTF8(line, "�")) {
				return nil
			}
		}
		if err != nil {
			return endOfStream(err)
		}
	}
}

// endOfStream treats EOF and a pipe closed by Run's cleanup as normal ends.
func endOfStream(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

func forwardInput(ctx context.Context, in transport.Receiver, h *process.Handle, errc chan<- error) {
	for {
		msg, err := in.Receive(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
			case errors.Is(err, transport.ErrInputDone):
				h.CloseStdin()
			default:
				errc <- apperror.TransportFault("client disconnected", err)
			}
			return
		}

		if !strings.HasSuffix(msg, "\n") {
			msg += "\n"
		}
		if _, err := io.WriteString(h.Stdin, msg); err != nil {
			if ctx.Err() == nil {
				errc <- apperror.StreamFault("stdin", err)
			}
			return
		}
	}
}

type faultLog struct {
	mu  sync.Mutex
	err error
}

func newFaultLog() *faultLog { return &faultLog{} }

func (f *faultLog) record(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

func (f *faultLog) first() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
