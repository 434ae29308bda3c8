package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
)

// Stdio is a Duplex over a terminal: lines read from in are program input,
// output is written to out unchanged. Used by the "run" command.
type Stdio struct {
	out io.Writer

	mu     sync.Mutex
	closed bool

	lines   chan string
	readErr error
}

func NewStdio(in io.Reader, out io.Writer) *Stdio {
	s := &Stdio{
		out:   out,
		lines: make(chan string),
	}
	go s.readLoop(in)
	return s
}

func (s *Stdio) Kind() string { return "stdio" }

func (s *Stdio) readLoop(in io.Reader) {
	defer close(s.lines)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		s.lines <- scanner.Text()
	}
	s.readErr = scanner.Err()
}

// Receive returns the next input line. At end of input it returns
// ErrInputDone so the program sees EOF but keeps running.
func (s *Stdio) Receive(ctx context.Context) (string, error) {
	select {
	case line, ok := <-s.lines:
		if !ok {
			if s.readErr != nil {
				return "", errors.Join(ErrClosed, s.readErr)
			}
			return "", ErrInputDone
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Stdio) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, err := io.WriteString(s.out, text)
	return err
}

// Close marks the transport closed. The underlying streams belong to the
// caller and stay open.
func (s *Stdio) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
