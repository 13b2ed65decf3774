// Package console reads operator input: single key presses while the server
// is waiting for requests, and command lines in manual mode.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/gwillem/armgoto/pkg/arbiter"
)

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Stream is a Console over a plain byte stream such as piped stdin.
type Stream struct {
	out   io.Writer
	runes chan rune

	mu  sync.Mutex
	err error
	// pendingEOL is set after a key press so the newline that followed it
	// is not read as an empty command.
	pendingEOL bool
}

var _ arbiter.Console = (*Stream)(nil)

// NewStream reads keys and lines from in. Prompts are written to out, which
// may be nil.
func NewStream(in io.Reader, out io.Writer) *Stream {
	s := &Stream{out: out, runes: make(chan rune)}
	go s.read(bufio.NewReader(in))
	return s
}

func (s *Stream) read(r *bufio.Reader) {
	defer close(s.runes)
	for {
		c, _, err := r.ReadRune()
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}
		s.runes <- c
	}
}

func (s *Stream) readErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		return io.EOF
	}
	return s.err
}

// PollKey implements arbiter.Console.
func (s *Stream) PollKey(ctx context.Context, timeout time.Duration) (arbiter.Key, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r, ok := <-s.runes:
		if !ok {
			return arbiter.KeyNone, s.readErr()
		}
		if r == '\n' || r == '\r' {
			return arbiter.KeyNone, nil
		}
		s.mu.Lock()
		s.pendingEOL = true
		s.mu.Unlock()
		return arbiter.KeyFromRune(r), nil
	case <-timer.C:
		return arbiter.KeyNone, nil
	case <-ctx.Done():
		return arbiter.KeyNone, ctx.Err()
	}
}

// ReadLine implements arbiter.Console. A partial last line is returned
// without error; end of input after that is reported as io.EOF.
func (s *Stream) ReadLine(ctx context.Context, prompt string) (string, error) {
	if s.out != nil && prompt != "" {
		fmt.Fprintln(s.out, prompt)
	}

	s.mu.Lock()
	skipEOL := s.pendingEOL
	s.pendingEOL = false
	s.mu.Unlock()

	var sb strings.Builder
	for {
		select {
		case r, ok := <-s.runes:
			if !ok {
				if sb.Len() > 0 {
					return sb.String(), nil
				}
				return "", s.readErr()
			}
			if skipEOL && (r == '\r' || r == '\n') {
				skipEOL = r == '\r'
				continue
			}
			skipEOL = false
			switch r {
			case '\n':
				return strings.TrimSuffix(sb.String(), "\r"), nil
			case 0x03:
				return "", arbiter.ErrInterrupted
			}
			sb.WriteRune(r)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
