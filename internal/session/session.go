// Package session owns live terminal sessions: one child process on a
// PTY, a bounded output history, and the set of clients viewing it.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrEnded is returned by Attach once the session's process has exited.
var ErrEnded = errors.New("session: session has ended")

// Term is the terminal a Session drives. *pty.Terminal satisfies it;
// tests substitute in-memory fakes.
type Term interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Resize(rows, cols uint16) error
	Terminate() error
}

// Viewer receives output fanned out by a Session. Implementations must
// not block: QueueOutput reports whether the bytes were accepted, and a
// refusal only affects that viewer.
type Viewer interface {
	// QueueOutput enqueues one chunk of PTY output for delivery.
	QueueOutput(data []byte) bool
	// SessionEnded tells the viewer the underlying process is gone.
	SessionEnded()
}

// Session wraps one terminal plus its output history and attached
// viewers. Output is pumped by a single goroutine (run) so every viewer
// observes bytes in the order the PTY produced them.
type Session struct {
	id   string
	term Term

	mu      sync.Mutex
	history *history
	viewers map[Viewer]struct{}
	ended   bool

	// done is closed once the output pump has stopped.
	done chan struct{}

	// onEmpty fires (from Detach) when the last viewer leaves; set only
	// for sessions that are torn down when unobserved.
	onEmpty func(*Session)
	// onExit fires (from run) when the terminal reports end-of-stream.
	onExit func(*Session)
}

func newSession(id string, term Term, historyMax int) *Session {
	return &Session{
		id:      id,
		term:    term,
		history: newHistory(historyMax),
		viewers: make(map[Viewer]struct{}),
		done:    make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// run is the session's output pump. Term.Read blocks until the child
// produces output; end-of-stream (process exit or Terminate) stops the
// pump and notifies every attached viewer.
func (s *Session) run() {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.term.Read(buf)
		if n > 0 {
			s.broadcast(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			s.end()
			return
		}
	}
}

// broadcast appends one output chunk to history and enqueues it onto
// every attached viewer. The lock guards only bookkeeping; QueueOutput
// is a non-blocking enqueue, never network I/O.
func (s *Session) broadcast(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.append(data)
	for v := range s.viewers {
		if !v.QueueOutput(data) {
			slog.Warn("viewer queue full, dropping output", "session", s.id)
		}
	}
}

// Attach registers a viewer and replays buffered history onto its
// queue. Replay and registration happen atomically, so the viewer sees
// history strictly before any live output.
func (s *Session) Attach(v Viewer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return ErrEnded
	}
	if h := s.history.bytes(); len(h) > 0 {
		v.QueueOutput(h)
	}
	s.viewers[v] = struct{}{}
	return nil
}

// Detach removes a viewer. If it was the last one and the session's
// policy is to tear down when unobserved, teardown is kicked off
// asynchronously.
func (s *Session) Detach(v Viewer) {
	s.mu.Lock()
	if _, ok := s.viewers[v]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.viewers, v)
	empty := len(s.viewers) == 0 && !s.ended
	notify := s.onEmpty
	s.mu.Unlock()

	if empty && notify != nil {
		go notify(s)
	}
}

// ForwardInput passes client keystrokes to the terminal. Concurrent
// writers to a shared session are serialized arbitrarily.
func (s *Session) ForwardInput(data []byte) error {
	if _, err := s.term.Write(data); err != nil {
		return fmt.Errorf("session %s: %w", s.id, err)
	}
	return nil
}

// ForwardResize passes new client dimensions to the terminal.
func (s *Session) ForwardResize(rows, cols uint16) error {
	if err := s.term.Resize(rows, cols); err != nil {
		return fmt.Errorf("session %s: %w", s.id, err)
	}
	return nil
}

// ViewerCount returns the number of currently attached viewers.
func (s *Session) ViewerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.viewers)
}

// History returns a copy of the buffered output.
func (s *Session) History() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.bytes()
}

// end marks the session dead, detaches every viewer with a
// SessionEnded notification, and reports the exit upward.
func (s *Session) end() {
	defer close(s.done)

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	viewers := make([]Viewer, 0, len(s.viewers))
	for v := range s.viewers {
		viewers = append(viewers, v)
	}
	s.viewers = make(map[Viewer]struct{})
	notify := s.onExit
	s.mu.Unlock()

	for _, v := range viewers {
		v.SessionEnded()
	}
	if notify != nil {
		notify(s)
	}
}
