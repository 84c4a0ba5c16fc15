package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/user/webterm/internal/pty"
)

// Mode selects the session-reuse policy.
type Mode int

const (
	// ModeShared serves one lazily created session to every client; it
	// lives until explicit Shutdown (or its process exits).
	ModeShared Mode = iota
	// ModePerClient spawns a fresh session per connecting client and
	// tears it down when its last viewer detaches.
	ModePerClient
)

// sharedSessionID is the stable identifier of the ModeShared session.
const sharedSessionID = "shared"

// ErrShuttingDown is returned by GetOrCreate during manager teardown.
var ErrShuttingDown = errors.New("session: manager is shutting down")

const (
	defaultRows         = 24
	defaultCols         = 80
	defaultHistoryBytes = 64 * 1024
)

// Recorder persists session lifecycle events. *store.Store satisfies it.
type Recorder interface {
	SessionStarted(ctx context.Context, id, command string) error
	SessionEnded(ctx context.Context, id string) error
}

// Options configures a Manager.
type Options struct {
	Mode         Mode
	Command      pty.Command
	Rows         uint16
	Cols         uint16
	HistoryBytes int
	Recorder     Recorder

	// Spawn overrides how backing terminals are created. Defaults to
	// starting Options.Command on a real PTY.
	Spawn func() (Term, error)
}

// Manager owns every live Session and the identifier mapping.
type Manager struct {
	opts Options

	mu           sync.Mutex
	sessions     map[string]*Session
	shuttingDown bool
}

// NewManager creates a Manager with no live sessions.
func NewManager(opts Options) *Manager {
	if opts.Rows == 0 {
		opts.Rows = defaultRows
	}
	if opts.Cols == 0 {
		opts.Cols = defaultCols
	}
	if opts.HistoryBytes == 0 {
		opts.HistoryBytes = defaultHistoryBytes
	}
	m := &Manager{
		opts:     opts,
		sessions: make(map[string]*Session),
	}
	if m.opts.Spawn == nil {
		cmd, rows, cols := m.opts.Command, m.opts.Rows, m.opts.Cols
		m.opts.Spawn = func() (Term, error) {
			return pty.Start(cmd, rows, cols)
		}
	}
	return m
}

// GetOrCreate resolves the session a new client should attach to. In
// ModeShared the hint is ignored and all callers share one session; in
// ModePerClient every call spawns a new session under a fresh id.
func (m *Manager) GetOrCreate(hint string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shuttingDown {
		return nil, ErrShuttingDown
	}

	switch m.opts.Mode {
	case ModeShared:
		if s, ok := m.sessions[sharedSessionID]; ok {
			return s, nil
		}
		return m.createLocked(sharedSessionID, false)
	default:
		return m.createLocked(uuid.NewString(), true)
	}
}

// createLocked spawns a terminal and registers its session. Caller
// holds m.mu.
func (m *Manager) createLocked(id string, reapWhenEmpty bool) (*Session, error) {
	term, err := m.opts.Spawn()
	if err != nil {
		return nil, fmt.Errorf("session: spawn: %w", err)
	}

	s := newSession(id, term, m.opts.HistoryBytes)
	s.onExit = func(s *Session) { m.release(s.id) }
	if reapWhenEmpty {
		s.onEmpty = func(s *Session) { m.release(s.id) }
	}
	m.sessions[id] = s

	go s.run()

	slog.Info("session started", "session", id)
	m.recordStarted(id)
	return s, nil
}

// release removes a session from the mapping and terminates its
// terminal. Losing the race against Shutdown (or a second release) is
// fine: only the caller that removes the entry terminates and records.
func (m *Manager) release(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	_ = s.term.Terminate()
	slog.Info("session ended", "session", id)
	m.recordEnded(id)
}

// Get returns the live session with the given id, if any.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown terminates every live session exactly once, empties the
// identifier mapping, and fails all future GetOrCreate calls. It waits
// for each session's output pump to stop before returning.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.shuttingDown = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for id, s := range sessions {
		_ = s.term.Terminate()
		slog.Info("session ended", "session", id)
		m.recordEnded(id)
	}
	for _, s := range sessions {
		<-s.done
	}
}

func (m *Manager) recordStarted(id string) {
	if m.opts.Recorder == nil {
		return
	}
	cmd := strings.TrimSpace(m.opts.Command.Path + " " + strings.Join(m.opts.Command.Args, " "))
	if err := m.opts.Recorder.SessionStarted(context.Background(), id, cmd); err != nil {
		slog.Warn("failed to record session start", "session", id, "error", err)
	}
}

func (m *Manager) recordEnded(id string) {
	if m.opts.Recorder == nil {
		return
	}
	if err := m.opts.Recorder.SessionEnded(context.Background(), id); err != nil {
		slog.Warn("failed to record session end", "session", id, "error", err)
	}
}
