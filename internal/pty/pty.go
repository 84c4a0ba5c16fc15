// Package pty wraps a child process running inside a pseudo-terminal.
package pty

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	creackpty "github.com/creack/pty"
)

// ErrClosed is returned for writes and resizes on a terminated terminal.
var ErrClosed = errors.New("pty: terminal is closed")

// Command describes the child process to attach to a new terminal.
type Command struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

// Terminal owns one pseudo-terminal pair and the child process attached
// to its slave side. The master side is retained for I/O.
type Terminal struct {
	cmd  *exec.Cmd
	ptmx *os.File

	mu     sync.Mutex
	rows   uint16
	cols   uint16
	closed bool

	done     chan struct{}
	termOnce sync.Once
}

// Start forks the command attached to a freshly allocated PTY with the
// given initial dimensions.
func Start(cmd Command, rows, cols uint16) (*Terminal, error) {
	if cmd.Path == "" {
		return nil, errors.New("pty: command path must not be empty")
	}

	c := exec.Command(cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = cmd.Env
	}

	ptmx, err := creackpty.StartWithSize(c, &creackpty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return nil, fmt.Errorf("pty: spawn %q: %w", cmd.Path, err)
	}

	t := &Terminal{
		cmd:  c,
		ptmx: ptmx,
		rows: rows,
		cols: cols,
		done: make(chan struct{}),
	}

	go t.reap()

	return t, nil
}

// reap waits for the child to exit, marks the terminal closed, and
// closes the done channel. It is the only place the process is reaped.
func (t *Terminal) reap() {
	_ = t.cmd.Wait()

	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	close(t.done)
}

// Read blocks until the child produces output. After the child exits
// (or Terminate closes the descriptor) it reports io.EOF; callers treat
// that as end-of-stream for the whole session.
func (t *Terminal) Read(p []byte) (int, error) {
	n, err := t.ptmx.Read(p)
	if err != nil {
		// Linux reports EIO on the master side once the slave is gone.
		if errors.Is(err, syscall.EIO) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.EOF) {
			return n, io.EOF
		}
		return n, fmt.Errorf("pty: read: %w", err)
	}
	return n, nil
}

// Write forwards bytes to the child's standard input.
func (t *Terminal) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, ErrClosed
	}
	n, err := t.ptmx.Write(p)
	if err != nil {
		return n, fmt.Errorf("pty: write: %w", err)
	}
	return n, nil
}

// Resize propagates new terminal dimensions to the kernel PTY. The
// child is signalled (SIGWINCH) by the kernel as a side effect.
func (t *Terminal) Resize(rows, cols uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if err := creackpty.Setsize(t.ptmx, &creackpty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return fmt.Errorf("pty: resize: %w", err)
	}
	t.rows = rows
	t.cols = cols
	return nil
}

// Size returns the last dimensions applied to the PTY.
func (t *Terminal) Size() (rows, cols uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rows, t.cols
}

// Alive reports whether the child process is still running.
func (t *Terminal) Alive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Terminate sends SIGTERM to the child and closes the master
// descriptor, which unblocks any pending Read. Safe to call any number
// of times; the process is reaped exactly once, by the wait goroutine.
func (t *Terminal) Terminate() error {
	t.termOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()

		if t.cmd.Process != nil {
			_ = t.cmd.Process.Signal(syscall.SIGTERM)
		}
		_ = t.ptmx.Close()
	})
	return nil
}

// Done is closed once the child process has exited and been reaped.
func (t *Terminal) Done() <-chan struct{} { return t.done }
