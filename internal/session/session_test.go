package session

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// fakeTerm is an in-memory Term. Output is injected with emit; Terminate
// closes the stream, which ends the session like a real process exit.
type fakeTerm struct {
	out chan []byte

	mu         sync.Mutex
	input      bytes.Buffer
	rows, cols uint16
	terminated int

	closeOnce sync.Once
}

func newFakeTerm() *fakeTerm {
	return &fakeTerm{out: make(chan []byte, 64)}
}

func (f *fakeTerm) emit(data string) { f.out <- []byte(data) }

func (f *fakeTerm) Read(p []byte) (int, error) {
	chunk, ok := <-f.out
	if !ok {
		return 0, io.EOF
	}
	return copy(p, chunk), nil
}

func (f *fakeTerm) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input.Write(p)
}

func (f *fakeTerm) Resize(rows, cols uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows, f.cols = rows, cols
	return nil
}

func (f *fakeTerm) Terminate() error {
	f.mu.Lock()
	f.terminated++
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.out) })
	return nil
}

func (f *fakeTerm) terminations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminated
}

// fakeViewer records delivered chunks. With refuse set it rejects every
// enqueue, simulating a client whose outbound queue is full.
type fakeViewer struct {
	mu     sync.Mutex
	chunks [][]byte
	refuse bool
	ended  bool
}

func (v *fakeViewer) QueueOutput(data []byte) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.refuse {
		return false
	}
	v.chunks = append(v.chunks, append([]byte(nil), data...))
	return true
}

func (v *fakeViewer) SessionEnded() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ended = true
}

func (v *fakeViewer) received() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	var all []byte
	for _, c := range v.chunks {
		all = append(all, c...)
	}
	return all
}

func (v *fakeViewer) isEnded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ended
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startSession(t *testing.T, historyMax int) (*Session, *fakeTerm) {
	t.Helper()
	term := newFakeTerm()
	s := newSession("test", term, historyMax)
	go s.run()
	t.Cleanup(func() {
		term.Terminate()
		<-s.done
	})
	return s, term
}

func TestHistoryReplayOnAttach(t *testing.T) {
	s, term := startSession(t, 1024)

	term.emit("one ")
	term.emit("two")
	waitFor(t, "history to fill", func() bool {
		return string(s.History()) == "one two"
	})

	// A late joiner must see the buffered output before anything live.
	late := &fakeViewer{}
	if err := s.Attach(late); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if got := string(late.received()); got != "one two" {
		t.Errorf("replayed history = %q, want %q", got, "one two")
	}

	term.emit("!")
	waitFor(t, "live output after replay", func() bool {
		return string(late.received()) == "one two!"
	})
}

func TestHistoryKeepsOnlyNewestBytes(t *testing.T) {
	s, term := startSession(t, 4)

	term.emit("abc")
	term.emit("def")
	waitFor(t, "history to converge", func() bool {
		return string(s.History()) == "cdef"
	})

	// One chunk larger than the cap keeps only its tail.
	term.emit("0123456789")
	waitFor(t, "oversized chunk to be trimmed", func() bool {
		return string(s.History()) == "6789"
	})
}

func TestOutputOrderingPerViewer(t *testing.T) {
	s, term := startSession(t, 64*1024)

	v := &fakeViewer{}
	if err := s.Attach(v); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	var want bytes.Buffer
	for _, chunk := range []string{"B1", "B2", "B3", "B4", "B5"} {
		want.WriteString(chunk)
		term.emit(chunk)
	}

	waitFor(t, "all chunks to arrive in order", func() bool {
		return bytes.Equal(v.received(), want.Bytes())
	})
}

func TestViewerIsolationOnRefusal(t *testing.T) {
	s, term := startSession(t, 1024)

	stuck := &fakeViewer{refuse: true}
	healthy := &fakeViewer{}
	if err := s.Attach(stuck); err != nil {
		t.Fatalf("Attach stuck: %v", err)
	}
	if err := s.Attach(healthy); err != nil {
		t.Fatalf("Attach healthy: %v", err)
	}

	term.emit("data")
	waitFor(t, "healthy viewer to receive", func() bool {
		return string(healthy.received()) == "data"
	})
	if len(stuck.received()) != 0 {
		t.Errorf("refusing viewer unexpectedly received %q", stuck.received())
	}

	// The stuck viewer must not have broken further delivery.
	term.emit(" more")
	waitFor(t, "delivery to continue", func() bool {
		return string(healthy.received()) == "data more"
	})
}

func TestInputAndResizeForwarding(t *testing.T) {
	s, term := startSession(t, 1024)

	if err := s.ForwardInput([]byte("ls\n")); err != nil {
		t.Fatalf("ForwardInput: %v", err)
	}
	if err := s.ForwardResize(50, 132); err != nil {
		t.Fatalf("ForwardResize: %v", err)
	}

	term.mu.Lock()
	input, rows, cols := term.input.String(), term.rows, term.cols
	term.mu.Unlock()
	if input != "ls\n" {
		t.Errorf("terminal input = %q, want %q", input, "ls\n")
	}
	if rows != 50 || cols != 132 {
		t.Errorf("terminal size = %dx%d, want 50x132", rows, cols)
	}
}

func TestProcessExitNotifiesAllViewers(t *testing.T) {
	s, term := startSession(t, 1024)

	a := &fakeViewer{}
	b := &fakeViewer{}
	if err := s.Attach(a); err != nil {
		t.Fatalf("Attach a: %v", err)
	}
	if err := s.Attach(b); err != nil {
		t.Fatalf("Attach b: %v", err)
	}

	term.Terminate()
	waitFor(t, "viewers to learn about the exit", func() bool {
		return a.isEnded() && b.isEnded()
	})

	if err := s.Attach(&fakeViewer{}); !errors.Is(err, ErrEnded) {
		t.Errorf("Attach after end = %v, want ErrEnded", err)
	}
	if s.ViewerCount() != 0 {
		t.Errorf("ViewerCount after end = %d, want 0", s.ViewerCount())
	}
}

func TestDetachUnknownViewerIsNoop(t *testing.T) {
	s, _ := startSession(t, 1024)
	s.Detach(&fakeViewer{}) // must not panic or fire teardown
	if s.ViewerCount() != 0 {
		t.Errorf("ViewerCount = %d, want 0", s.ViewerCount())
	}
}
