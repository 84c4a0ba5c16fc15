package session

import "sync"

// history is a bounded byte buffer of recent PTY output. When full, the
// oldest bytes are dropped so that late-joining clients get at most the
// last max bytes, byte-for-byte.
type history struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newHistory(max int) *history {
	return &history{max: max}
}

func (h *history) append(p []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.max <= 0 {
		return
	}
	if len(p) >= h.max {
		h.buf = append(h.buf[:0], p[len(p)-h.max:]...)
		return
	}
	if over := len(h.buf) + len(p) - h.max; over > 0 {
		h.buf = h.buf[:copy(h.buf, h.buf[over:])]
	}
	h.buf = append(h.buf, p...)
}

func (h *history) bytes() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]byte(nil), h.buf...)
}
