package hub

import (
	"errors"
	"log/slog"
	"net/http"

	"nhooyr.io/websocket"

	"github.com/user/webterm/internal/session"
)

const maxFrameBytes = 32 * 1024

// Handler accepts websocket connections and bridges each one onto a
// session resolved by the Manager.
type Handler struct {
	manager *session.Manager
}

// NewHandler creates the websocket endpoint handler.
func NewHandler(m *session.Manager) *Handler {
	return &Handler{manager: m}
}

// HandleWebSocket upgrades the request and runs a Bridge until the
// client or the session goes away. The optional "session" query
// parameter is passed to the manager as an identifier hint.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	sess, err := h.manager.GetOrCreate(r.URL.Query().Get("session"))
	if err != nil {
		if errors.Is(err, session.ErrShuttingDown) {
			conn.Close(websocket.StatusTryAgainLater, "server shutting down")
			return
		}
		slog.Error("failed to start session", "error", err)
		conn.Close(websocket.StatusInternalError, "failed to start session")
		return
	}

	b := NewBridge(sess, conn)
	if err := b.Run(r.Context()); err != nil {
		slog.Warn("bridge closed with error", "session", sess.ID(), "error", err)
	}
}
