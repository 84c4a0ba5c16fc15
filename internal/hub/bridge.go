package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"

	"github.com/user/webterm/internal/session"
)

const (
	sendQueueCapacity = 256
	pingInterval      = 30 * time.Second
)

// Internal pump outcomes that mean an orderly stop, not a failure.
var (
	errClientClosed = errors.New("hub: client disconnected")
	errSessionOver  = errors.New("hub: session ended")
)

// Bridge pumps bytes between one websocket client and its session. It
// is the session's Viewer: output lands on the send queue and a write
// pump drains it to the socket, so broadcast never blocks on the
// network.
type Bridge struct {
	sess *session.Session
	conn *websocket.Conn

	send    chan []byte
	ended   chan struct{}
	endOnce sync.Once
}

// NewBridge wires a freshly accepted connection to a session. Run must
// be called to start pumping.
func NewBridge(sess *session.Session, conn *websocket.Conn) *Bridge {
	return &Bridge{
		sess: sess,
		conn: conn,
		send: make(chan []byte, sendQueueCapacity),
		ended: make(chan struct{}),
	}
}

// QueueOutput implements session.Viewer. A full queue refuses the
// chunk; the session drops it for this bridge only.
func (b *Bridge) QueueOutput(data []byte) bool {
	select {
	case b.send <- encodeStdout(data):
		return true
	default:
		return false
	}
}

// SessionEnded implements session.Viewer. The write pump flushes what
// is already queued, sends the ended frame, and stops.
func (b *Bridge) SessionEnded() {
	b.endOnce.Do(func() { close(b.ended) })
}

// Run attaches to the session and drives both pumps until the client
// disconnects, the session ends, or ctx is cancelled. It always
// detaches and releases the connection before returning.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.sess.Attach(b); err != nil {
		// Session died between lookup and attach; tell the client and go.
		_ = b.conn.Write(ctx, websocket.MessageText, encodeEnded())
		b.conn.Close(websocket.StatusNormalClosure, "session ended")
		return nil
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error { return b.readPump(gctx) })
	grp.Go(func() error { return b.writePump(gctx) })
	err := grp.Wait()

	b.sess.Detach(b)
	b.conn.Close(websocket.StatusNormalClosure, "")

	switch {
	case err == nil,
		errors.Is(err, errClientClosed),
		errors.Is(err, errSessionOver),
		errors.Is(err, context.Canceled):
		return nil
	}
	return err
}

// readPump reads client frames and dispatches them to the session. A
// malformed frame closes this bridge; the session and its other
// viewers are unaffected.
func (b *Bridge) readPump(ctx context.Context) error {
	for {
		_, raw, err := b.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return errClientClosed
			}
			return errors.Join(errClientClosed, err)
		}

		frame, err := DecodeClientFrame(raw)
		if err != nil {
			slog.Warn("closing bridge on bad frame", "session", b.sess.ID(), "error", err)
			return err
		}

		switch f := frame.(type) {
		case StdinFrame:
			if err := b.sess.ForwardInput([]byte(f.Data)); err != nil {
				return err
			}
		case ResizeFrame:
			if err := b.sess.ForwardResize(f.Rows, f.Cols); err != nil {
				return err
			}
		case DisconnectFrame:
			return errClientClosed
		}
	}
}

// writePump drains the send queue to the socket and keeps the
// connection alive with pings. When the session ends it flushes the
// backlog, delivers the ended frame, and stops.
func (b *Bridge) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := b.conn.Ping(ctx); err != nil {
				return err
			}
		case msg := <-b.send:
			if err := b.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return err
			}
		case <-b.ended:
			for {
				select {
				case msg := <-b.send:
					if err := b.conn.Write(ctx, websocket.MessageText, msg); err != nil {
						return err
					}
				default:
					_ = b.conn.Write(ctx, websocket.MessageText, encodeEnded())
					return errSessionOver
				}
			}
		}
	}
}
