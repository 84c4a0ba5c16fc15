// Package hub bridges websocket clients onto terminal sessions.
//
// The wire protocol is JSON text frames. Client to server:
//
//	{"type":"stdin","data":"ls\n"}
//	{"type":"resize","rows":50,"cols":132}
//	{"type":"disconnect"}
//
// Server to client:
//
//	{"type":"stdout","data":"..."}
//	{"type":"ended"}
//
// Frames are decoded exactly once, here, into closed variant types; the
// rest of the code never inspects raw JSON.
package hub

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrBadFrame reports a malformed or unknown client frame. It is fatal
// for the offending bridge only, never for the session.
var ErrBadFrame = errors.New("hub: malformed frame")

// ClientFrame is a decoded client-to-server message: StdinFrame,
// ResizeFrame, or DisconnectFrame.
type ClientFrame interface{ clientFrame() }

// StdinFrame carries keystrokes destined for the PTY.
type StdinFrame struct{ Data string }

// ResizeFrame carries new terminal dimensions.
type ResizeFrame struct{ Rows, Cols uint16 }

// DisconnectFrame is a client-initiated orderly close.
type DisconnectFrame struct{}

func (StdinFrame) clientFrame()      {}
func (ResizeFrame) clientFrame()     {}
func (DisconnectFrame) clientFrame() {}

// ServerFrame is a decoded server-to-client message: StdoutFrame or
// EndedFrame. Decoding server frames is only needed by clients (and
// tests); the server itself just encodes them.
type ServerFrame interface{ serverFrame() }

// StdoutFrame carries PTY output.
type StdoutFrame struct{ Data string }

// EndedFrame tells the client its session's process is gone.
type EndedFrame struct{}

func (StdoutFrame) serverFrame() {}
func (EndedFrame) serverFrame()  {}

type wireFrame struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
	Cols uint16 `json:"cols,omitempty"`
}

// DecodeClientFrame parses one raw websocket message.
func DecodeClientFrame(raw []byte) (ClientFrame, error) {
	var f wireFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	switch f.Type {
	case "stdin":
		return StdinFrame{Data: f.Data}, nil
	case "resize":
		if f.Rows == 0 || f.Cols == 0 {
			return nil, fmt.Errorf("%w: resize to %dx%d", ErrBadFrame, f.Rows, f.Cols)
		}
		return ResizeFrame{Rows: f.Rows, Cols: f.Cols}, nil
	case "disconnect":
		return DisconnectFrame{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrBadFrame, f.Type)
	}
}

// DecodeServerFrame parses one raw server-to-client message.
func DecodeServerFrame(raw []byte) (ServerFrame, error) {
	var f wireFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	switch f.Type {
	case "stdout":
		return StdoutFrame{Data: f.Data}, nil
	case "ended":
		return EndedFrame{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrBadFrame, f.Type)
	}
}

func encodeStdout(data []byte) []byte {
	b, _ := json.Marshal(wireFrame{Type: "stdout", Data: string(data)})
	return b
}

func encodeEnded() []byte {
	b, _ := json.Marshal(wireFrame{Type: "ended"})
	return b
}

// EncodeStdin builds a client stdin frame. Exported for client code.
func EncodeStdin(data string) []byte {
	b, _ := json.Marshal(wireFrame{Type: "stdin", Data: data})
	return b
}

// EncodeResize builds a client resize frame.
func EncodeResize(rows, cols uint16) []byte {
	b, _ := json.Marshal(wireFrame{Type: "resize", Rows: rows, Cols: cols})
	return b
}

// EncodeDisconnect builds a client disconnect frame.
func EncodeDisconnect() []byte {
	b, _ := json.Marshal(wireFrame{Type: "disconnect"})
	return b
}
