package hub

import (
	"errors"
	"testing"
)

func TestDecodeClientFrame(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ClientFrame
	}{
		{"stdin", `{"type":"stdin","data":"ls\n"}`, StdinFrame{Data: "ls\n"}},
		{"stdin empty", `{"type":"stdin"}`, StdinFrame{}},
		{"resize", `{"type":"resize","rows":50,"cols":132}`, ResizeFrame{Rows: 50, Cols: 132}},
		{"disconnect", `{"type":"disconnect"}`, DisconnectFrame{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeClientFrame([]byte(tt.raw))
			if err != nil {
				t.Fatalf("DecodeClientFrame(%s): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("DecodeClientFrame(%s) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestDecodeClientFrameRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `hello`},
		{"unknown type", `{"type":"reboot"}`},
		{"resize missing dims", `{"type":"resize"}`},
		{"resize zero rows", `{"type":"resize","rows":0,"cols":80}`},
		{"server frame on client path", `{"type":"stdout","data":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeClientFrame([]byte(tt.raw))
			if !errors.Is(err, ErrBadFrame) {
				t.Errorf("DecodeClientFrame(%s) error = %v, want ErrBadFrame", tt.raw, err)
			}
		})
	}
}

func TestServerFrameRoundTrip(t *testing.T) {
	out, err := DecodeServerFrame(encodeStdout([]byte("hi there")))
	if err != nil {
		t.Fatalf("DecodeServerFrame(stdout): %v", err)
	}
	if got, ok := out.(StdoutFrame); !ok || got.Data != "hi there" {
		t.Errorf("decoded stdout = %#v, want StdoutFrame{hi there}", out)
	}

	ended, err := DecodeServerFrame(encodeEnded())
	if err != nil {
		t.Fatalf("DecodeServerFrame(ended): %v", err)
	}
	if _, ok := ended.(EndedFrame); !ok {
		t.Errorf("decoded ended = %#v, want EndedFrame", ended)
	}
}

func TestClientFrameEncodeDecode(t *testing.T) {
	f, err := DecodeClientFrame(EncodeStdin("echo hi\n"))
	if err != nil {
		t.Fatalf("decode stdin: %v", err)
	}
	if f != (StdinFrame{Data: "echo hi\n"}) {
		t.Errorf("stdin round trip = %#v", f)
	}

	f, err = DecodeClientFrame(EncodeResize(24, 80))
	if err != nil {
		t.Fatalf("decode resize: %v", err)
	}
	if f != (ResizeFrame{Rows: 24, Cols: 80}) {
		t.Errorf("resize round trip = %#v", f)
	}

	f, err = DecodeClientFrame(EncodeDisconnect())
	if err != nil {
		t.Fatalf("decode disconnect: %v", err)
	}
	if f != (DisconnectFrame{}) {
		t.Errorf("disconnect round trip = %#v", f)
	}
}
