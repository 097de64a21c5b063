package frame

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func wire(s string) string {
	return strings.ReplaceAll(s, "|", "\x01")
}

const heartbeat = "8=FIX.4.2|9=5|35=0|10=161|"

func TestReadMessageSplitsConsecutiveMessages(t *testing.T) {
	stream := wire(heartbeat + heartbeat)
	r := bufio.NewReader(strings.NewReader(stream))
	for i := 0; i < 2; i++ {
		raw, err := ReadMessage(r, DefaultLimits())
		if err != nil {
			t.Fatalf("read message %d: %v", i, err)
		}
		if string(raw) != wire(heartbeat) {
			t.Fatalf("message %d mismatch: %q", i, raw)
		}
	}
	if _, err := ReadMessage(r, DefaultLimits()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at boundary, got %v", err)
	}
}

func TestReadMessageTruncatedIsUnexpectedEOF(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(wire("8=FIX.4.2|9=5|35=")))
	if _, err := ReadMessage(r, DefaultLimits()); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadMessageMalformedPrefixIsDeterministic(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(wire("9=5|8=FIX.4.2|")))
	if _, err := ReadMessage(r, DefaultLimits()); !errors.Is(err, ErrGarbled) {
		t.Fatalf("expected ErrGarbled, got %v", err)
	}
}

func TestReadMessageBodyLimit(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(wire("8=FIX.4.2|9=4096|")))
	limits := Limits{MaxBodyBytes: 1024, MaxPrefixBytes: 32}
	if _, err := ReadMessage(r, limits); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}

func TestReadMessageBadTrailer(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(wire("8=FIX.4.2|9=5|35=0|11=161|")))
	if _, err := ReadMessage(r, DefaultLimits()); !errors.Is(err, ErrGarbled) {
		t.Fatalf("expected ErrGarbled, got %v", err)
	}
}

func TestWriteMessage(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, []byte(wire(heartbeat))); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.String() != wire(heartbeat) {
		t.Fatalf("unexpected bytes: %q", buf.String())
	}
}
