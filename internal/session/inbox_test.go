package session

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/danmuck/fixgate/internal/protocol"
	"github.com/danmuck/fixgate/internal/testutil/testlog"
)

func TestGapBufferOrdering(t *testing.T) {
	testlog.Start(t)
	var b gapBuffer
	for _, seq := range []int{9, 7, 8} {
		if !b.Put(pendingMessage{seq: seq}) {
			t.Fatalf("put seq=%d failed", seq)
		}
	}
	if b.Put(pendingMessage{seq: 8}) {
		t.Fatalf("duplicate put accepted")
	}
	if b.Min() != 7 || b.Len() != 3 {
		t.Fatalf("min=%d len=%d", b.Min(), b.Len())
	}
	if dropped := b.DropBelow(8); dropped != 1 {
		t.Fatalf("dropped=%d", dropped)
	}
	if _, ok := b.Take(7); ok {
		t.Fatalf("seq 7 should be gone")
	}
	if p, ok := b.Take(8); !ok || p.seq != 8 {
		t.Fatalf("take 8 failed")
	}
}

func TestDeliveryQueueDrainsBeforeTerminalError(t *testing.T) {
	testlog.Start(t)
	q := newDeliveryQueue()
	q.Push(protocol.NewMessage("D"), protocol.NewMessage("8"))
	boom := errors.New("boom")
	q.Close(boom)
	q.Push(protocol.NewMessage("F"))

	ctx := context.Background()
	for _, want := range []string{"D", "8"} {
		msg, err := q.Next(ctx)
		if err != nil || msg.MsgType() != want {
			t.Fatalf("next=%v err=%v want=%s", msg, err, want)
		}
	}
	if _, err := q.Next(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected terminal error, got %v", err)
	}
}

func TestDeliveryQueueCleanCloseIsEOF(t *testing.T) {
	testlog.Start(t)
	q := newDeliveryQueue()
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Close(nil)
	}()
	if _, err := q.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestDeliveryQueueHonorsContext(t *testing.T) {
	testlog.Start(t)
	q := newDeliveryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}
