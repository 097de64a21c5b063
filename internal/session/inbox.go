package session

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/danmuck/fixgate/internal/protocol"
)

// pendingMessage is an inbound message held until the sequence gap before
// it closes. Handled marks messages whose effect already ran out of order
// (a gapped ResendRequest, or a Logon that revealed a gap); releasing them
// only advances the expected sequence.
type pendingMessage struct {
	seq     int
	msg     *protocol.Message
	raw     []byte
	handled bool
}

// gapBuffer is loop-owned and unsynchronized.
type gapBuffer struct {
	items map[int]pendingMessage
}

func (b *gapBuffer) Put(p pendingMessage) bool {
	if b.items == nil {
		b.items = make(map[int]pendingMessage)
	}
	if _, ok := b.items[p.seq]; ok {
		return false
	}
	b.items[p.seq] = p
	return true
}

func (b *gapBuffer) Take(seq int) (pendingMessage, bool) {
	p, ok := b.items[seq]
	if ok {
		delete(b.items, seq)
	}
	return p, ok
}

// DropBelow discards buffered messages the expected sequence has passed.
func (b *gapBuffer) DropBelow(seq int) int {
	n := 0
	for s := range b.items {
		if s < seq {
			delete(b.items, s)
			n++
		}
	}
	return n
}

func (b *gapBuffer) Len() int { return len(b.items) }

func (b *gapBuffer) Min() int {
	seqs := b.Seqs()
	if len(seqs) == 0 {
		return 0
	}
	return seqs[0]
}

func (b *gapBuffer) Seqs() []int {
	out := make([]int, 0, len(b.items))
	for s := range b.items {
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}

// deliveryQueue hands application messages to the consumer in order.
// Push appends a whole run under one lock so a released gap run is never
// observed half-delivered.
type deliveryQueue struct {
	mu     sync.Mutex
	items  []*protocol.Message
	ready  chan struct{}
	closed chan struct{}
	done   bool
	err    error
}

func newDeliveryQueue() *deliveryQueue {
	return &deliveryQueue{
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (q *deliveryQueue) Push(msgs ...*protocol.Message) {
	if len(msgs) == 0 {
		return
	}
	q.mu.Lock()
	if q.done {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, msgs...)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Close ends the stream once queued messages drain. A nil err ends it with
// io.EOF.
func (q *deliveryQueue) Close(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.done {
		return
	}
	q.done = true
	q.err = err
	close(q.closed)
}

func (q *deliveryQueue) Next(ctx context.Context) (*protocol.Message, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return msg, nil
		}
		if q.done {
			err := q.err
			q.mu.Unlock()
			if err == nil {
				err = io.EOF
			}
			return nil, err
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.ready:
		case <-q.closed:
		}
	}
}

func (q *deliveryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
