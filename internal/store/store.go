package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrCorruption      = errors.New("store: corruption")
	ErrInvalidRange    = errors.New("store: invalid range")
	ErrInvalidSeq      = errors.New("store: invalid sequence number")
	ErrIdentityClaimed = errors.New("store: identity already claimed")
	ErrIdentityEmpty   = errors.New("store: identity required")
	ErrUnsupportedDSN  = errors.New("store: unsupported dsn")
	ErrClosed          = errors.New("store: closed")
)

type Direction uint8

const (
	Outbound Direction = iota + 1
	Inbound
)

func (d Direction) String() string {
	switch d {
	case Outbound:
		return "out"
	case Inbound:
		return "in"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

func ParseDirection(raw string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "out", "outbound":
		return Outbound, nil
	case "in", "inbound":
		return Inbound, nil
	default:
		return 0, fmt.Errorf("store: unknown direction %q", raw)
	}
}

// Record is one stored message.
type Record struct {
	SeqNum    int       `json:"seq"`
	Direction Direction `json:"direction"`
	MsgType   string    `json:"msg_type"`
	Raw       []byte    `json:"raw"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists sequence counters and message records keyed by session
// identity. Counters of an unknown identity read as 1.
type Store interface {
	NextOutgoing(ctx context.Context, id string) (int, error)
	NextIncoming(ctx context.Context, id string) (int, error)
	SetNextOutgoing(ctx context.Context, id string, seq int) error
	SetNextIncoming(ctx context.Context, id string, seq int) error

	StoreMessage(ctx context.Context, id string, rec Record) error
	// GetMessages returns records start..end inclusive in ascending order,
	// or ErrCorruption if any sequence number in the range is missing.
	GetMessages(ctx context.Context, id string, dir Direction, start, end int) ([]Record, error)

	// Purge resets both counters to 1 and drops all records.
	Purge(ctx context.Context, id string) error

	// Claim grants single-writer ownership of id until release is called.
	Claim(ctx context.Context, id string) (release func(), err error)

	Close() error
}

// LeaseWatcher is implemented by stores whose claims are leases that can
// expire under the holder.
type LeaseWatcher interface {
	// Lost returns a channel closed when the current claim of id is lost.
	Lost(id string) <-chan struct{}
}

// ClaimLost returns s's loss signal for id, or nil (never ready) when
// claims on s cannot be lost.
func ClaimLost(s Store, id string) <-chan struct{} {
	if w, ok := s.(LeaseWatcher); ok {
		return w.Lost(id)
	}
	return nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrIdentityEmpty
	}
	return nil
}

func validateSeq(seq int) error {
	if seq < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidSeq, seq)
	}
	return nil
}

func validateRecord(rec Record) error {
	if err := validateSeq(rec.SeqNum); err != nil {
		return err
	}
	if rec.Direction != Outbound && rec.Direction != Inbound {
		return fmt.Errorf("store: invalid direction %d", rec.Direction)
	}
	return nil
}

func validateRange(start, end int) error {
	if start < 1 || end < start {
		return fmt.Errorf("%w: start=%d end=%d", ErrInvalidRange, start, end)
	}
	return nil
}

// checkContiguous verifies recs holds exactly start..end in order.
func checkContiguous(id string, recs []Record, start, end int) error {
	want := start
	for _, rec := range recs {
		if rec.SeqNum != want {
			return fmt.Errorf("%w: id=%q missing seq=%d", ErrCorruption, id, want)
		}
		want++
	}
	if want != end+1 {
		return fmt.Errorf("%w: id=%q missing seq=%d", ErrCorruption, id, want)
	}
	return nil
}

func cloneRecord(rec Record) Record {
	raw := make([]byte, len(rec.Raw))
	copy(raw, rec.Raw)
	rec.Raw = raw
	return rec
}
