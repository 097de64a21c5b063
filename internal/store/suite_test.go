package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(dir Direction, seq int, msgType string) Record {
	return Record{
		SeqNum:    seq,
		Direction: dir,
		MsgType:   msgType,
		Raw:       []byte(fmt.Sprintf("8=FIX.4.2\x0135=%s\x0134=%d\x01", msgType, seq)),
		Timestamp: time.Date(2024, 1, 2, 3, 4, seq, 0, time.UTC),
	}
}

// runStoreConformance exercises the Store contract shared by every backend.
func runStoreConformance(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("counters default to one", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		out, err := s.NextOutgoing(ctx, "FIX.4.2:FRESH->PEER")
		require.NoError(t, err)
		in, err := s.NextIncoming(ctx, "FIX.4.2:FRESH->PEER")
		require.NoError(t, err)
		assert.Equal(t, 1, out)
		assert.Equal(t, 1, in)
	})

	t.Run("counters persist", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := "FIX.4.2:TESTCLIENT->TESTSERVER"
		require.NoError(t, s.SetNextOutgoing(ctx, id, 42))
		require.NoError(t, s.SetNextIncoming(ctx, id, 7))
		out, err := s.NextOutgoing(ctx, id)
		require.NoError(t, err)
		in, err := s.NextIncoming(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 42, out)
		assert.Equal(t, 7, in)
		assert.Error(t, s.SetNextOutgoing(ctx, id, 0))
	})

	t.Run("messages returned in order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := "FIX.4.2:ORDERED->PEER"
		for _, seq := range []int{3, 1, 2, 4} {
			require.NoError(t, s.StoreMessage(ctx, id, record(Outbound, seq, "D")))
		}
		require.NoError(t, s.StoreMessage(ctx, id, record(Inbound, 1, "8")))

		recs, err := s.GetMessages(ctx, id, Outbound, 2, 4)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		for i, rec := range recs {
			assert.Equal(t, 2+i, rec.SeqNum)
			assert.Equal(t, Outbound, rec.Direction)
			assert.Equal(t, "D", rec.MsgType)
			assert.Equal(t, record(Outbound, 2+i, "D").Raw, rec.Raw)
		}

		in, err := s.GetMessages(ctx, id, Inbound, 1, 1)
		require.NoError(t, err)
		require.Len(t, in, 1)
		assert.Equal(t, "8", in[0].MsgType)
	})

	t.Run("hole is corruption", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := "FIX.4.2:HOLEY->PEER"
		for _, seq := range []int{1, 2, 4} {
			require.NoError(t, s.StoreMessage(ctx, id, record(Outbound, seq, "0")))
		}
		_, err := s.GetMessages(ctx, id, Outbound, 1, 4)
		assert.True(t, errors.Is(err, ErrCorruption), "expected ErrCorruption, got %v", err)

		_, err = s.GetMessages(ctx, id, Outbound, 1, 9)
		assert.True(t, errors.Is(err, ErrCorruption), "expected ErrCorruption past the tail, got %v", err)

		_, err = s.GetMessages(ctx, id, Outbound, 3, 2)
		assert.True(t, errors.Is(err, ErrInvalidRange), "expected ErrInvalidRange, got %v", err)
	})

	t.Run("purge resets", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := "FIX.4.2:PURGED->PEER"
		other := "FIX.4.2:KEPT->PEER"
		require.NoError(t, s.SetNextOutgoing(ctx, id, 10))
		require.NoError(t, s.SetNextIncoming(ctx, id, 11))
		require.NoError(t, s.StoreMessage(ctx, id, record(Outbound, 1, "A")))
		require.NoError(t, s.StoreMessage(ctx, other, record(Outbound, 1, "A")))

		require.NoError(t, s.Purge(ctx, id))
		out, err := s.NextOutgoing(ctx, id)
		require.NoError(t, err)
		in, err := s.NextIncoming(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, out)
		assert.Equal(t, 1, in)
		_, err = s.GetMessages(ctx, id, Outbound, 1, 1)
		assert.True(t, errors.Is(err, ErrCorruption))

		kept, err := s.GetMessages(ctx, other, Outbound, 1, 1)
		require.NoError(t, err)
		assert.Len(t, kept, 1)
	})

	t.Run("claims are exclusive", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := "FIX.4.2:CLAIMED->PEER"
		release, err := s.Claim(ctx, id)
		require.NoError(t, err)
		_, err = s.Claim(ctx, id)
		assert.True(t, errors.Is(err, ErrIdentityClaimed), "expected ErrIdentityClaimed, got %v", err)
		release()
		release()
		again, err := s.Claim(ctx, id)
		require.NoError(t, err)
		again()
	})
}
