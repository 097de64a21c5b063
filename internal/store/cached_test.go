package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedStoreConformance(t *testing.T) {
	runStoreConformance(t, func(t *testing.T) Store {
		s, err := NewCachedStore(NewMemoryStore(), 64)
		require.NoError(t, err)
		return s
	})
}

// countingStore counts reads that reach the backend.
type countingStore struct {
	Store
	reads int
}

func (c *countingStore) GetMessages(ctx context.Context, id string, dir Direction, start, end int) ([]Record, error) {
	c.reads++
	return c.Store.GetMessages(ctx, id, dir, start, end)
}

func TestCachedStoreServesWritesFromCache(t *testing.T) {
	inner := &countingStore{Store: NewMemoryStore()}
	s, err := NewCachedStore(inner, 16)
	require.NoError(t, err)
	ctx := context.Background()
	id := "FIX.4.2:CACHED->PEER"
	for seq := 1; seq <= 3; seq++ {
		require.NoError(t, s.StoreMessage(ctx, id, record(Outbound, seq, "D")))
	}
	recs, err := s.GetMessages(ctx, id, Outbound, 1, 3)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.Equal(t, 0, inner.reads)

	require.NoError(t, s.Purge(ctx, id))
	_, err = s.GetMessages(ctx, id, Outbound, 1, 1)
	assert.ErrorIs(t, err, ErrCorruption)
	assert.Equal(t, 1, inner.reads)
}

func TestCachedStoreClaimDropsHistoryRewrittenElsewhere(t *testing.T) {
	shared := NewMemoryStore()
	a, err := NewCachedStore(shared, 16)
	require.NoError(t, err)
	b, err := NewCachedStore(shared, 16)
	require.NoError(t, err)
	ctx := context.Background()
	id := "FIX.4.2:CACHED->PEER"

	releaseA, err := a.Claim(ctx, id)
	require.NoError(t, err)
	for seq := 1; seq <= 3; seq++ {
		require.NoError(t, a.StoreMessage(ctx, id, record(Outbound, seq, "D")))
	}
	_, err = a.GetMessages(ctx, id, Outbound, 1, 3)
	require.NoError(t, err)
	releaseA()

	releaseB, err := b.Claim(ctx, id)
	require.NoError(t, err)
	require.NoError(t, b.Purge(ctx, id))
	for seq := 1; seq <= 2; seq++ {
		require.NoError(t, b.StoreMessage(ctx, id, record(Outbound, seq, "8")))
	}
	releaseB()

	releaseA, err = a.Claim(ctx, id)
	require.NoError(t, err)
	defer releaseA()
	recs, err := a.GetMessages(ctx, id, Outbound, 1, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, "8", rec.MsgType, "seq %d served from a stale cache", rec.SeqNum)
	}
	_, err = a.GetMessages(ctx, id, Outbound, 3, 3)
	assert.ErrorIs(t, err, ErrCorruption)
}

func TestNewCachedStoreRejectsZeroSize(t *testing.T) {
	_, err := NewCachedStore(NewMemoryStore(), 0)
	assert.Error(t, err)
}
