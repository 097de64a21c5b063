package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerStoreConformance(t *testing.T) {
	runStoreConformance(t, func(t *testing.T) Store {
		s, err := OpenBadger(BadgerOptions{InMemory: true})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestBadgerStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	id := "FIX.4.2:DURABLE->PEER"

	s, err := OpenBadger(BadgerOptions{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, s.SetNextOutgoing(ctx, id, 3))
	require.NoError(t, s.StoreMessage(ctx, id, record(Outbound, 1, "A")))
	require.NoError(t, s.StoreMessage(ctx, id, record(Outbound, 2, "D")))
	require.NoError(t, s.Close())

	s, err = OpenBadger(BadgerOptions{Path: dir})
	require.NoError(t, err)
	defer s.Close()
	next, err := s.NextOutgoing(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, next)
	recs, err := s.GetMessages(ctx, id, Outbound, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "D", recs[1].MsgType)
}
