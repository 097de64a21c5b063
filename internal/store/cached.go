package store

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheKey struct {
	id  string
	dir Direction
	seq int
}

// CachedStore serves resend reads from an LRU of recent records and
// delegates everything else to the wrapped store.
type CachedStore struct {
	Store
	cache *lru.Cache[cacheKey, Record]
}

func NewCachedStore(inner Store, size int) (*CachedStore, error) {
	cache, err := lru.New[cacheKey, Record](size)
	if err != nil {
		return nil, fmt.Errorf("store: cache size %d: %w", size, err)
	}
	return &CachedStore{Store: inner, cache: cache}, nil
}

func (s *CachedStore) StoreMessage(ctx context.Context, id string, rec Record) error {
	if err := s.Store.StoreMessage(ctx, id, rec); err != nil {
		return err
	}
	s.cache.Add(cacheKey{id: id, dir: rec.Direction, seq: rec.SeqNum}, cloneRecord(rec))
	return nil
}

func (s *CachedStore) GetMessages(ctx context.Context, id string, dir Direction, start, end int) ([]Record, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	out := make([]Record, 0, end-start+1)
	for seq := start; seq <= end; seq++ {
		rec, ok := s.cache.Get(cacheKey{id: id, dir: dir, seq: seq})
		if !ok {
			return s.fill(ctx, id, dir, start, end)
		}
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

func (s *CachedStore) fill(ctx context.Context, id string, dir Direction, start, end int) ([]Record, error) {
	recs, err := s.Store.GetMessages(ctx, id, dir, start, end)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		s.cache.Add(cacheKey{id: id, dir: dir, seq: rec.SeqNum}, cloneRecord(rec))
	}
	return recs, nil
}

// Claim drops every cached record of id once the claim is held, and again
// on release. Another process may have rewritten the identity's history
// while this one did not hold it.
func (s *CachedStore) Claim(ctx context.Context, id string) (func(), error) {
	release, err := s.Store.Claim(ctx, id)
	if err != nil {
		return nil, err
	}
	s.forget(id)
	return func() {
		s.forget(id)
		release()
	}, nil
}

// Lost forwards the wrapped store's claim loss signal.
func (s *CachedStore) Lost(id string) <-chan struct{} {
	return ClaimLost(s.Store, id)
}

func (s *CachedStore) Purge(ctx context.Context, id string) error {
	err := s.Store.Purge(ctx, id)
	s.forget(id)
	return err
}

func (s *CachedStore) forget(id string) {
	for _, k := range s.cache.Keys() {
		if k.id == id {
			s.cache.Remove(k)
		}
	}
}
