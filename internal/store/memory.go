package store

import (
	"context"
	"sync"
)

type memorySession struct {
	nextOut int
	nextIn  int
	records map[Direction]map[int]Record
}

func newMemorySession() *memorySession {
	return &memorySession{
		nextOut: 1,
		nextIn:  1,
		records: map[Direction]map[int]Record{
			Outbound: make(map[int]Record),
			Inbound:  make(map[int]Record),
		},
	}
}

// MemoryStore keeps everything in process memory. History survives
// reconnects for as long as the process lives.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	claims   *localClaims
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		claims:   newLocalClaims(),
	}
}

func (s *MemoryStore) session(id string) *memorySession {
	ms, ok := s.sessions[id]
	if !ok {
		ms = newMemorySession()
		s.sessions[id] = ms
	}
	return ms
}

func (s *MemoryStore) NextOutgoing(ctx context.Context, id string) (int, error) {
	if err := validateID(id); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session(id).nextOut, nil
}

func (s *MemoryStore) NextIncoming(ctx context.Context, id string) (int, error) {
	if err := validateID(id); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session(id).nextIn, nil
}

func (s *MemoryStore) SetNextOutgoing(ctx context.Context, id string, seq int) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateSeq(seq); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session(id).nextOut = seq
	return nil
}

func (s *MemoryStore) SetNextIncoming(ctx context.Context, id string, seq int) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateSeq(seq); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session(id).nextIn = seq
	return nil
}

func (s *MemoryStore) StoreMessage(ctx context.Context, id string, rec Record) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateRecord(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session(id).records[rec.Direction][rec.SeqNum] = cloneRecord(rec)
	return nil
}

func (s *MemoryStore) GetMessages(ctx context.Context, id string, dir Direction, start, end int) ([]Record, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byDir := s.session(id).records[dir]
	out := make([]Record, 0, end-start+1)
	for seq := start; seq <= end; seq++ {
		rec, ok := byDir[seq]
		if !ok {
			break
		}
		out = append(out, cloneRecord(rec))
	}
	if err := checkContiguous(id, out, start, end); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MemoryStore) Purge(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = newMemorySession()
	return nil
}

func (s *MemoryStore) Claim(ctx context.Context, id string) (func(), error) {
	return s.claims.Claim(ctx, id)
}

func (s *MemoryStore) Close() error {
	return nil
}
