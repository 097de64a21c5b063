package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/fixgate/internal/session"
)

var (
	ErrUnknownSession   = errors.New("engine: unknown session")
	ErrDuplicateSession = errors.New("engine: duplicate session")
)

// Registry indexes sessions by their identity string.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*session.Session)}
}

func (r *Registry) Add(s *session.Session) error {
	key := s.ID().String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSession, key)
	}
	r.sessions[key] = s
	return nil
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) Get(id string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Statuses snapshots every session, ordered by identity.
func (r *Registry) Statuses() []session.Status {
	r.mu.RLock()
	out := make([]session.Status, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Status())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Logout asks an active session to log out and waits for it to finish.
func (r *Registry) Logout(ctx context.Context, id, text string) error {
	s, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return s.Logout(ctx, text)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
