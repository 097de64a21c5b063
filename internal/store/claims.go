package store

import (
	"context"
	"fmt"
	"sync"
)

// localClaims serializes identities within one process.
type localClaims struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newLocalClaims() *localClaims {
	return &localClaims{held: make(map[string]struct{})}
}

func (c *localClaims) Claim(_ context.Context, id string) (func(), error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.held[id]; ok {
		return nil, fmt.Errorf("%w: %q", ErrIdentityClaimed, id)
	}
	c.held[id] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.held, id)
		})
	}, nil
}
