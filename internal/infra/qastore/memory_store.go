package qastore

import (
	"context"
	"sync"

	"github.com/yanqian/formfiller/internal/domain/qacache"
)

// MemoryStore keeps the history in process memory for tests/dev and when no
// persistence is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	pairs []qacache.Pair
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements qacache.Store.
func (s *MemoryStore) Load(_ context.Context) ([]qacache.Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]qacache.Pair(nil), s.pairs...), nil
}

// Save implements qacache.Store.
func (s *MemoryStore) Save(_ context.Context, pairs []qacache.Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs = append([]qacache.Pair(nil), pairs...)
	return nil
}

var _ qacache.Store = (*MemoryStore)(nil)
