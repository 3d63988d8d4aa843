package snapshot

import (
	"context"
	"sort"
	"sync"

	"github.com/yanqian/formfiller/internal/domain/autofill"
)

// DefaultMemoryLimit caps how many snapshots MemoryStore retains.
const DefaultMemoryLimit = 200

// Object is a stored snapshot.
type Object struct {
	Data        []byte
	ContentType string
}

// MemoryStore keeps the most recent snapshots in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	limit   int
	order   []string
	objects map[string]Object
}

// NewMemoryStore constructs an empty store keeping at most limit objects.
// A non-positive limit selects DefaultMemoryLimit.
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &MemoryStore{limit: limit, objects: make(map[string]Object)}
}

// Put implements autofill.SnapshotStore. Overwriting a key keeps its age.
func (s *MemoryStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objects[key]; !exists {
		s.order = append(s.order, key)
	}
	s.objects[key] = Object{Data: append([]byte(nil), data...), ContentType: contentType}
	for len(s.order) > s.limit {
		delete(s.objects, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

// Get returns the snapshot stored under key.
func (s *MemoryStore) Get(key string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj, ok
}

// Keys lists stored keys in sorted order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ autofill.SnapshotStore = (*MemoryStore)(nil)
