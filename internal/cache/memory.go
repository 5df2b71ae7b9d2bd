package cache

import "sync"

// MemoryFlushStore is an in-memory implementation of the FlushStore
// interface, useful for testing. This implementation is safe for concurrent
// use.
type MemoryFlushStore struct {
	entries map[string][]byte
	mu      sync.RWMutex
}

// NewMemoryFlushStore creates a new in-memory flush store.
func NewMemoryFlushStore() *MemoryFlushStore {
	return &MemoryFlushStore{entries: make(map[string][]byte)}
}

// Get returns the flushed payload for id, if any.
func (s *MemoryFlushStore) Get(id string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.entries[id]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

// Put writes payload for id.
func (s *MemoryFlushStore) Put(id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := make([]byte, len(payload))
	copy(data, payload)
	s.entries[id] = data
	return nil
}

// Delete removes the flushed payload for id.
func (s *MemoryFlushStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, id)
	return nil
}

// Compile-time check that MemoryFlushStore implements the FlushStore interface
var _ FlushStore = (*MemoryFlushStore)(nil)
