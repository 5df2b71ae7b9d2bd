package server

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"demosync/internal/demo"
)

// MemoryStore is an in-memory implementation of the Store interface, useful
// for testing and local development without a database. This implementation
// is safe for concurrent use.
type MemoryStore struct {
	clock demo.Clock

	mu    sync.RWMutex
	demos map[string]*Demo
	// lastIssued forces timestamps to be strictly monotonic per store even
	// when writes land within the same millisecond.
	lastIssued int64
}

// NewMemoryStore creates a new in-memory store using clock for timestamps.
func NewMemoryStore(clock demo.Clock) *MemoryStore {
	return &MemoryStore{clock: clock, demos: make(map[string]*Demo)}
}

func (s *MemoryStore) nowLocked() int64 {
	now := demo.NowMillis(s.clock)
	if now <= s.lastIssued {
		now = s.lastIssued + 1
	}
	s.lastIssued = now
	return now
}

// List returns every demo, newest first, without bodies.
func (s *MemoryStore) List(context.Context) ([]ListEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]ListEntry, 0, len(s.demos))
	for _, d := range s.demos {
		entries = append(entries, ListEntry{ID: d.ID, Name: d.Name, LastModified: d.LastModified})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].LastModified > entries[j].LastModified })
	return entries, nil
}

// Get returns a demo by id.
func (s *MemoryStore) Get(_ context.Context, id string) (*Demo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.demos[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *d
	return &out, nil
}

// Create inserts a demo and returns it with the assigned timestamp.
func (s *MemoryStore) Create(_ context.Context, id, name string, data json.RawMessage) (*Demo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if data == nil {
		data = json.RawMessage(`{}`)
	}
	d := &Demo{ID: id, Name: name, Data: data, LastModified: s.nowLocked()}
	s.demos[id] = d
	out := *d
	return &out, nil
}

// Update applies a partial update: only supplied fields change.
func (s *MemoryStore) Update(_ context.Context, id string, data json.RawMessage, name *string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.demos[id]
	if !ok {
		return 0, ErrNotFound
	}
	if data != nil {
		d.Data = data
	}
	if name != nil {
		d.Name = *name
	}
	d.LastModified = s.nowLocked()
	return d.LastModified, nil
}

// Delete removes a demo. Deleting twice is not an error.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.demos, id)
	return nil
}

// LastModified returns the demo's timestamp without its body.
func (s *MemoryStore) LastModified(_ context.Context, id string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.demos[id]
	if !ok {
		return 0, ErrNotFound
	}
	return d.LastModified, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// Compile-time check that MemoryStore implements the Store interface
var _ Store = (*MemoryStore)(nil)
