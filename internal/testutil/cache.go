package testutil

import (
	"path/filepath"
	"testing"

	"demosync/internal/cache"
	"demosync/internal/demo"
)

// NewTestStore builds a sqlite cache store under t.TempDir with a
// memory flush store and a fixed clock. The store is closed when the
// test ends.
func NewTestStore(t *testing.T) (*cache.Store, *StubClock) {
	t.Helper()

	clock := FixedClock()
	path := filepath.Join(t.TempDir(), "cache.db")
	store, err := cache.NewStore(path, cache.NewMemoryFlushStore(), clock, demo.NewNopLogger())
	if err != nil {
		t.Fatalf("creating test cache store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store, clock
}
