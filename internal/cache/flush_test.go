package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileFlushStore_PutAndGet(t *testing.T) {
	store, err := NewFileFlushStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileFlushStore() error: %v", err)
	}

	payload := []byte(`{"overview":{"headline":"hi"}}`)
	if err := store.Put("doc-1", payload); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, ok, err := store.Get("doc-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if string(got) != string(payload) {
		t.Errorf("Get() = %s, want %s", got, payload)
	}
}

func TestFileFlushStore_GetMiss(t *testing.T) {
	store, err := NewFileFlushStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileFlushStore() error: %v", err)
	}

	_, ok, err := store.Get("absent")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if ok {
		t.Error("Get() ok = true for absent id, want false")
	}
}

func TestFileFlushStore_PutOverwrites(t *testing.T) {
	store, err := NewFileFlushStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileFlushStore() error: %v", err)
	}

	if err := store.Put("doc-1", []byte("first")); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if err := store.Put("doc-1", []byte("second")); err != nil {
		t.Fatalf("second Put() error: %v", err)
	}

	got, _, err := store.Get("doc-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("Get() = %s, want %s", got, "second")
	}
}

func TestFileFlushStore_PutLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileFlushStore(dir)
	if err != nil {
		t.Fatalf("NewFileFlushStore() error: %v", err)
	}

	if err := store.Put("doc-1", []byte("payload")); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "doc-1.json" {
			t.Errorf("unexpected file %q in flush dir", e.Name())
		}
	}
}

func TestFileFlushStore_Delete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileFlushStore(dir)
	if err != nil {
		t.Fatalf("NewFileFlushStore() error: %v", err)
	}

	if err := store.Put("doc-1", []byte("payload")); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if err := store.Delete("doc-1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "doc-1.json")); !os.IsNotExist(err) {
		t.Errorf("flush file still exists after Delete (stat err = %v)", err)
	}

	// Deleting an absent entry is not an error.
	if err := store.Delete("doc-1"); err != nil {
		t.Errorf("Delete() second call error: %v", err)
	}
}

func TestMemoryFlushStore_RoundTrip(t *testing.T) {
	store := NewMemoryFlushStore()

	if err := store.Put("doc-1", []byte("payload")); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, ok, err := store.Get("doc-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !ok || string(got) != "payload" {
		t.Errorf("Get() = %s ok=%v, want payload", got, ok)
	}

	if err := store.Delete("doc-1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, ok, _ := store.Get("doc-1"); ok {
		t.Error("Get() ok = true after Delete, want false")
	}
}

func TestMemoryFlushStore_DefensiveCopies(t *testing.T) {
	store := NewMemoryFlushStore()

	payload := []byte("original")
	if err := store.Put("doc-1", payload); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	payload[0] = 'X'

	got, _, err := store.Get("doc-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(got) != "original" {
		t.Errorf("Get() = %s, want insulated from caller mutation", got)
	}
}
