package cache

import (
	"fmt"
	"os"
	"path/filepath"
)

// FlushStore is the crash-survivable side channel of the local cache: a
// simple string-keyed store with synchronous writes. A pending body is
// flushed here on teardown when an asynchronous durable write could not
// complete, checked first on load, treated as authoritative, then migrated
// into the primary store and cleared.
type FlushStore interface {
	// Get returns the flushed payload for id, if any.
	Get(id string) ([]byte, bool, error)

	// Put writes payload synchronously. Best effort: callers log failures
	// rather than propagate them, since flush is a last resort.
	Put(id string, payload []byte) error

	// Delete removes the flushed payload for id. Deleting an absent entry
	// is not an error.
	Delete(id string) error
}

// FileFlushStore keeps one file per document under a directory, written with
// temp-file+rename so a torn write never leaves a half-flushed payload.
type FileFlushStore struct {
	dir string
}

// NewFileFlushStore creates a flush store rooted at dir.
func NewFileFlushStore(dir string) (*FileFlushStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create flush directory: %w", err)
	}
	return &FileFlushStore{dir: dir}, nil
}

func (s *FileFlushStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Get returns the flushed payload for id, if any.
func (s *FileFlushStore) Get(id string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading flush file: %w", err)
	}
	return data, true, nil
}

// Put writes payload atomically via temp file + rename.
func (s *FileFlushStore) Put(id string, payload []byte) error {
	destPath := s.path(id)

	tmpFile, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(payload); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write flush data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Delete removes the flushed payload for id.
func (s *FileFlushStore) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing flush file: %w", err)
	}
	return nil
}

// Compile-time check that FileFlushStore implements the FlushStore interface
var _ FlushStore = (*FileFlushStore)(nil)
