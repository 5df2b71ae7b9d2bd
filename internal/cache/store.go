package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"demosync/internal/cache/migrations"
	"demosync/internal/config"
	"demosync/internal/demo"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store is the Local Cache Store: a per-document body store backed by SQLite
// with a crash-survivable flush side channel. The flush copy, when present,
// is authoritative: it is the last edit written synchronously during
// teardown, so Get migrates it into the primary store and clears it.
//
// Store also holds the registry index for local and remote-file documents
// and the thumbnail cache used to render lists without loading bodies.
type Store struct {
	db     *sql.DB
	flush  FlushStore
	clock  demo.Clock
	logger demo.Logger
}

// NewStore opens (and migrates) a cache database at path. path can be a file
// path or ":memory:" for an in-memory database.
func NewStore(path string, flush FlushStore, clock demo.Clock, logger demo.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating cache database: %w", err)
	}

	return &Store{db: db, flush: flush, clock: clock, logger: logger}, nil
}

// NewStoreFromConfig creates a Store based on the cache config type.
func NewStoreFromConfig(cfg config.CacheConfig, clock demo.Clock, logger demo.Logger) (*Store, error) {
	flush, err := NewFlushStoreFromConfig(cfg.Flush)
	if err != nil {
		return nil, fmt.Errorf("creating flush store: %w", err)
	}

	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite cache")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache data directory: %w", err)
		}
		return NewStore(filepath.Join(cfg.DataDir, "cache.db"), flush, clock, logger)
	case "memory":
		return NewStore(":memory:", flush, clock, logger)
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}

// NewFlushStoreFromConfig creates a FlushStore based on the flush config type.
func NewFlushStoreFromConfig(cfg config.FlushConfig) (FlushStore, error) {
	switch cfg.Type {
	case "filesystem":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("dir required for filesystem flush store")
		}
		return NewFileFlushStore(cfg.Dir)
	case "memory":
		return NewMemoryFlushStore(), nil
	default:
		return nil, fmt.Errorf("unknown flush store type: %s", cfg.Type)
	}
}

// Get returns the cached body for id, checking the flush side channel first.
// A flushed copy is the most recent edit: it is returned, migrated into the
// primary store and cleared, so the next Get serves the migrated copy.
// The second return is false when no copy exists anywhere.
func (s *Store) Get(id string) (*demo.Body, bool, error) {
	payload, ok, err := s.flush.Get(id)
	if err != nil {
		s.logger.Warn("flush store read failed", "id", id, "error", err)
	} else if ok {
		var body demo.Body
		if err := json.Unmarshal(payload, &body); err != nil {
			// Torn or corrupt flush data is unrecoverable; drop it and
			// fall through to the primary store.
			s.logger.Warn("discarding corrupt flush data", "id", id, "error", err)
			s.flush.Delete(id)
		} else {
			if err := s.putPrimary(id, payload); err != nil {
				s.logger.Warn("migrating flushed body failed", "id", id, "error", err)
			}
			if err := s.flush.Delete(id); err != nil {
				s.logger.Warn("clearing flush data failed", "id", id, "error", err)
			}
			return &body, true, nil
		}
	}

	var raw string
	err = s.db.QueryRow(`SELECT body FROM documents WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cached body: %w", err)
	}

	var body demo.Body
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return nil, false, fmt.Errorf("decoding cached body: %w", err)
	}
	return &body, true, nil
}

// Put stores body for id, clears any flush-recovery copy, and advances the
// registry entry's lastModified to the client clock.
func (s *Store) Put(id string, body *demo.Body) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding body: %w", err)
	}

	if err := s.putPrimary(id, payload); err != nil {
		return err
	}

	if err := s.flush.Delete(id); err != nil {
		s.logger.Warn("clearing flush data failed", "id", id, "error", err)
	}

	now := demo.NowMillis(s.clock)
	if _, err := s.db.Exec(`UPDATE registry SET last_modified = ? WHERE id = ?`, now, id); err != nil {
		return fmt.Errorf("updating registry timestamp: %w", err)
	}
	return nil
}

func (s *Store) putPrimary(id string, payload []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO documents (id, body) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET body = excluded.body`,
		id, string(payload))
	if err != nil {
		return fmt.Errorf("writing cached body: %w", err)
	}
	return nil
}

// Delete removes the cached body, flush copy and thumbnail for id.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting cached body: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM thumbnails WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting thumbnail: %w", err)
	}
	if err := s.flush.Delete(id); err != nil {
		s.logger.Warn("clearing flush data failed", "id", id, "error", err)
	}
	return nil
}

// Flush synchronously writes body to the crash-survivable side channel. It
// never touches the network or the primary store; it exists so a teardown
// path can persist the latest edit even when an asynchronous save is still
// in flight.
func (s *Store) Flush(id string, body *demo.Body) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding body for flush: %w", err)
	}
	if err := s.flush.Put(id, payload); err != nil {
		return fmt.Errorf("writing flush data: %w", err)
	}
	return nil
}

// Close closes the cache database.
func (s *Store) Close() error {
	return s.db.Close()
}
