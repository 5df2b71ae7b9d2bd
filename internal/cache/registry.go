package cache

import (
	"database/sql"
	"errors"
	"fmt"

	"demosync/internal/demo"
)

// MetaUpdate is a partial update of a registry entry. Only non-nil fields
// are changed; omission is not clearing.
type MetaUpdate struct {
	Name               *string
	LastModified       *int64
	RemoteFileID       *string
	RemoteModifiedTime *string
}

// ListEntries returns every registry entry in the local index, newest first.
func (s *Store) ListEntries() ([]demo.RegistryEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, name, storage_kind, last_modified, remote_file_id, remote_modified_time
		 FROM registry ORDER BY last_modified DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing registry entries: %w", err)
	}
	defer rows.Close()

	var entries []demo.RegistryEntry
	for rows.Next() {
		var e demo.RegistryEntry
		var kind string
		if err := rows.Scan(&e.ID, &e.Name, &kind, &e.LastModified, &e.RemoteFileID, &e.RemoteModifiedTime); err != nil {
			return nil, fmt.Errorf("scanning registry entry: %w", err)
		}
		e.StorageKind = demo.StorageKind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating registry entries: %w", err)
	}
	return entries, nil
}

// GetEntry returns the registry entry for id, or nil if none exists.
func (s *Store) GetEntry(id string) (*demo.RegistryEntry, error) {
	var e demo.RegistryEntry
	var kind string
	err := s.db.QueryRow(
		`SELECT id, name, storage_kind, last_modified, remote_file_id, remote_modified_time
		 FROM registry WHERE id = ?`, id).
		Scan(&e.ID, &e.Name, &kind, &e.LastModified, &e.RemoteFileID, &e.RemoteModifiedTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading registry entry: %w", err)
	}
	e.StorageKind = demo.StorageKind(kind)
	return &e, nil
}

// UpsertEntry inserts or replaces the registry entry for e.ID.
func (s *Store) UpsertEntry(e demo.RegistryEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO registry (id, name, storage_kind, last_modified, remote_file_id, remote_modified_time)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name,
		   storage_kind = excluded.storage_kind,
		   last_modified = excluded.last_modified,
		   remote_file_id = excluded.remote_file_id,
		   remote_modified_time = excluded.remote_modified_time`,
		e.ID, e.Name, string(e.StorageKind), e.LastModified, e.RemoteFileID, e.RemoteModifiedTime)
	if err != nil {
		return fmt.Errorf("upserting registry entry: %w", err)
	}
	return nil
}

// RemoveEntry deletes the registry entry for id. Removing an absent entry is
// not an error.
func (s *Store) RemoveEntry(id string) error {
	if _, err := s.db.Exec(`DELETE FROM registry WHERE id = ?`, id); err != nil {
		return fmt.Errorf("removing registry entry: %w", err)
	}
	return nil
}

// UpdateEntryMeta applies a partial metadata update to the entry for id.
// Returns demo.ErrInvalidState if no entry exists.
func (s *Store) UpdateEntryMeta(id string, update MetaUpdate) error {
	entry, err := s.GetEntry(id)
	if err != nil {
		return err
	}
	if entry == nil {
		return demo.ErrInvalidState
	}

	if update.Name != nil {
		entry.Name = *update.Name
	}
	if update.LastModified != nil {
		entry.LastModified = *update.LastModified
	}
	if update.RemoteFileID != nil {
		entry.RemoteFileID = *update.RemoteFileID
	}
	if update.RemoteModifiedTime != nil {
		entry.RemoteModifiedTime = *update.RemoteModifiedTime
	}

	return s.UpsertEntry(*entry)
}
