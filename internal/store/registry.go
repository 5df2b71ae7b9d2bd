package store

import (
	"context"
	"errors"

	"demosync/internal/cache"
	"demosync/internal/demo"
)

// Registry is the list of known documents and their metadata. For
// server-backed mode the server's list endpoint is the registry; otherwise
// the local cache index is, merged with a remote listing when the user has
// an active remote-file session.
type Registry struct {
	cache      *cache.Store
	serverMode bool
	server     demo.Backend
	remote     demo.Backend
	logger     demo.Logger
}

// NewRegistry creates a registry. server and remote may be nil when those
// modes are unavailable. serverMode switches List to the server's list
// endpoint entirely.
func NewRegistry(c *cache.Store, serverMode bool, server, remote demo.Backend, logger demo.Logger) *Registry {
	return &Registry{cache: c, serverMode: serverMode, server: server, remote: remote, logger: logger}
}

// List returns one entry per live document.
//
// In server mode this is a thin pass-through to the server. Otherwise the
// local index is returned, merged with the remote listing: remote entries
// not yet known locally are appended, and entries present in both sides take
// the remote lastModified when it is newer — for display only, the local
// index is not rewritten.
func (r *Registry) List(ctx context.Context) ([]demo.RegistryEntry, error) {
	if r.serverMode {
		if r.server == nil {
			return nil, errors.New("server mode enabled but no server backend configured")
		}
		return r.server.List(ctx)
	}

	entries, err := r.cache.ListEntries()
	if err != nil {
		return nil, err
	}

	if r.remote == nil {
		return entries, nil
	}

	remoteEntries, err := r.remote.List(ctx)
	if err != nil {
		// Remote listing is best-effort: an expired session or network
		// failure must not hide local documents.
		r.logger.Warn("remote listing failed, returning local entries only", "error", err)
		return entries, nil
	}

	byID := make(map[string]int, len(entries))
	for i, e := range entries {
		byID[e.ID] = i
	}

	for _, re := range remoteEntries {
		i, known := byID[re.ID]
		if !known {
			entries = append(entries, re)
			continue
		}
		if re.LastModified > entries[i].LastModified {
			entries[i].LastModified = re.LastModified
			entries[i].RemoteModifiedTime = re.RemoteModifiedTime
		}
		// The remote handle may have changed (file recreated remotely).
		if re.RemoteFileID != "" {
			entries[i].RemoteFileID = re.RemoteFileID
		}
	}

	return entries, nil
}

// Upsert registers or updates a document's metadata in the local index.
func (r *Registry) Upsert(entry demo.RegistryEntry) error {
	return r.cache.UpsertEntry(entry)
}

// Remove deletes a document's entry from the local index.
func (r *Registry) Remove(id string) error {
	return r.cache.RemoveEntry(id)
}

// UpdateMetadataOnly applies a partial metadata update without touching the
// document body.
func (r *Registry) UpdateMetadataOnly(id string, update cache.MetaUpdate) error {
	return r.cache.UpdateEntryMeta(id, update)
}
