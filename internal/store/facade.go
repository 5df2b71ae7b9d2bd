package store

import (
	"context"
	"errors"
	"fmt"

	"demosync/internal/cache"
	"demosync/internal/config"
	"demosync/internal/demo"
	"demosync/internal/remotefile"
	"demosync/internal/serverapi"
)

// Facade is the uniform persistence interface used regardless of backend.
// It owns no document state itself: it routes on the document's StorageKind
// tag, keeps the registry consistent with creates and deletes, maintains the
// local shadow copy for remote-file documents, and normalizes adapter errors
// into the taxonomy in the demo package before anything reaches a caller.
type Facade struct {
	cache    *cache.Store
	backends map[demo.StorageKind]demo.Backend
	idgen    demo.IDGenerator
	logger   demo.Logger
}

// NewFacade builds a facade over the given backends. Backends may be nil
// when a mode is unavailable (no remote session, no server); operations
// routed to a missing backend fail with a clear error.
func NewFacade(c *cache.Store, backends []demo.Backend, idgen demo.IDGenerator, logger demo.Logger) *Facade {
	m := make(map[demo.StorageKind]demo.Backend, len(backends))
	for _, b := range backends {
		if b != nil {
			m[b.Kind()] = b
		}
	}
	return &Facade{cache: c, backends: m, idgen: idgen, logger: logger}
}

// NewFacadeFromConfig wires the standard backend set: the local cache
// backend always, the remote-file backend when a token source is supplied,
// and the server backend when the server API is configured.
func NewFacadeFromConfig(cfg *config.Config, c *cache.Store, tokens demo.TokenSource, clock demo.Clock, idgen demo.IDGenerator, logger demo.Logger) *Facade {
	backends := []demo.Backend{newLocalBackend(c, clock, idgen)}
	if tokens != nil {
		backends = append(backends, newRemoteBackend(remotefile.NewClient(cfg.Remote), tokens, idgen))
	}
	if cfg.ServerAPI.BaseURL != "" {
		backends = append(backends, newServerBackend(serverapi.NewClient(cfg.ServerAPI), idgen))
	}
	return NewFacade(c, backends, idgen, logger)
}

// Backend returns the backend serving kind, or an error if that mode is not
// available in this process.
func (f *Facade) Backend(kind demo.StorageKind) (demo.Backend, error) {
	b, ok := f.backends[kind]
	if !ok {
		return nil, fmt.Errorf("no backend available for storage kind %q", kind)
	}
	return b, nil
}

// NewEmptyBody returns the canonical empty document shape, the seed state
// for every newly created document regardless of backend.
func (f *Facade) NewEmptyBody() *demo.Body {
	return demo.NewEmptyBody(f.idgen)
}

// Load fetches the body for doc from its backend.
//
// Fallback order on failure: a server 404 at load time is a defensive read
// and yields a fresh empty body; a local miss yields a fresh empty body;
// any remote-file or server failure falls back to the local shadow copy if
// one exists; otherwise the error surfaces.
func (f *Facade) Load(ctx context.Context, doc *demo.Document) (*demo.Body, error) {
	b, err := f.Backend(doc.StorageKind)
	if err != nil {
		return nil, err
	}

	body, loadErr := b.Load(ctx, doc)
	if loadErr == nil {
		return body, nil
	}

	if errors.Is(loadErr, demo.ErrNotFound) {
		// Absent documents seed empty rather than erroring: the registry
		// entry exists, so the user expects an editable document.
		f.logger.Info("document absent at backend, seeding empty body", "id", doc.ID, "kind", doc.StorageKind)
		return f.NewEmptyBody(), nil
	}

	if doc.StorageKind != demo.KindLocal {
		shadow, ok, shadowErr := f.cache.Get(doc.ID)
		if shadowErr != nil {
			f.logger.Warn("shadow copy read failed", "id", doc.ID, "error", shadowErr)
		} else if ok {
			f.logger.Warn("backend load failed, serving shadow copy", "id", doc.ID, "error", loadErr)
			return shadow, nil
		}
	}

	return nil, fmt.Errorf("loading document %s: %w", doc.ID, loadErr)
}

// Save writes body to doc's backend. For remote-file documents a local
// shadow copy is written after every successful remote save so the document
// stays readable offline. Returns demo.ErrInvalidState when the registry no
// longer knows the document.
func (f *Facade) Save(ctx context.Context, doc *demo.Document, body *demo.Body) (demo.SaveResult, error) {
	b, err := f.Backend(doc.StorageKind)
	if err != nil {
		return demo.SaveResult{}, err
	}

	// Server-backed documents have no local registry entry; the server's
	// list is the registry.
	if doc.StorageKind != demo.KindServer {
		entry, err := f.cache.GetEntry(doc.ID)
		if err != nil {
			return demo.SaveResult{}, err
		}
		if entry == nil {
			f.logger.Warn("save abandoned, registry entry gone", "id", doc.ID)
			return demo.SaveResult{}, demo.ErrInvalidState
		}
	}

	result, err := b.Save(ctx, doc, body)
	if err != nil {
		return demo.SaveResult{}, err
	}

	if doc.StorageKind == demo.KindRemoteFile {
		if err := f.cache.Put(doc.ID, body); err != nil {
			f.logger.Warn("shadow copy write failed", "id", doc.ID, "error", err)
		}
		err := f.cache.UpdateEntryMeta(doc.ID, cache.MetaUpdate{
			LastModified:       &result.LastModified,
			RemoteModifiedTime: &result.RemoteModifiedTime,
		})
		if err != nil {
			f.logger.Warn("registry metadata update failed", "id", doc.ID, "error", err)
		}
	}

	if err := f.cache.SetThumbnail(doc.ID, body.Overview); err != nil {
		f.logger.Warn("thumbnail cache write failed", "id", doc.ID, "error", err)
	}

	return result, nil
}

// Create makes a new document of the given kind seeded with the canonical
// empty body and registers it. The registry entry appears atomically with
// respect to the caller: by the time Create returns, list and load agree.
func (f *Facade) Create(ctx context.Context, kind demo.StorageKind, name string) (*demo.Document, error) {
	b, err := f.Backend(kind)
	if err != nil {
		return nil, err
	}

	doc, err := b.Create(ctx, name, f.NewEmptyBody())
	if err != nil {
		return nil, fmt.Errorf("creating document: %w", err)
	}

	if kind != demo.KindServer {
		entry := demo.RegistryEntry{
			ID:                 doc.ID,
			Name:               doc.Name,
			StorageKind:        kind,
			LastModified:       doc.LastModified,
			RemoteFileID:       doc.RemoteFileID,
			RemoteModifiedTime: doc.RemoteModifiedTime,
		}
		if err := f.cache.UpsertEntry(entry); err != nil {
			return nil, fmt.Errorf("registering document: %w", err)
		}
	}

	return doc, nil
}

// Delete removes doc from its backend along with its registry entry, cached
// body, flush copy and thumbnail. No dangling entry survives a delete.
func (f *Facade) Delete(ctx context.Context, doc *demo.Document) error {
	b, err := f.Backend(doc.StorageKind)
	if err != nil {
		return err
	}

	if err := b.Delete(ctx, doc); err != nil {
		return fmt.Errorf("deleting document %s: %w", doc.ID, err)
	}

	if doc.StorageKind != demo.KindServer {
		if err := f.cache.RemoveEntry(doc.ID); err != nil {
			return err
		}
	}
	return f.cache.Delete(doc.ID)
}

// Rename updates the display name at the backend and in the registry. The
// body is never sent; backends with partial updates change only the name.
func (f *Facade) Rename(ctx context.Context, doc *demo.Document, name string) error {
	b, err := f.Backend(doc.StorageKind)
	if err != nil {
		return err
	}

	result, err := b.Rename(ctx, doc, name)
	if err != nil {
		return fmt.Errorf("renaming document %s: %w", doc.ID, err)
	}

	if doc.StorageKind != demo.KindServer {
		update := cache.MetaUpdate{Name: &name}
		if result.LastModified != 0 {
			update.LastModified = &result.LastModified
		}
		if err := f.cache.UpdateEntryMeta(doc.ID, update); err != nil && !errors.Is(err, demo.ErrInvalidState) {
			return err
		}
	}

	doc.Name = name
	return nil
}

// Flush synchronously writes body to the crash-survivable local path. Safe
// to call from teardown for any storage kind; it never touches the network.
func (f *Facade) Flush(doc *demo.Document, body *demo.Body) error {
	return f.cache.Flush(doc.ID, body)
}
