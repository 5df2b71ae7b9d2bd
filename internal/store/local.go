package store

import (
	"context"
	"fmt"

	"demosync/internal/cache"
	"demosync/internal/demo"
)

// localBackend serves documents that live only in the per-client cache.
// The client clock is the backend clock. Local documents cannot be modified
// out-of-band, so CheckModified always reports no change and the poller
// never runs for them.
type localBackend struct {
	cache *cache.Store
	clock demo.Clock
	idgen demo.IDGenerator
}

func newLocalBackend(c *cache.Store, clock demo.Clock, idgen demo.IDGenerator) *localBackend {
	return &localBackend{cache: c, clock: clock, idgen: idgen}
}

func (b *localBackend) Kind() demo.StorageKind { return demo.KindLocal }

func (b *localBackend) Load(_ context.Context, doc *demo.Document) (*demo.Body, error) {
	body, ok, err := b.cache.Get(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("loading from cache: %w", err)
	}
	if !ok {
		return nil, demo.ErrNotFound
	}
	return body, nil
}

func (b *localBackend) Save(_ context.Context, doc *demo.Document, body *demo.Body) (demo.SaveResult, error) {
	if err := b.cache.Put(doc.ID, body); err != nil {
		return demo.SaveResult{}, fmt.Errorf("saving to cache: %w", err)
	}
	return demo.SaveResult{LastModified: demo.NowMillis(b.clock)}, nil
}

func (b *localBackend) Create(_ context.Context, name string, body *demo.Body) (*demo.Document, error) {
	id := b.idgen.New()
	if err := b.cache.Put(id, body); err != nil {
		return nil, fmt.Errorf("seeding new document: %w", err)
	}
	return &demo.Document{
		ID:           id,
		Name:         name,
		StorageKind:  demo.KindLocal,
		LastModified: demo.NowMillis(b.clock),
	}, nil
}

func (b *localBackend) Delete(_ context.Context, doc *demo.Document) error {
	return b.cache.Delete(doc.ID)
}

func (b *localBackend) List(_ context.Context) ([]demo.RegistryEntry, error) {
	entries, err := b.cache.ListEntries()
	if err != nil {
		return nil, err
	}
	local := entries[:0]
	for _, e := range entries {
		if e.StorageKind == demo.KindLocal {
			local = append(local, e)
		}
	}
	return local, nil
}

func (b *localBackend) CheckModified(context.Context, *demo.Document, int64) (demo.ModCheck, error) {
	// The cache is exclusive to this client; nothing changes it out-of-band.
	return demo.ModCheck{}, nil
}

func (b *localBackend) Rename(_ context.Context, doc *demo.Document, name string) (demo.SaveResult, error) {
	// The body is untouched; the registry carries the name.
	return demo.SaveResult{LastModified: demo.NowMillis(b.clock)}, nil
}

var _ demo.Backend = (*localBackend)(nil)
