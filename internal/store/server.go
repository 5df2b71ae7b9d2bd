package store

import (
	"context"
	"encoding/json"
	"fmt"

	"demosync/internal/demo"
	"demosync/internal/serverapi"
)

// serverBackend delegates to the server-authoritative document API. The id
// is the primary key; there is no backend-specific handle. Partial update
// semantics matter here: saves send only the body and renames send only the
// name, so the two never clobber each other.
type serverBackend struct {
	client *serverapi.Client
	idgen  demo.IDGenerator
}

func newServerBackend(client *serverapi.Client, idgen demo.IDGenerator) *serverBackend {
	return &serverBackend{client: client, idgen: idgen}
}

func (b *serverBackend) Kind() demo.StorageKind { return demo.KindServer }

func (b *serverBackend) Load(ctx context.Context, doc *demo.Document) (*demo.Body, error) {
	d, err := b.client.Get(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	var body demo.Body
	if err := json.Unmarshal(d.Data, &body); err != nil {
		return nil, fmt.Errorf("decoding server body: %w", err)
	}
	return &body, nil
}

func (b *serverBackend) Save(ctx context.Context, doc *demo.Document, body *demo.Body) (demo.SaveResult, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return demo.SaveResult{}, fmt.Errorf("encoding body: %w", err)
	}

	lastModified, err := b.client.UpdateDemo(ctx, doc.ID, serverapi.Update{Data: data})
	if err != nil {
		return demo.SaveResult{}, err
	}
	return demo.SaveResult{LastModified: lastModified}, nil
}

func (b *serverBackend) Create(ctx context.Context, name string, body *demo.Body) (*demo.Document, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding seed body: %w", err)
	}

	created, err := b.client.Create(ctx, b.idgen.New(), name, data)
	if err != nil {
		return nil, err
	}
	return &demo.Document{
		ID:           created.ID,
		Name:         created.Name,
		StorageKind:  demo.KindServer,
		LastModified: created.LastModified,
	}, nil
}

func (b *serverBackend) Delete(ctx context.Context, doc *demo.Document) error {
	return b.client.Delete(ctx, doc.ID)
}

func (b *serverBackend) List(ctx context.Context) ([]demo.RegistryEntry, error) {
	list, err := b.client.List(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]demo.RegistryEntry, 0, len(list))
	for _, e := range list {
		entries = append(entries, demo.RegistryEntry{
			ID:           e.ID,
			Name:         e.Name,
			StorageKind:  demo.KindServer,
			LastModified: e.LastModified,
		})
	}
	return entries, nil
}

func (b *serverBackend) CheckModified(ctx context.Context, doc *demo.Document, cursor int64) (demo.ModCheck, error) {
	return b.client.ModifiedSince(ctx, doc.ID, cursor)
}

func (b *serverBackend) Rename(ctx context.Context, doc *demo.Document, name string) (demo.SaveResult, error) {
	lastModified, err := b.client.UpdateDemo(ctx, doc.ID, serverapi.Update{Name: &name})
	if err != nil {
		return demo.SaveResult{}, err
	}
	return demo.SaveResult{LastModified: lastModified}, nil
}

var _ demo.Backend = (*serverBackend)(nil)
