// Package server is the server-authoritative side of the server storage
// kind: the HTTP API that owns the demos table and assigns every
// lastModified timestamp.
package server

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound means no demo exists with the requested id.
var ErrNotFound = errors.New("demo not found")

// Demo is one stored document.
type Demo struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Data         json.RawMessage `json:"data"`
	LastModified int64           `json:"lastModified"`
}

// ListEntry is one row of the document list. No body is included.
type ListEntry struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	LastModified int64  `json:"lastModified"`
}

// Store provides an interface for demo table operations. The store's clock
// assigns lastModified on every write; clients never supply timestamps.
type Store interface {
	// List returns every demo, newest first, without bodies.
	List(ctx context.Context) ([]ListEntry, error)

	// Get returns a demo by id. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*Demo, error)

	// Create inserts a demo with a client-chosen id and returns it with
	// the assigned lastModified.
	Create(ctx context.Context, id, name string, data json.RawMessage) (*Demo, error)

	// Update applies a partial update: nil data leaves the body alone,
	// nil name leaves the name alone. Omission is not clearing. Returns
	// the new lastModified, or ErrNotFound.
	Update(ctx context.Context, id string, data json.RawMessage, name *string) (int64, error)

	// Delete removes a demo. Deleting an absent demo is not an error.
	Delete(ctx context.Context, id string) error

	// LastModified returns the demo's timestamp without its body.
	// Returns ErrNotFound if absent.
	LastModified(ctx context.Context, id string) (int64, error)

	// Close releases the store's resources.
	Close() error
}
