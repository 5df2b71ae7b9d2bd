package demo

import "context"

// Backend is the uniform capability set implemented once per storage kind.
// The persistence facade dispatches on a document's StorageKind tag and never
// touches backend-specific fields directly.
type Backend interface {
	// Kind returns the storage kind this backend serves.
	Kind() StorageKind

	// Load fetches the full body for doc.
	Load(ctx context.Context, doc *Document) (*Body, error)

	// Save writes body and returns the backend-assigned modification
	// metadata. The backend's clock is authoritative.
	Save(ctx context.Context, doc *Document, body *Body) (SaveResult, error)

	// Create makes a new document seeded with body and returns its
	// metadata, including any backend-specific handle.
	Create(ctx context.Context, name string, body *Body) (*Document, error)

	// Delete removes doc from the backend. Deleting an already-deleted
	// document is not an error.
	Delete(ctx context.Context, doc *Document) error

	// List returns lightweight entries for every live document at the
	// backend, without transferring bodies.
	List(ctx context.Context) ([]RegistryEntry, error)

	// CheckModified reports whether the backend holds a version newer than
	// cursor (epoch ms) without transferring the body. Backends that
	// cannot be modified out-of-band report no change.
	CheckModified(ctx context.Context, doc *Document, cursor int64) (ModCheck, error)

	// Rename updates the display name without touching the body.
	Rename(ctx context.Context, doc *Document, name string) (SaveResult, error)
}

// TokenSource supplies a currently-valid bearer credential for remote file
// store calls. Implementations may prompt interactively; freshness is their
// responsibility, adapters never cache tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}
