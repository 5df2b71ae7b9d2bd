package demo

// StorageKind identifies which backend owns a document.
type StorageKind string

const (
	// KindLocal stores the document in the per-client local cache only.
	KindLocal StorageKind = "local"
	// KindRemoteFile maps the document to one file in a remote file store.
	KindRemoteFile StorageKind = "remote-file"
	// KindServer stores the document in the server-authoritative database.
	KindServer StorageKind = "server"
)

// ServerStorageWireValue is the value of the "storage" field on the server
// API wire format. The server predates the StorageKind names and reports
// its backing store instead.
const ServerStorageWireValue = "postgres"

// Valid reports whether k is one of the known storage kinds.
func (k StorageKind) Valid() bool {
	switch k {
	case KindLocal, KindRemoteFile, KindServer:
		return true
	}
	return false
}

// Document is the unit of persistence: one demo and the metadata needed to
// reach it at its backend. The body is loaded and saved separately.
type Document struct {
	ID          string
	Name        string
	StorageKind StorageKind

	// LastModified is the backend's own clock in epoch milliseconds.
	// Local documents use the client clock, server documents the server
	// clock. It is never recomputed by this client, only compared.
	LastModified int64

	// RemoteFileID and RemoteModifiedTime are set only for remote-file
	// documents. RemoteModifiedTime is the file store's RFC 3339 timestamp,
	// kept verbatim because the file store compares strings it issued.
	RemoteFileID       string
	RemoteModifiedTime string
}

// RegistryEntry is the lightweight per-document metadata used to render
// lists without loading full bodies. Exactly one entry exists per live
// document.
type RegistryEntry struct {
	ID                 string
	Name               string
	StorageKind        StorageKind
	LastModified       int64
	RemoteFileID       string
	RemoteModifiedTime string
}

// SaveResult carries the backend-assigned modification metadata from a
// completed save. Callers feed LastModified back into their poll cursor.
type SaveResult struct {
	LastModified       int64
	RemoteModifiedTime string
}

// ModCheck is the result of a cheap modified-since probe against a backend.
// No body is transferred.
type ModCheck struct {
	Modified     bool
	LastModified int64
	// ModifiedTime is the remote file store's timestamp string, when the
	// probe went to a remote-file backend.
	ModifiedTime string
	// Trashed reports that the remote file was moved to trash out-of-band.
	Trashed bool
}
