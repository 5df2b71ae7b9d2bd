package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"demosync/internal/demo"
	"demosync/internal/remotefile"
)

// fileEnvelope is the remote file's wire format. Older files may be a bare
// body with no envelope; readEnvelope accepts both.
type fileEnvelope struct {
	Version int        `json:"version"`
	DemoID  string     `json:"demoId,omitempty"`
	Name    string     `json:"name,omitempty"`
	Data    *demo.Body `json:"data"`
}

const envelopeVersion = 1

// remoteBackend maps each document to one file in the remote file store.
// The file store's clock is authoritative; its RFC 3339 timestamps are kept
// verbatim and only parsed when a millisecond comparison is needed.
type remoteBackend struct {
	client *remotefile.Client
	tokens demo.TokenSource
	idgen  demo.IDGenerator
}

func newRemoteBackend(client *remotefile.Client, tokens demo.TokenSource, idgen demo.IDGenerator) *remoteBackend {
	return &remoteBackend{client: client, tokens: tokens, idgen: idgen}
}

func (b *remoteBackend) Kind() demo.StorageKind { return demo.KindRemoteFile }

func (b *remoteBackend) Load(ctx context.Context, doc *demo.Document) (*demo.Body, error) {
	token, err := b.tokens.Token(ctx)
	if err != nil {
		return nil, &demo.AuthError{Err: err}
	}

	raw, err := b.client.ReadFile(ctx, token, doc.RemoteFileID)
	if err != nil {
		return nil, err
	}
	return readEnvelope(raw)
}

func (b *remoteBackend) Save(ctx context.Context, doc *demo.Document, body *demo.Body) (demo.SaveResult, error) {
	token, err := b.tokens.Token(ctx)
	if err != nil {
		return demo.SaveResult{}, &demo.AuthError{Err: err}
	}

	content, err := json.Marshal(fileEnvelope{Version: envelopeVersion, Data: body})
	if err != nil {
		return demo.SaveResult{}, fmt.Errorf("encoding file content: %w", err)
	}

	result, err := b.client.UpdateFile(ctx, token, doc.RemoteFileID, content)
	if err != nil {
		return demo.SaveResult{}, err
	}
	return demo.SaveResult{
		LastModified:       parseRemoteTime(result.ModifiedTime),
		RemoteModifiedTime: result.ModifiedTime,
	}, nil
}

func (b *remoteBackend) Create(ctx context.Context, name string, body *demo.Body) (*demo.Document, error) {
	token, err := b.tokens.Token(ctx)
	if err != nil {
		return nil, &demo.AuthError{Err: err}
	}

	folderID, err := b.client.EnsureFolder(ctx, token)
	if err != nil {
		return nil, err
	}

	id := b.idgen.New()
	content, err := json.Marshal(fileEnvelope{Version: envelopeVersion, DemoID: id, Name: name, Data: body})
	if err != nil {
		return nil, fmt.Errorf("encoding file content: %w", err)
	}

	appProps := map[string]string{"demoId": id, "demoName": name, "version": "1"}
	result, err := b.client.CreateFile(ctx, token, folderID, name+remotefile.FileSuffix, content, appProps)
	if err != nil {
		return nil, err
	}

	return &demo.Document{
		ID:                 id,
		Name:               name,
		StorageKind:        demo.KindRemoteFile,
		LastModified:       parseRemoteTime(result.ModifiedTime),
		RemoteFileID:       result.FileID,
		RemoteModifiedTime: result.ModifiedTime,
	}, nil
}

func (b *remoteBackend) Delete(ctx context.Context, doc *demo.Document) error {
	token, err := b.tokens.Token(ctx)
	if err != nil {
		return &demo.AuthError{Err: err}
	}
	return b.client.Trash(ctx, token, doc.RemoteFileID)
}

func (b *remoteBackend) List(ctx context.Context) ([]demo.RegistryEntry, error) {
	token, err := b.tokens.Token(ctx)
	if err != nil {
		return nil, &demo.AuthError{Err: err}
	}

	folderID, err := b.client.EnsureFolder(ctx, token)
	if err != nil {
		return nil, err
	}

	files, err := b.client.ListFiles(ctx, token, folderID)
	if err != nil {
		return nil, err
	}

	entries := make([]demo.RegistryEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, demo.RegistryEntry{
			ID:                 f.DocumentID,
			Name:               f.DocumentName,
			StorageKind:        demo.KindRemoteFile,
			LastModified:       parseRemoteTime(f.ModifiedTime),
			RemoteFileID:       f.FileID,
			RemoteModifiedTime: f.ModifiedTime,
		})
	}
	return entries, nil
}

func (b *remoteBackend) CheckModified(ctx context.Context, doc *demo.Document, cursor int64) (demo.ModCheck, error) {
	token, err := b.tokens.Token(ctx)
	if err != nil {
		return demo.ModCheck{}, &demo.AuthError{Err: err}
	}

	meta, err := b.client.Metadata(ctx, token, doc.RemoteFileID)
	if err != nil {
		return demo.ModCheck{}, err
	}
	if meta.Trashed {
		return demo.ModCheck{Trashed: true}, nil
	}

	remoteMillis := parseRemoteTime(meta.ModifiedTime)
	return demo.ModCheck{
		Modified:     remoteMillis > cursor,
		LastModified: remoteMillis,
		ModifiedTime: meta.ModifiedTime,
	}, nil
}

func (b *remoteBackend) Rename(ctx context.Context, doc *demo.Document, name string) (demo.SaveResult, error) {
	token, err := b.tokens.Token(ctx)
	if err != nil {
		return demo.SaveResult{}, &demo.AuthError{Err: err}
	}
	if err := b.client.Rename(ctx, token, doc.RemoteFileID, name+remotefile.FileSuffix); err != nil {
		return demo.SaveResult{}, err
	}
	return demo.SaveResult{}, nil
}

// readEnvelope decodes file content: the enveloped format if present,
// otherwise the content itself is treated as the body.
func readEnvelope(raw []byte) (*demo.Body, error) {
	var env fileEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Data != nil {
		return env.Data, nil
	}

	var body demo.Body
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decoding file content: %w", err)
	}
	return &body, nil
}

// parseRemoteTime converts the file store's RFC 3339 timestamp to epoch
// milliseconds. An unparsable timestamp compares as 0, which reads as "very
// old" rather than failing the operation.
func parseRemoteTime(s string) int64 {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

var _ demo.Backend = (*remoteBackend)(nil)
