package store

import (
	"context"
	"errors"
	"testing"

	"demosync/internal/demo"
	"demosync/internal/testutil"
)

func TestRegistry_ListLocalOnly(t *testing.T) {
	c, _ := testutil.NewTestStore(t)
	r := NewRegistry(c, false, nil, nil, demo.NewNopLogger())

	for _, e := range []demo.RegistryEntry{
		{ID: "a", Name: "a", StorageKind: demo.KindLocal, LastModified: 200},
		{ID: "b", Name: "b", StorageKind: demo.KindLocal, LastModified: 100},
	} {
		if err := r.Upsert(e); err != nil {
			t.Fatalf("Upsert(%s) error: %v", e.ID, err)
		}
	}

	entries, err := r.List(context.Background())
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "a" {
		t.Errorf("List() = %+v, want two entries newest first", entries)
	}
}

func TestRegistry_ListMergesRemote(t *testing.T) {
	c, _ := testutil.NewTestStore(t)
	remote := testutil.NewFakeBackend(demo.KindRemoteFile)
	r := NewRegistry(c, false, nil, remote, demo.NewNopLogger())

	// Known locally and remotely, remote is newer.
	if err := r.Upsert(demo.RegistryEntry{ID: "shared", Name: "shared", StorageKind: demo.KindRemoteFile, LastModified: 100, RemoteFileID: "f-old"}); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	// Known only locally.
	if err := r.Upsert(demo.RegistryEntry{ID: "local-only", Name: "local", StorageKind: demo.KindLocal, LastModified: 50}); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	// Seed the remote listing: the shared document with a newer timestamp
	// and fresh handle, plus one unknown document.
	if _, err := remote.Create(context.Background(), "shared", &demo.Body{}); err != nil {
		t.Fatalf("remote Create() error: %v", err)
	}

	entries, err := r.List(context.Background())
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}

	byID := make(map[string]demo.RegistryEntry)
	for _, e := range entries {
		byID[e.ID] = e
	}
	if _, ok := byID["local-only"]; !ok {
		t.Error("local-only entry missing from merged list")
	}
	if _, ok := byID["id-1"]; !ok {
		t.Error("remote-only entry missing from merged list")
	}
}

func TestRegistry_ListMergeRemoteWins(t *testing.T) {
	c, _ := testutil.NewTestStore(t)
	remote := remoteListStub{entries: []demo.RegistryEntry{
		{ID: "shared", Name: "shared", StorageKind: demo.KindRemoteFile, LastModified: 500, RemoteFileID: "f-new", RemoteModifiedTime: "2024-01-15T12:00:00.000Z"},
	}}
	r := NewRegistry(c, false, nil, remote, demo.NewNopLogger())

	if err := r.Upsert(demo.RegistryEntry{ID: "shared", Name: "shared", StorageKind: demo.KindRemoteFile, LastModified: 100, RemoteFileID: "f-old"}); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	entries, err := r.List(context.Background())
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1 (merged, not duplicated)", len(entries))
	}
	if entries[0].LastModified != 500 {
		t.Errorf("LastModified = %d, want newer remote value", entries[0].LastModified)
	}
	if entries[0].RemoteFileID != "f-new" {
		t.Errorf("RemoteFileID = %q, want refreshed handle", entries[0].RemoteFileID)
	}

	// Merge is display-only; the local index is not rewritten.
	stored, err := c.GetEntry("shared")
	if err != nil {
		t.Fatalf("GetEntry() error: %v", err)
	}
	if stored.LastModified != 100 {
		t.Errorf("stored LastModified = %d, want untouched 100", stored.LastModified)
	}
}

func TestRegistry_ListRemoteFailureFallsBack(t *testing.T) {
	c, _ := testutil.NewTestStore(t)
	remote := remoteListStub{err: &demo.TransientError{Err: errors.New("session expired")}}
	r := NewRegistry(c, false, nil, remote, demo.NewNopLogger())

	if err := r.Upsert(demo.RegistryEntry{ID: "a", Name: "a", StorageKind: demo.KindLocal, LastModified: 1}); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	entries, err := r.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v, want local fallback", err)
	}
	if len(entries) != 1 || entries[0].ID != "a" {
		t.Errorf("List() = %+v, want local entries only", entries)
	}
}

func TestRegistry_ListServerMode(t *testing.T) {
	c, _ := testutil.NewTestStore(t)
	server := testutil.NewFakeBackend(demo.KindServer)
	if _, err := server.Create(context.Background(), "on server", &demo.Body{}); err != nil {
		t.Fatalf("server Create() error: %v", err)
	}

	// Local entries are ignored entirely in server mode.
	r := NewRegistry(c, true, server, nil, demo.NewNopLogger())
	if err := c.UpsertEntry(demo.RegistryEntry{ID: "local", Name: "local", StorageKind: demo.KindLocal}); err != nil {
		t.Fatalf("UpsertEntry() error: %v", err)
	}

	entries, err := r.List(context.Background())
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "on server" {
		t.Errorf("List() = %+v, want server listing only", entries)
	}
}

func TestRegistry_ListServerModeWithoutBackend(t *testing.T) {
	c, _ := testutil.NewTestStore(t)
	r := NewRegistry(c, true, nil, nil, demo.NewNopLogger())

	if _, err := r.List(context.Background()); err == nil {
		t.Error("List() error = nil in server mode without backend, want error")
	}
}

// remoteListStub is a minimal backend whose List returns fixed entries.
type remoteListStub struct {
	entries []demo.RegistryEntry
	err     error
}

func (s remoteListStub) Kind() demo.StorageKind { return demo.KindRemoteFile }

func (s remoteListStub) List(context.Context) ([]demo.RegistryEntry, error) {
	return s.entries, s.err
}

func (s remoteListStub) Load(context.Context, *demo.Document) (*demo.Body, error) {
	return nil, demo.ErrNotFound
}

func (s remoteListStub) Save(context.Context, *demo.Document, *demo.Body) (demo.SaveResult, error) {
	return demo.SaveResult{}, nil
}

func (s remoteListStub) Create(context.Context, string, *demo.Body) (*demo.Document, error) {
	return nil, demo.ErrNotFound
}

func (s remoteListStub) Delete(context.Context, *demo.Document) error { return nil }

func (s remoteListStub) CheckModified(context.Context, *demo.Document, int64) (demo.ModCheck, error) {
	return demo.ModCheck{}, nil
}

func (s remoteListStub) Rename(context.Context, *demo.Document, string) (demo.SaveResult, error) {
	return demo.SaveResult{}, nil
}
