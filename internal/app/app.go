package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"demosync/internal/cache"
	"demosync/internal/config"
	"demosync/internal/demo"
	"demosync/internal/serverapi"
	"demosync/internal/store"
)

// App is the application layer between the CLI and the persistence stack.
// It constructs all dependencies from config, discovers whether the server
// is the authoritative store, and manages the cache lifecycle on Close.
type App struct {
	cfg        *config.Config
	cache      *cache.Store
	facade     *store.Facade
	registry   *store.Registry
	clock      demo.Clock
	logger     demo.Logger
	serverMode bool
	logFile    *os.File
}

// NewApp creates a fully wired App from the given config. tokens may be nil
// when there is no remote file store session; remote-file documents are then
// served from their local shadow copies only. The caller must call Close
// when done.
func NewApp(cfg *config.Config, tokens demo.TokenSource) (*App, error) {
	sessionID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, sessionID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger}

	clock := demo.RealClock{}
	c, err := cache.NewStoreFromConfig(cfg.Cache, clock, log)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating cache store: %w", err)
	}

	facade := store.NewFacadeFromConfig(cfg, c, tokens, clock, demo.UUIDGenerator{}, log)

	// The server decides whether it is the authoritative store. An
	// unreachable server means local mode; documents must stay editable.
	serverMode := false
	if cfg.ServerAPI.BaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		mode := serverapi.NewClient(cfg.ServerAPI).StorageMode(ctx)
		cancel()
		serverMode = mode == demo.ServerStorageWireValue
		log.Info("storage mode discovered", "mode", mode, "serverMode", serverMode)
	}

	server, _ := facade.Backend(demo.KindServer)
	remote, _ := facade.Backend(demo.KindRemoteFile)
	registry := store.NewRegistry(c, serverMode, server, remote, log)

	return &App{
		cfg:        cfg,
		cache:      c,
		facade:     facade,
		registry:   registry,
		clock:      clock,
		logger:     log,
		serverMode: serverMode,
		logFile:    logFile,
	}, nil
}

// ServerMode reports whether the server is the authoritative store for this
// session.
func (a *App) ServerMode() bool { return a.serverMode }

// DefaultKind returns the storage kind new documents get when the caller
// does not pick one: the server when it is authoritative, otherwise the
// configured default.
func (a *App) DefaultKind() demo.StorageKind {
	if a.serverMode {
		return demo.KindServer
	}
	kind := demo.StorageKind(a.cfg.DefaultStorage)
	if !kind.Valid() {
		return demo.KindLocal
	}
	return kind
}

// List returns one registry entry per live document, most recent first.
func (a *App) List(ctx context.Context) ([]demo.RegistryEntry, error) {
	return a.registry.List(ctx)
}

// Create makes a new empty document of the given kind.
func (a *App) Create(ctx context.Context, kind demo.StorageKind, name string) (*demo.Document, error) {
	return a.facade.Create(ctx, kind, name)
}

// Delete removes the document with the given id from its backend and from
// the registry.
func (a *App) Delete(ctx context.Context, id string) error {
	doc, err := a.resolve(ctx, id)
	if err != nil {
		return err
	}
	return a.facade.Delete(ctx, doc)
}

// Rename changes the document's display name without touching its body.
func (a *App) Rename(ctx context.Context, id string, name string) error {
	doc, err := a.resolve(ctx, id)
	if err != nil {
		return err
	}
	return a.facade.Rename(ctx, doc, name)
}

// resolve finds the document with the given id via the registry.
func (a *App) resolve(ctx context.Context, id string) (*demo.Document, error) {
	if a.serverMode {
		return &demo.Document{ID: id, StorageKind: demo.KindServer}, nil
	}

	entry, err := a.cache.GetEntry(id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		// Not in the local index; it may exist at the remote store only.
		entries, listErr := a.registry.List(ctx)
		if listErr != nil {
			return nil, listErr
		}
		for i := range entries {
			if entries[i].ID == id {
				entry = &entries[i]
				break
			}
		}
	}
	if entry == nil {
		return nil, fmt.Errorf("looking up document %s: %w", id, demo.ErrNotFound)
	}

	return &demo.Document{
		ID:                 entry.ID,
		Name:               entry.Name,
		StorageKind:        entry.StorageKind,
		LastModified:       entry.LastModified,
		RemoteFileID:       entry.RemoteFileID,
		RemoteModifiedTime: entry.RemoteModifiedTime,
	}, nil
}

// Close closes the cache and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.cache.Close(); err != nil {
		firstErr = fmt.Errorf("closing cache: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
