package testutil

import (
	"context"
	"sync"

	"demosync/internal/demo"
)

// FakeBackend is an in-memory demo.Backend that records every call and
// tracks how many saves run concurrently, so tests can assert the
// at-most-one-in-flight invariant. Safe for concurrent use.
type FakeBackend struct {
	BackendKind demo.StorageKind
	Clock       *StubClock
	IDGen       *StubIDGenerator

	// SaveErr, when non-nil, fails the next Save calls until cleared.
	SaveErr error
	// LoadErr, when non-nil, fails Load.
	LoadErr error
	// SaveStarted, when non-nil, receives a signal as each save enters
	// and blocks until SaveRelease is signaled, letting tests hold a
	// save in flight.
	SaveStarted chan struct{}
	SaveRelease chan struct{}

	mu             sync.Mutex
	bodies         map[string]*demo.Body
	entries        map[string]demo.RegistryEntry
	lastModified   map[string]int64
	saves          int
	concurrent     int
	maxConcurrent  int
	savedBodies    []*demo.Body
	checkCalls     int
	modCheckResult demo.ModCheck
}

// NewFakeBackend creates a fake backend of the given kind.
func NewFakeBackend(kind demo.StorageKind) *FakeBackend {
	return &FakeBackend{
		BackendKind:  kind,
		Clock:        FixedClock(),
		IDGen:        NewStubIDGenerator(),
		bodies:       make(map[string]*demo.Body),
		entries:      make(map[string]demo.RegistryEntry),
		lastModified: make(map[string]int64),
	}
}

func (b *FakeBackend) Kind() demo.StorageKind { return b.BackendKind }

func (b *FakeBackend) Load(_ context.Context, doc *demo.Document) (*demo.Body, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.LoadErr != nil {
		return nil, b.LoadErr
	}
	body, ok := b.bodies[doc.ID]
	if !ok {
		return nil, demo.ErrNotFound
	}
	return body, nil
}

func (b *FakeBackend) Save(_ context.Context, doc *demo.Document, body *demo.Body) (demo.SaveResult, error) {
	b.mu.Lock()
	b.saves++
	b.concurrent++
	if b.concurrent > b.maxConcurrent {
		b.maxConcurrent = b.concurrent
	}
	started, release := b.SaveStarted, b.SaveRelease
	b.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.concurrent--

	if b.SaveErr != nil {
		return demo.SaveResult{}, b.SaveErr
	}

	b.bodies[doc.ID] = body
	b.savedBodies = append(b.savedBodies, body)
	b.lastModified[doc.ID] = demo.NowMillis(b.Clock)
	return demo.SaveResult{LastModified: b.lastModified[doc.ID]}, nil
}

func (b *FakeBackend) Create(_ context.Context, name string, body *demo.Body) (*demo.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.IDGen.New()
	b.bodies[id] = body
	now := demo.NowMillis(b.Clock)
	b.lastModified[id] = now
	b.entries[id] = demo.RegistryEntry{ID: id, Name: name, StorageKind: b.BackendKind, LastModified: now}
	return &demo.Document{ID: id, Name: name, StorageKind: b.BackendKind, LastModified: now}, nil
}

func (b *FakeBackend) Delete(_ context.Context, doc *demo.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.bodies, doc.ID)
	delete(b.entries, doc.ID)
	return nil
}

func (b *FakeBackend) List(context.Context) ([]demo.RegistryEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := make([]demo.RegistryEntry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e)
	}
	return entries, nil
}

func (b *FakeBackend) CheckModified(_ context.Context, _ *demo.Document, cursor int64) (demo.ModCheck, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkCalls++
	return b.modCheckResult, nil
}

func (b *FakeBackend) Rename(_ context.Context, doc *demo.Document, name string) (demo.SaveResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.entries[doc.ID]; ok {
		e.Name = name
		b.entries[doc.ID] = e
	}
	return demo.SaveResult{LastModified: demo.NowMillis(b.Clock)}, nil
}

// SetBody seeds a stored body directly.
func (b *FakeBackend) SetBody(id string, body *demo.Body) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bodies[id] = body
}

// SetModCheck sets the result returned by CheckModified.
func (b *FakeBackend) SetModCheck(check demo.ModCheck) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.modCheckResult = check
}

// SetSaveErr sets or clears the error returned by Save.
func (b *FakeBackend) SetSaveErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.SaveErr = err
}

// Saves returns how many saves were attempted.
func (b *FakeBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

// MaxConcurrentSaves returns the peak number of saves in flight at once.
func (b *FakeBackend) MaxConcurrentSaves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxConcurrent
}

// LastSavedBody returns the most recently stored body, or nil.
func (b *FakeBackend) LastSavedBody() *demo.Body {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.savedBodies) == 0 {
		return nil
	}
	return b.savedBodies[len(b.savedBodies)-1]
}

// CheckCalls returns how many CheckModified probes were made.
func (b *FakeBackend) CheckCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.checkCalls
}

// Compile-time check that FakeBackend implements the demo.Backend interface
var _ demo.Backend = (*FakeBackend)(nil)
