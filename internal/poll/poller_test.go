package poll

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"demosync/internal/demo"
	"demosync/internal/testutil"
)

// recorder collects the order of suppress and delivery events so tests can
// assert that suppression happens before the external change is applied.
type recorder struct {
	mu     sync.Mutex
	events []string
	window time.Duration
}

func (r *recorder) Suppress(window time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "suppress")
	r.window = window
}

func (r *recorder) delivered() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "deliver")
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPoller_LocalDocumentsNeverPoll(t *testing.T) {
	backend := testutil.NewFakeBackend(demo.KindLocal)
	doc := &demo.Document{ID: "doc-1", StorageKind: demo.KindLocal}
	p := NewPoller(doc, backend, nil, demo.NewNopLogger(), Options{Interval: time.Millisecond})

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return for a local document")
	}
	if got := backend.CheckCalls(); got != 0 {
		t.Errorf("CheckModified calls = %d for local document, want 0", got)
	}
}

func TestPoller_ExternalChangeSuppressesThenDelivers(t *testing.T) {
	backend := testutil.NewFakeBackend(demo.KindRemoteFile)
	backend.SetBody("doc-1", &demo.Body{Overview: demo.Overview{Headline: "external edit"}})
	backend.SetModCheck(demo.ModCheck{
		Modified:     true,
		LastModified: 500,
		ModifiedTime: "2024-01-15T11:00:00.000Z",
	})

	rec := &recorder{}
	doc := &demo.Document{ID: "doc-1", StorageKind: demo.KindRemoteFile, LastModified: 100}

	var mu sync.Mutex
	var got *demo.Body
	var gotCheck demo.ModCheck
	p := NewPoller(doc, backend, rec, demo.NewNopLogger(), Options{
		Interval: 5 * time.Millisecond,
		Grace:    100 * time.Millisecond,
		OnExternalChange: func(body *demo.Body, check demo.ModCheck) {
			rec.delivered()
			mu.Lock()
			got = body
			gotCheck = check
			mu.Unlock()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	waitFor(t, "external change delivery", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil
	})
	cancel()

	mu.Lock()
	if got.Overview.Headline != "external edit" {
		t.Errorf("delivered Headline = %q, want backend body", got.Overview.Headline)
	}
	mu.Unlock()

	// Suppression always precedes delivery, so the UI's resulting edit
	// event is muted before it can fire.
	events := rec.snapshot()
	if len(events) < 2 || events[0] != "suppress" || events[1] != "deliver" {
		t.Errorf("events = %v, want suppress before deliver", events)
	}
	if rec.window != 100*time.Millisecond {
		t.Errorf("suppress window = %v, want grace window", rec.window)
	}

	if p.Cursor() != 500 {
		t.Errorf("Cursor() = %d, want advanced to backend timestamp", p.Cursor())
	}

	// Metadata travels through the callback; the document belongs to the
	// session that owns it and is never written from the poll goroutine.
	mu.Lock()
	if gotCheck.ModifiedTime != "2024-01-15T11:00:00.000Z" {
		t.Errorf("delivered ModifiedTime = %q, want backend timestamp", gotCheck.ModifiedTime)
	}
	mu.Unlock()
	if doc.RemoteModifiedTime != "" {
		t.Errorf("doc.RemoteModifiedTime = %q, want untouched by the poller", doc.RemoteModifiedTime)
	}
}

func TestPoller_UnmodifiedFetchesNothing(t *testing.T) {
	backend := testutil.NewFakeBackend(demo.KindRemoteFile)
	backend.SetModCheck(demo.ModCheck{Modified: false})

	var delivered atomic.Bool
	doc := &demo.Document{ID: "doc-1", StorageKind: demo.KindRemoteFile, LastModified: 100}
	p := NewPoller(doc, backend, nil, demo.NewNopLogger(), Options{
		Interval:         5 * time.Millisecond,
		OnExternalChange: func(*demo.Body, demo.ModCheck) { delivered.Store(true) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	waitFor(t, "at least two probes", func() bool { return backend.CheckCalls() >= 2 })
	cancel()

	if delivered.Load() {
		t.Error("OnExternalChange fired without a modification")
	}
	if p.Cursor() != 100 {
		t.Errorf("Cursor() = %d, want unchanged seed", p.Cursor())
	}
}

func TestPoller_HiddenSkipsProbes(t *testing.T) {
	backend := testutil.NewFakeBackend(demo.KindRemoteFile)
	backend.SetModCheck(demo.ModCheck{Modified: true, LastModified: 500})

	doc := &demo.Document{ID: "doc-1", StorageKind: demo.KindRemoteFile}
	p := NewPoller(doc, backend, nil, demo.NewNopLogger(), Options{
		Interval: time.Millisecond,
		Visible:  func() bool { return false },
	})

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()

	if got := backend.CheckCalls(); got != 0 {
		t.Errorf("CheckModified calls = %d while hidden, want 0", got)
	}
}

func TestPoller_TrashedDocument(t *testing.T) {
	backend := testutil.NewFakeBackend(demo.KindRemoteFile)
	backend.SetModCheck(demo.ModCheck{Trashed: true})

	trashed := make(chan struct{}, 1)
	doc := &demo.Document{ID: "doc-1", StorageKind: demo.KindRemoteFile}
	p := NewPoller(doc, backend, nil, demo.NewNopLogger(), Options{
		Interval: 5 * time.Millisecond,
		OnTrashed: func() {
			select {
			case trashed <- struct{}{}:
			default:
			}
		},
		OnExternalChange: func(*demo.Body, demo.ModCheck) {
			t.Error("OnExternalChange fired for a trashed document")
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	select {
	case <-trashed:
	case <-time.After(2 * time.Second):
		t.Fatal("OnTrashed never fired")
	}
}

func TestPoller_TrashedStopsPolling(t *testing.T) {
	backend := testutil.NewFakeBackend(demo.KindRemoteFile)
	backend.SetModCheck(demo.ModCheck{Trashed: true})

	var notifications atomic.Int32
	doc := &demo.Document{ID: "doc-1", StorageKind: demo.KindRemoteFile}
	p := NewPoller(doc, backend, nil, demo.NewNopLogger(), Options{
		Interval:  time.Millisecond,
		OnTrashed: func() { notifications.Add(1) },
	})

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() kept polling after the document was trashed")
	}

	if got := notifications.Load(); got != 1 {
		t.Errorf("OnTrashed fired %d times, want exactly once", got)
	}
	if got := backend.CheckCalls(); got != 1 {
		t.Errorf("probes = %d, want loop stopped after the trash probe", got)
	}
}

func TestPoller_SetCursorOnlyAdvances(t *testing.T) {
	backend := testutil.NewFakeBackend(demo.KindRemoteFile)
	doc := &demo.Document{ID: "doc-1", StorageKind: demo.KindRemoteFile, LastModified: 100}
	p := NewPoller(doc, backend, nil, demo.NewNopLogger(), Options{})

	p.SetCursor(300)
	if p.Cursor() != 300 {
		t.Errorf("Cursor() = %d, want 300", p.Cursor())
	}

	// A stale save result must not rewind the cursor, or the poller would
	// refetch a change this client already has.
	p.SetCursor(200)
	if p.Cursor() != 300 {
		t.Errorf("Cursor() = %d after stale SetCursor, want still 300", p.Cursor())
	}
}

func TestPoller_ProbeFailureSwallowed(t *testing.T) {
	backend := testutil.NewFakeBackend(demo.KindRemoteFile)
	backend.SetModCheck(demo.ModCheck{Modified: true, LastModified: 500})
	backend.LoadErr = &demo.TransientError{}

	doc := &demo.Document{ID: "doc-1", StorageKind: demo.KindRemoteFile, LastModified: 100}
	p := NewPoller(doc, backend, nil, demo.NewNopLogger(), Options{
		Interval: 5 * time.Millisecond,
		OnExternalChange: func(*demo.Body, demo.ModCheck) {
			t.Error("OnExternalChange fired despite fetch failure")
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	waitFor(t, "failed fetch attempts", func() bool { return backend.CheckCalls() >= 2 })
	cancel()

	// The cursor stays put so the change is retried next cycle.
	if p.Cursor() != 100 {
		t.Errorf("Cursor() = %d after failed fetch, want unchanged", p.Cursor())
	}
}
