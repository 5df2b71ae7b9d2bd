package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"demosync/internal/config"
	"demosync/internal/demo"
	"demosync/internal/testutil"
)

// stubTarget records saves and flushes, tracks save concurrency, and can
// block or fail saves on demand.
type stubTarget struct {
	mu            sync.Mutex
	saves         []*demo.Body
	flushes       []*demo.Body
	concurrent    int
	maxConcurrent int
	saveErr       error
	result        demo.SaveResult

	// When started is non-nil, each save signals it and then waits on
	// release before returning.
	started chan struct{}
	release chan struct{}
}

func (s *stubTarget) Save(_ context.Context, _ *demo.Document, body *demo.Body) (demo.SaveResult, error) {
	s.mu.Lock()
	s.concurrent++
	if s.concurrent > s.maxConcurrent {
		s.maxConcurrent = s.concurrent
	}
	started, release := s.started, s.release
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.concurrent--
	if s.saveErr != nil {
		return demo.SaveResult{}, s.saveErr
	}
	s.saves = append(s.saves, body)
	return s.result, nil
}

func (s *stubTarget) Flush(_ *demo.Document, body *demo.Body) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes = append(s.flushes, body)
	return nil
}

func (s *stubTarget) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func (s *stubTarget) lastSaved() *demo.Body {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return nil
	}
	return s.saves[len(s.saves)-1]
}

func (s *stubTarget) setSaveErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

func bodyWithHeadline(h string) *demo.Body {
	return &demo.Body{Overview: demo.Overview{Headline: h}}
}

// waitFor polls cond until it holds or the deadline passes.
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

func newTestScheduler(t *testing.T, target Target, opts Options) *Scheduler {
	t.Helper()
	if opts.Debounce == 0 {
		opts.Debounce = 10 * time.Millisecond
	}
	doc := &demo.Document{ID: "doc-1", StorageKind: demo.KindLocal}
	s := NewScheduler(context.Background(), doc, target, demo.RealClock{}, demo.NewNopLogger(), opts)
	t.Cleanup(s.Close)
	return s
}

func TestScheduler_RapidEditsCoalesce(t *testing.T) {
	target := &stubTarget{}
	s := newTestScheduler(t, target, Options{})

	for i := 0; i < 20; i++ {
		s.Schedule(bodyWithHeadline("edit"))
	}
	s.Schedule(bodyWithHeadline("final"))

	waitFor(t, "debounced save", func() bool { return target.saveCount() > 0 })

	if got := target.saveCount(); got != 1 {
		t.Errorf("save count = %d, want 1 (edits coalesced)", got)
	}
	if got := target.lastSaved().Overview.Headline; got != "final" {
		t.Errorf("saved Headline = %q, want the last edit", got)
	}
	target.mu.Lock()
	max := target.maxConcurrent
	target.mu.Unlock()
	if max > 1 {
		t.Errorf("max concurrent saves = %d, want at most 1", max)
	}
}

func TestScheduler_AtMostOneInFlight(t *testing.T) {
	target := &stubTarget{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	s := newTestScheduler(t, target, Options{})

	s.Schedule(bodyWithHeadline("first"))
	<-target.started // first save is now in flight

	// Edits arriving while a save is in flight queue up; their debounce
	// timers must not start a second save.
	s.Schedule(bodyWithHeadline("second"))
	s.Schedule(bodyWithHeadline("third"))
	time.Sleep(50 * time.Millisecond) // let the debounce timer fire

	target.mu.Lock()
	inFlight := target.concurrent
	target.mu.Unlock()
	if inFlight != 1 {
		t.Fatalf("saves in flight = %d while blocked, want exactly 1", inFlight)
	}

	// Releasing the first save lets the loop pick up the queued payload.
	target.release <- struct{}{}
	<-target.started
	target.release <- struct{}{}

	waitFor(t, "both saves to finish", func() bool { return target.saveCount() == 2 })

	target.mu.Lock()
	defer target.mu.Unlock()
	if target.maxConcurrent != 1 {
		t.Errorf("max concurrent saves = %d, want 1", target.maxConcurrent)
	}
	if got := target.saves[1].Overview.Headline; got != "third" {
		t.Errorf("second save Headline = %q, want the latest edit", got)
	}
}

func TestScheduler_FailedSaveRetries(t *testing.T) {
	target := &stubTarget{}
	target.setSaveErr(&demo.TransientError{Err: errors.New("backend down")})

	var mu sync.Mutex
	var statuses []Status
	s := newTestScheduler(t, target, Options{
		OnStatus: func(st Status) {
			mu.Lock()
			statuses = append(statuses, st)
			mu.Unlock()
		},
	})

	s.Schedule(bodyWithHeadline("precious edit"))

	waitFor(t, "error status", func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, st := range statuses {
			if st == StatusError {
				return true
			}
		}
		return false
	})

	// The failed payload was not dropped: once the backend recovers, the
	// rearmed debounce timer sends it.
	target.setSaveErr(nil)
	waitFor(t, "retried save", func() bool { return target.saveCount() == 1 })

	if got := target.lastSaved().Overview.Headline; got != "precious edit" {
		t.Errorf("retried Headline = %q, want the failed payload", got)
	}
}

func TestScheduler_SuppressDropsEchoes(t *testing.T) {
	clock := testutil.FixedClock()
	target := &stubTarget{}
	doc := &demo.Document{ID: "doc-1", StorageKind: demo.KindLocal}
	s := NewScheduler(context.Background(), doc, target, clock, demo.NewNopLogger(), Options{
		Debounce: 10 * time.Millisecond,
	})
	t.Cleanup(s.Close)

	s.Suppress(100 * time.Millisecond)

	// The echo of an applied external change arrives inside the window.
	s.Schedule(bodyWithHeadline("echo"))
	time.Sleep(50 * time.Millisecond)
	if got := target.saveCount(); got != 0 {
		t.Fatalf("save count = %d after suppressed edit, want 0", got)
	}

	// A genuine edit after the window saves normally.
	clock.Advance(200 * time.Millisecond)
	s.Schedule(bodyWithHeadline("real edit"))
	waitFor(t, "post-window save", func() bool { return target.saveCount() == 1 })

	if got := target.lastSaved().Overview.Headline; got != "real edit" {
		t.Errorf("saved Headline = %q, want the post-window edit", got)
	}
}

func TestScheduler_FlushWritesPendingLocally(t *testing.T) {
	target := &stubTarget{}
	s := newTestScheduler(t, target, Options{Debounce: time.Hour})

	s.Schedule(bodyWithHeadline("unsaved edit"))
	s.Flush()

	target.mu.Lock()
	defer target.mu.Unlock()
	if len(target.flushes) != 1 {
		t.Fatalf("flush count = %d, want 1", len(target.flushes))
	}
	if got := target.flushes[0].Overview.Headline; got != "unsaved edit" {
		t.Errorf("flushed Headline = %q, want pending edit", got)
	}
	if len(target.saves) != 0 {
		t.Errorf("save count = %d, want 0 (flush never saves)", len(target.saves))
	}
}

func TestScheduler_FlushWithoutPendingIsNoop(t *testing.T) {
	target := &stubTarget{}
	s := newTestScheduler(t, target, Options{})

	s.Flush()

	target.mu.Lock()
	defer target.mu.Unlock()
	if len(target.flushes) != 0 {
		t.Errorf("flush count = %d with nothing pending, want 0", len(target.flushes))
	}
}

func TestScheduler_CloseRejectsFurtherEdits(t *testing.T) {
	target := &stubTarget{}
	s := newTestScheduler(t, target, Options{Debounce: time.Hour})

	s.Schedule(bodyWithHeadline("pending"))
	s.Close()

	if len(target.flushes) != 1 {
		t.Fatalf("flush count = %d after Close, want 1", len(target.flushes))
	}

	s.Schedule(bodyWithHeadline("too late"))
	s.Flush()
	if len(target.flushes) != 1 {
		t.Errorf("flush count = %d after post-Close edit, want still 1", len(target.flushes))
	}
}

func TestScheduler_StatusLifecycle(t *testing.T) {
	target := &stubTarget{}
	var mu sync.Mutex
	var statuses []Status
	s := newTestScheduler(t, target, Options{
		SavedDisplay: 20 * time.Millisecond,
		OnStatus: func(st Status) {
			mu.Lock()
			statuses = append(statuses, st)
			mu.Unlock()
		},
	})

	s.Schedule(bodyWithHeadline("edit"))

	waitFor(t, "saved then idle", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(statuses) >= 3
	})

	mu.Lock()
	defer mu.Unlock()
	want := []Status{StatusSaving, StatusSaved, StatusIdle}
	for i, st := range want {
		if statuses[i] != st {
			t.Errorf("statuses[%d] = %q, want %q", i, statuses[i], st)
		}
	}
}

func TestScheduler_OnSavedReportsResult(t *testing.T) {
	target := &stubTarget{result: demo.SaveResult{LastModified: 1700000000000, RemoteModifiedTime: "2024-01-15T10:30:00.000Z"}}

	var mu sync.Mutex
	var results []demo.SaveResult
	doc := &demo.Document{ID: "doc-1", StorageKind: demo.KindRemoteFile, RemoteFileID: "f1"}
	s := NewScheduler(context.Background(), doc, target, demo.RealClock{}, demo.NewNopLogger(), Options{
		Debounce: 10 * time.Millisecond,
		OnSaved: func(r demo.SaveResult) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		},
	})
	t.Cleanup(s.Close)

	s.Schedule(bodyWithHeadline("edit"))

	waitFor(t, "save result", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) == 1
	})

	mu.Lock()
	if results[0].LastModified != 1700000000000 {
		t.Errorf("OnSaved LastModified = %d, want backend value", results[0].LastModified)
	}
	if results[0].RemoteModifiedTime != "2024-01-15T10:30:00.000Z" {
		t.Errorf("OnSaved RemoteModifiedTime = %q, want backend timestamp", results[0].RemoteModifiedTime)
	}
	mu.Unlock()

	// The document's mutable metadata belongs to the session that owns it;
	// the save goroutine reports results and writes nothing else.
	if doc.LastModified != 0 {
		t.Errorf("doc.LastModified = %d, want untouched by the scheduler", doc.LastModified)
	}
	if doc.RemoteModifiedTime != "" {
		t.Errorf("doc.RemoteModifiedTime = %q, want untouched by the scheduler", doc.RemoteModifiedTime)
	}
}

func TestScheduler_FailedSaveAfterCloseFlushes(t *testing.T) {
	target := &stubTarget{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	target.setSaveErr(&demo.TransientError{Err: errors.New("backend down")})
	s := newTestScheduler(t, target, Options{})

	s.Schedule(bodyWithHeadline("last edit"))
	<-target.started // the failing save is now in flight, nothing pending

	s.Close() // finds nothing to flush; the in-flight payload is at risk
	target.release <- struct{}{}

	// The failed payload has nowhere to requeue after Close, so it must
	// land on the crash-survivable path instead of vanishing.
	waitFor(t, "teardown flush of the failed payload", func() bool {
		target.mu.Lock()
		defer target.mu.Unlock()
		return len(target.flushes) == 1
	})

	target.mu.Lock()
	defer target.mu.Unlock()
	if got := target.flushes[0].Overview.Headline; got != "last edit" {
		t.Errorf("flushed Headline = %q, want the in-flight payload", got)
	}
	if len(target.saves) != 0 {
		t.Errorf("save count = %d, want 0", len(target.saves))
	}
}

func TestScheduler_FailedSaveAfterCloseKeepsNewerFlush(t *testing.T) {
	target := &stubTarget{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	target.setSaveErr(&demo.TransientError{Err: errors.New("backend down")})

	var mu sync.Mutex
	var statuses []Status
	s := newTestScheduler(t, target, Options{
		OnStatus: func(st Status) {
			mu.Lock()
			statuses = append(statuses, st)
			mu.Unlock()
		},
	})

	s.Schedule(bodyWithHeadline("old"))
	<-target.started // "old" is in flight and will fail

	s.Schedule(bodyWithHeadline("newer"))
	s.Close() // flushes "newer"
	target.release <- struct{}{}

	waitFor(t, "failed save to finish", func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, st := range statuses {
			if st == StatusError {
				return true
			}
		}
		return false
	})

	// The failed older payload must not overwrite the newer flushed edit.
	target.mu.Lock()
	defer target.mu.Unlock()
	if len(target.flushes) != 1 {
		t.Fatalf("flush count = %d, want 1", len(target.flushes))
	}
	if got := target.flushes[0].Overview.Headline; got != "newer" {
		t.Errorf("flushed Headline = %q, want the newest edit", got)
	}
}

func TestDebounceFor(t *testing.T) {
	tests := []struct {
		name string
		kind demo.StorageKind
		cfg  config.AutosaveConfig
		want time.Duration
	}{
		{"local default", demo.KindLocal, config.AutosaveConfig{}, DefaultLocalDebounce},
		{"remote default", demo.KindRemoteFile, config.AutosaveConfig{}, DefaultRemoteDebounce},
		{"server default", demo.KindServer, config.AutosaveConfig{}, DefaultRemoteDebounce},
		{"local configured", demo.KindLocal, config.AutosaveConfig{LocalDebounceMs: 150}, 150 * time.Millisecond},
		{"remote configured", demo.KindServer, config.AutosaveConfig{RemoteDebounceMs: 5000}, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DebounceFor(tt.kind, tt.cfg); got != tt.want {
				t.Errorf("DebounceFor() = %v, want %v", got, tt.want)
			}
		})
	}
}
