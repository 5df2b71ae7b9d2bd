// Package autosave coalesces rapid edits into debounced saves with at most
// one save in flight per document. Consolidates what would otherwise be
// timer state scattered across call sites into one state machine per open
// document, exposing only Schedule and Flush to callers.
package autosave

import (
	"context"
	"sync"
	"time"

	"demosync/internal/config"
	"demosync/internal/demo"
)

// Status is the user-visible save state. Saved auto-reverts to Idle after a
// short display window.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
	StatusError  Status = "error"
)

// Default intervals. Local cache saves are cheap, so the debounce is short;
// remote-file and server saves cost a network round-trip and are rate
// limited, so edits coalesce over a longer window.
const (
	DefaultLocalDebounce  = 400 * time.Millisecond
	DefaultRemoteDebounce = 2 * time.Second
	DefaultSavedDisplay   = 1500 * time.Millisecond
)

// Target is what the scheduler saves to: the persistence facade, or a fake
// in tests.
type Target interface {
	Save(ctx context.Context, doc *demo.Document, body *demo.Body) (demo.SaveResult, error)
	Flush(doc *demo.Document, body *demo.Body) error
}

// Options configures a scheduler. Zero durations take the defaults for the
// document's storage kind.
type Options struct {
	Debounce     time.Duration
	SavedDisplay time.Duration

	// OnStatus receives every status transition. Called from scheduler
	// goroutines; implementations must be quick.
	OnStatus func(Status)

	// OnSaved receives the backend-assigned metadata after each
	// successful save, so callers can advance their poll cursor. The
	// scheduler never writes the document itself; the owner applies the
	// result under its own lock.
	OnSaved func(demo.SaveResult)
}

// DebounceFor resolves the debounce interval for kind from config, falling
// back to the defaults.
func DebounceFor(kind demo.StorageKind, cfg config.AutosaveConfig) time.Duration {
	if kind == demo.KindLocal {
		if cfg.LocalDebounceMs > 0 {
			return time.Duration(cfg.LocalDebounceMs) * time.Millisecond
		}
		return DefaultLocalDebounce
	}
	if cfg.RemoteDebounceMs > 0 {
		return time.Duration(cfg.RemoteDebounceMs) * time.Millisecond
	}
	return DefaultRemoteDebounce
}

// Scheduler is the per-document autosave state machine:
// Idle -> Pending -> Saving -> Idle, with Saving -> Error -> Idle on
// failure, accepting new edits in every state.
//
// Invariants: at most one save is in flight per document; the latest
// pending body always wins and is eventually sent; a failed save's payload
// stays queued rather than being dropped, or goes to the crash-survivable
// path when teardown has already drained the queue.
type Scheduler struct {
	ctx    context.Context
	doc    *demo.Document
	target Target
	clock  demo.Clock
	logger demo.Logger

	debounce     time.Duration
	savedDisplay time.Duration
	onStatus     func(Status)
	onSaved      func(demo.SaveResult)

	mu      sync.Mutex
	pending *demo.Body
	// seq numbers edits so teardown can tell whether a failed save's
	// payload is older than one already flushed.
	pendingSeq    uint64
	seq           uint64
	flushedSeq    uint64
	inFlight      bool
	closed        bool
	suppressUntil time.Time
	timer         *time.Timer
	revertTimer   *time.Timer
	status        Status
}

// NewScheduler creates a scheduler for one open document. ctx bounds every
// save issued by this scheduler; cancel it on teardown after Flush.
func NewScheduler(ctx context.Context, doc *demo.Document, target Target, clock demo.Clock, logger demo.Logger, opts Options) *Scheduler {
	s := &Scheduler{
		ctx:          ctx,
		doc:          doc,
		target:       target,
		clock:        clock,
		logger:       logger,
		debounce:     opts.Debounce,
		savedDisplay: opts.SavedDisplay,
		onStatus:     opts.OnStatus,
		onSaved:      opts.OnSaved,
		status:       StatusIdle,
	}
	if s.debounce <= 0 {
		s.debounce = DefaultLocalDebounce
	}
	if s.savedDisplay <= 0 {
		s.savedDisplay = DefaultSavedDisplay
	}
	return s
}

// Schedule records body as the latest pending payload and restarts the
// debounce timer. Calls within the suppression window are dropped: they are
// the echo of an externally fetched change, not a local edit.
func (s *Scheduler) Schedule(body *demo.Body) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.clock.Now().Before(s.suppressUntil) {
		s.logger.Debug("edit suppressed inside grace window", "id", s.doc.ID)
		return
	}

	s.seq++
	s.pending = body
	s.pendingSeq = s.seq
	s.restartTimerLocked(s.debounce)
}

// Suppress drops Schedule calls for the given window. The poller calls this
// right before replacing UI state with an external change, so the resulting
// edit event does not round-trip back to the backend.
func (s *Scheduler) Suppress(window time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppressUntil = s.clock.Now().Add(window)
}

// Flush synchronously writes any pending payload to the crash-survivable
// local path. Never calls the network, so it is safe on tab close and
// process teardown even for remote-backed documents.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	pending, seq := s.pending, s.pendingSeq
	s.pending = nil
	if pending != nil && seq > s.flushedSeq {
		s.flushedSeq = seq
	}
	s.mu.Unlock()

	if pending == nil {
		return
	}
	if err := s.target.Flush(s.doc, pending); err != nil {
		// Flush is a last resort; there is nowhere further to fall.
		s.logger.Error("teardown flush failed", "id", s.doc.ID, "error", err)
	}
}

// Close flushes any pending payload and stops accepting edits. An in-flight
// save is left to finish on its own; if it fails, its payload is written to
// the crash-survivable path rather than dropped.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	if s.revertTimer != nil {
		s.revertTimer.Stop()
		s.revertTimer = nil
	}
	s.mu.Unlock()
	s.Flush()
}

// restartTimerLocked arms the debounce timer, replacing any previous one.
func (s *Scheduler) restartTimerLocked(d time.Duration) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(d, s.onTimer)
}

// onTimer fires when the debounce window elapses. If a save is already in
// flight the payload simply stays pending: the save loop picks it up the
// moment the in-flight call completes.
func (s *Scheduler) onTimer() {
	s.mu.Lock()
	if s.closed || s.inFlight || s.pending == nil {
		s.mu.Unlock()
		return
	}
	body, seq := s.pending, s.pendingSeq
	s.pending = nil
	s.inFlight = true
	s.mu.Unlock()

	go s.runSave(body, seq)
}

// runSave performs saves until no newer payload remains. The in-flight flag
// is held across the whole loop and cleared on every exit path.
func (s *Scheduler) runSave(body *demo.Body, seq uint64) {
	for {
		s.setStatus(StatusSaving)

		result, err := s.target.Save(s.ctx, s.doc, body)

		s.mu.Lock()
		if err != nil {
			s.logger.Warn("autosave failed", "id", s.doc.ID, "error", err)
			if s.pending == nil {
				if s.closed {
					// Teardown already drained the queue, so parking the
					// payload there would lose it. The crash-survivable
					// path is the only place left, unless Close flushed
					// something newer.
					s.inFlight = false
					flush := seq > s.flushedSeq
					if flush {
						s.flushedSeq = seq
					}
					s.mu.Unlock()
					if flush {
						if ferr := s.target.Flush(s.doc, body); ferr != nil {
							s.logger.Error("teardown flush failed", "id", s.doc.ID, "error", ferr)
						}
					}
					s.setStatus(StatusError)
					return
				}
				// Keep the failed payload queued for the next cycle.
				s.pending = body
				s.pendingSeq = seq
				s.inFlight = false
				s.restartTimerLocked(s.debounce)
				s.mu.Unlock()
				s.setStatus(StatusError)
				return
			}
			// A newer edit superseded the failed payload; send it now.
			body, seq = s.pending, s.pendingSeq
			s.pending = nil
			s.mu.Unlock()
			s.setStatus(StatusError)
			continue
		}

		if s.pending != nil {
			body, seq = s.pending, s.pendingSeq
			s.pending = nil
			s.mu.Unlock()
			if s.onSaved != nil {
				s.onSaved(result)
			}
			continue
		}

		s.inFlight = false
		s.mu.Unlock()

		if s.onSaved != nil {
			s.onSaved(result)
		}
		s.setStatus(StatusSaved)
		s.scheduleRevert()
		return
	}
}

// setStatus records and emits a status transition.
func (s *Scheduler) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	cb := s.onStatus
	s.mu.Unlock()

	if cb != nil {
		cb(status)
	}
}

// scheduleRevert flips Saved back to Idle after the display window, unless
// another transition happened in between.
func (s *Scheduler) scheduleRevert() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.revertTimer != nil {
		s.revertTimer.Stop()
	}
	s.revertTimer = time.AfterFunc(s.savedDisplay, func() {
		s.mu.Lock()
		quiet := s.status == StatusSaved && !s.closed
		s.mu.Unlock()
		if quiet {
			s.setStatus(StatusIdle)
		}
	})
}
