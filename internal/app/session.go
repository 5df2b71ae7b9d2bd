package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"demosync/internal/autosave"
	"demosync/internal/demo"
	"demosync/internal/poll"
)

func millis(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// SessionOptions carries the callbacks a view registers when opening a
// document. All fields are optional.
type SessionOptions struct {
	// OnStatus receives autosave status transitions for display.
	OnStatus func(autosave.Status)

	// OnExternalChange receives the new body after an out-of-band edit was
	// fetched. The autosave scheduler is already suppressed when this runs.
	OnExternalChange func(body *demo.Body)

	// OnTrashed is called when the remote file was trashed out-of-band.
	OnTrashed func()

	// Visible reports whether the view is foreground-visible; polls are
	// skipped while hidden. Nil means always visible.
	Visible func() bool
}

// Session is one open document: its current body, a debounced autosave
// scheduler, and a background poller watching for out-of-band changes.
//
// The session is the single writer of the document's mutable metadata:
// save results and external-change checks are delivered by callback from
// the scheduler and poller goroutines and applied here under mu.
type Session struct {
	doc       *demo.Document
	scheduler *autosave.Scheduler
	poller    *poll.Poller
	cancel    context.CancelFunc

	mu   sync.Mutex
	body *demo.Body
}

// Open loads the document with the given id and starts its autosave
// scheduler and poller. The caller must call Close on the returned session
// when the view goes away.
func (a *App) Open(ctx context.Context, id string, opts SessionOptions) (*Session, error) {
	doc, err := a.resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	body, err := a.facade.Load(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("opening document %s: %w", id, err)
	}

	backend, err := a.facade.Backend(doc.StorageKind)
	if err != nil {
		return nil, err
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	s := &Session{doc: doc, cancel: cancel, body: body}

	s.scheduler = autosave.NewScheduler(sessCtx, doc, a.facade, a.clock, a.logger, autosave.Options{
		Debounce: autosave.DebounceFor(doc.StorageKind, a.cfg.Autosave),
		OnStatus: opts.OnStatus,
		OnSaved: func(result demo.SaveResult) {
			s.mu.Lock()
			if result.LastModified != 0 {
				s.doc.LastModified = result.LastModified
			}
			if result.RemoteModifiedTime != "" {
				s.doc.RemoteModifiedTime = result.RemoteModifiedTime
			}
			s.mu.Unlock()
			s.poller.SetCursor(result.LastModified)
		},
	})

	pollOpts := poll.Options{
		Visible:   opts.Visible,
		OnTrashed: opts.OnTrashed,
		OnExternalChange: func(body *demo.Body, check demo.ModCheck) {
			s.mu.Lock()
			s.body = body
			if check.LastModified != 0 {
				s.doc.LastModified = check.LastModified
			}
			if check.ModifiedTime != "" {
				s.doc.RemoteModifiedTime = check.ModifiedTime
			}
			s.mu.Unlock()
			if opts.OnExternalChange != nil {
				opts.OnExternalChange(body)
			}
		},
	}
	if a.cfg.Poll.IntervalMs > 0 {
		pollOpts.Interval = millis(a.cfg.Poll.IntervalMs)
	}
	if a.cfg.Poll.GraceMs > 0 {
		pollOpts.Grace = millis(a.cfg.Poll.GraceMs)
	}
	s.poller = poll.NewPoller(doc, backend, s.scheduler, a.logger, pollOpts)

	go s.poller.Run(sessCtx)
	return s, nil
}

// Document returns a snapshot of the open document's metadata.
func (s *Session) Document() demo.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.doc
}

// Body returns the current body.
func (s *Session) Body() *demo.Body {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body
}

// Edit records body as the latest state and schedules a debounced save.
func (s *Session) Edit(body *demo.Body) {
	s.mu.Lock()
	s.body = body
	s.mu.Unlock()
	s.scheduler.Schedule(body)
}

// Close flushes any pending edit to the crash-survivable local path, stops
// the scheduler and the poller.
func (s *Session) Close() {
	s.scheduler.Close()
	s.cancel()
}
