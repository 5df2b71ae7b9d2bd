// Package poll watches a document's backend for out-of-band changes while
// its view is open. Polling is best-effort: failures are swallowed, never
// surfaced to the user, and never interrupt editing.
package poll

import (
	"context"
	"sync"
	"time"

	"demosync/internal/demo"
)

// DefaultInterval matches the original polling cadence; external edits are
// user-paced, so half a minute is plenty.
const (
	DefaultInterval = 30 * time.Second
	DefaultGrace    = 100 * time.Millisecond
)

// Suppressor mutes the autosave scheduler for a grace window so an applied
// external change does not echo back to the backend as a fresh edit.
type Suppressor interface {
	Suppress(window time.Duration)
}

// Options configures a poller.
type Options struct {
	Interval time.Duration
	Grace    time.Duration

	// Visible reports whether the document view is foreground-visible.
	// Polls are skipped while hidden. Nil means always visible.
	Visible func() bool

	// OnExternalChange receives the freshly fetched body and the check
	// result after the cursor has advanced and the scheduler has been
	// suppressed. This replaces UI state. The poller never writes the
	// document itself; the owner applies the check's metadata under its
	// own lock.
	OnExternalChange func(body *demo.Body, check demo.ModCheck)

	// OnTrashed is called once when the backend reports the document was
	// trashed out-of-band; polling stops afterwards. Optional.
	OnTrashed func()
}

// Poller polls one open document. It runs only for backends that can be
// modified out-of-band; the local cache is exclusive to this client and is
// never polled.
type Poller struct {
	doc        *demo.Document
	backend    demo.Backend
	suppressor Suppressor
	logger     demo.Logger
	opts       Options

	mu     sync.Mutex
	cursor int64
}

// NewPoller creates a poller with its cursor seeded from the document's
// last known modification time.
func NewPoller(doc *demo.Document, backend demo.Backend, suppressor Suppressor, logger demo.Logger, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	return &Poller{
		doc:        doc,
		backend:    backend,
		suppressor: suppressor,
		logger:     logger,
		opts:       opts,
		cursor:     doc.LastModified,
	}
}

// SetCursor advances the poll cursor, typically after this client's own
// save so the backend's echo of that save is not refetched.
func (p *Poller) SetCursor(lastModified int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if lastModified > p.cursor {
		p.cursor = lastModified
	}
}

// Cursor returns the current poll cursor.
func (p *Poller) Cursor() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Run polls until ctx is canceled. Returns immediately for local documents.
// Polls run inline on the loop goroutine, so a slow poll spanning ticks
// cannot overlap a new one; missed ticks are dropped.
func (p *Poller) Run(ctx context.Context) {
	if p.backend.Kind() == demo.KindLocal {
		return
	}

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.opts.Visible != nil && !p.opts.Visible() {
				continue
			}
			if !p.poll(ctx) {
				return
			}
		}
	}
}

// poll performs one modified-since probe and, on change, fetches and
// delivers the new body. Every failure is logged at warn and swallowed.
// Returns false when polling should stop: a trashed document is gone for
// good, and repeating the notification every tick would spam the caller.
func (p *Poller) poll(ctx context.Context) bool {
	check, err := p.backend.CheckModified(ctx, p.doc, p.Cursor())
	if err != nil {
		p.logger.Warn("poll check failed", "id", p.doc.ID, "error", err)
		return true
	}

	if check.Trashed {
		p.logger.Info("document trashed at backend", "id", p.doc.ID)
		if p.opts.OnTrashed != nil {
			p.opts.OnTrashed()
		}
		return false
	}
	if !check.Modified {
		return true
	}

	body, err := p.backend.Load(ctx, p.doc)
	if err != nil {
		p.logger.Warn("poll fetch failed", "id", p.doc.ID, "error", err)
		return true
	}

	p.SetCursor(check.LastModified)

	// Suppress before delivery: replacing UI state triggers an edit event,
	// and that echo must not round-trip back to the backend.
	if p.suppressor != nil {
		p.suppressor.Suppress(p.opts.Grace)
	}
	if p.opts.OnExternalChange != nil {
		p.opts.OnExternalChange(body, check)
	}
	return true
}
