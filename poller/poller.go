// Package poller turns periodic remote snapshots into ordered change events.
//
// A Poller owns its snapshot: the known pages and folders of one scope and
// the time of the last successful cycle. At most one cycle runs at a time;
// a trigger that arrives while a cycle is in flight is dropped.
package poller

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/logger"
	"github.com/teranos/pagesync/remote"
	"github.com/teranos/pagesync/sym"
	"github.com/teranos/pagesync/types"
)

// States reported by State.
const (
	StateIdle    = "idle"
	StatePolling = "polling"
)

// Config configures a Poller.
type Config struct {
	Scope    types.Scope
	Interval time.Duration // ticker period for Start; default 60s
}

// DefaultInterval is used when Config.Interval is zero.
const DefaultInterval = 60 * time.Second

// Poller polls one scope.
type Poller struct {
	client   remote.Client
	scope    types.Scope
	interval time.Duration

	polling     atomic.Bool
	initialized atomic.Bool

	mu       sync.Mutex // guards snap and handlers
	snap     Snapshot
	handlers []Handler

	runMu   sync.Mutex // guards cancel and wg across Start/Stop
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	resetCh chan time.Duration

	now    func() time.Time
	logger *zap.SugaredLogger
}

// New creates an idle poller with an empty snapshot.
func New(client remote.Client, cfg Config, log *zap.SugaredLogger) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		client:   client,
		scope:    cfg.Scope,
		interval: interval,
		snap:     newSnapshot(),
		resetCh:  make(chan time.Duration, 1),
		now:      time.Now,
		logger:   logger.Or(log).Named("poller"),
	}
}

// On registers a handler. Handlers added during a cycle take effect on the
// next one.
func (p *Poller) On(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
}

// State reports idle or polling.
func (p *Poller) State() string {
	if p.polling.Load() {
		return StatePolling
	}
	return StateIdle
}

// Snapshot returns a copy of the known state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap.clone()
}

// Scope returns the polled scope.
func (p *Poller) Scope() types.Scope { return p.scope }

func (p *Poller) acquire() bool { return p.polling.CompareAndSwap(false, true) }
func (p *Poller) release()      { p.polling.Store(false) }

// Initialize seeds the snapshot from a full enumeration without emitting
// events. It returns errors.ErrPollInProgress if a cycle is running.
func (p *Poller) Initialize(ctx context.Context) error {
	if !p.acquire() {
		return errors.ErrPollInProgress
	}
	defer p.release()
	return p.seed(ctx, p.now())
}

func (p *Poller) seed(ctx context.Context, start time.Time) error {
	pages, err := p.enumeratePages(ctx)
	if err != nil {
		return errors.Wrap(err, "initial page enumeration")
	}
	folders, err := p.client.ListFolders(ctx, p.scope)
	if err != nil {
		return errors.Wrap(err, "initial folder enumeration")
	}

	snap := newSnapshot()
	for _, pg := range pages {
		snap.Pages[pg.ID] = Entry{Version: pg.Version, Title: pg.Title}
	}
	for _, f := range folders {
		snap.Folders[f.ID] = Entry{Version: f.Version, Title: f.Title}
	}
	snap.LastPollAt = start

	p.mu.Lock()
	p.snap = snap
	p.mu.Unlock()
	p.initialized.Store(true)

	logger.PollInfow(p.logger, "Poller initialized",
		logger.FieldScope, p.scope.String(), "pages", len(snap.Pages), "folders", len(snap.Folders))
	return nil
}

// enumeratePages lists every page in scope. A page scope has no listing,
// so its single page is fetched instead.
func (p *Poller) enumeratePages(ctx context.Context) ([]remote.Page, error) {
	if s, ok := p.scope.(types.PageScope); ok {
		pg, err := p.client.GetPage(ctx, s.PageID)
		if err != nil {
			return nil, err
		}
		return []remote.Page{*pg}, nil
	}
	return p.client.ListPages(ctx, p.scope)
}

// Poll runs one cycle. A call while another cycle is running returns a
// Result with Skipped set. The first call on an uninitialized poller seeds
// the snapshot and reports Baseline.
//
// Snapshot entries are updated stage by stage; when a transport call fails
// the entries already applied stay, their events are still dispatched, and
// LastPollAt does not move.
func (p *Poller) Poll(ctx context.Context) (Result, error) {
	if !p.acquire() {
		p.logger.Debugw("Poll skipped, cycle in flight")
		return Result{Skipped: true}, nil
	}
	defer p.release()

	res := Result{CycleID: uuid.NewString(), StartedAt: p.now()}
	ctx = logger.WithCycleID(ctx, res.CycleID)
	log := logger.FromContext(ctx, p.logger)

	if !p.initialized.Load() {
		res.Baseline = true
		err := p.seed(ctx, res.StartedAt)
		res.Duration = p.now().Sub(res.StartedAt)
		return res, err
	}

	events, cycleErr := p.diff(ctx, res)
	res.Events = events
	p.dispatch(ctx, log, events)

	if cycleErr == nil {
		p.mu.Lock()
		p.snap.LastPollAt = res.StartedAt
		p.mu.Unlock()
	}
	res.Duration = p.now().Sub(res.StartedAt)

	if cycleErr != nil {
		logger.PollWarnw(log, "Poll cycle failed",
			logger.FieldScope, p.scope.String(), logger.FieldError, cycleErr, logger.FieldCount, len(events))
		return res, cycleErr
	}
	logger.PollInfow(log, "Poll cycle complete",
		logger.FieldScope, p.scope.String(), logger.FieldCount, len(events),
		logger.FieldDurationMS, res.Duration.Milliseconds())
	return res, nil
}

// diff computes the cycle's events, applying each stage to the snapshot as
// it completes. Page events precede folder events.
func (p *Poller) diff(ctx context.Context, res Result) ([]Event, error) {
	var events []Event
	emit := func(e Event) {
		e.CycleID = res.CycleID
		e.At = res.StartedAt
		events = append(events, e)
	}

	p.mu.Lock()
	since := p.snap.LastPollAt
	p.mu.Unlock()

	changed, err := p.client.ChangedSince(ctx, p.scope, since)
	if err != nil {
		return events, errors.Wrapf(err, "changes since %s", since.Format(time.RFC3339))
	}

	p.mu.Lock()
	for i := range changed {
		pg := changed[i]
		known, ok := p.snap.Pages[pg.ID]
		switch {
		case !ok:
			emit(Event{Type: PageCreated, ID: pg.ID, Title: pg.Title, Version: pg.Version, Page: &pg})
		case pg.Version > known.Version:
			emit(Event{Type: PageChanged, ID: pg.ID, Title: pg.Title, Version: pg.Version,
				PreviousVersion: known.Version, PreviousTitle: known.Title, Page: &pg})
		default:
			continue
		}
		p.snap.Pages[pg.ID] = Entry{Version: pg.Version, Title: pg.Title}
	}
	p.mu.Unlock()

	if !types.CanEnumerate(p.scope) {
		return events, nil
	}

	all, err := p.client.ListPages(ctx, p.scope)
	if err != nil {
		return events, errors.Wrap(err, "page enumeration")
	}
	present := make(map[string]struct{}, len(all))
	for _, pg := range all {
		present[pg.ID] = struct{}{}
	}
	p.mu.Lock()
	for _, id := range missing(p.snap.Pages, present) {
		e := p.snap.Pages[id]
		emit(Event{Type: PageDeleted, ID: id, Title: e.Title, Version: e.Version})
		delete(p.snap.Pages, id)
	}
	p.mu.Unlock()

	folders, err := p.client.ListFolders(ctx, p.scope)
	if err != nil {
		return events, errors.Wrap(err, "folder enumeration")
	}
	present = make(map[string]struct{}, len(folders))
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range folders {
		present[f.ID] = struct{}{}
		known, ok := p.snap.Folders[f.ID]
		switch {
		case !ok:
			emit(Event{Type: FolderCreated, ID: f.ID, Title: f.Title, Version: f.Version})
		case f.Title != known.Title || f.Version > known.Version:
			emit(Event{Type: FolderChanged, ID: f.ID, Title: f.Title, Version: f.Version,
				PreviousVersion: known.Version, PreviousTitle: known.Title})
		default:
			continue
		}
		p.snap.Folders[f.ID] = Entry{Version: f.Version, Title: f.Title}
	}
	for _, id := range missing(p.snap.Folders, present) {
		e := p.snap.Folders[id]
		emit(Event{Type: FolderDeleted, ID: id, Title: e.Title, Version: e.Version})
		delete(p.snap.Folders, id)
	}
	return events, nil
}

// missing returns the known ids absent from present, sorted.
func missing(known map[string]Entry, present map[string]struct{}) []string {
	var out []string
	for id := range known {
		if _, ok := present[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// dispatch delivers events in order, each to every handler in registration
// order, awaiting each call.
func (p *Poller) dispatch(ctx context.Context, log *zap.SugaredLogger, events []Event) {
	if len(events) == 0 {
		return
	}
	p.mu.Lock()
	handlers := append([]Handler(nil), p.handlers...)
	p.mu.Unlock()

	for _, e := range events {
		for i, h := range handlers {
			if err := h(ctx, e); err != nil {
				logger.PollWarnw(log, "Event handler failed",
					logger.FieldEvent, e.String(), "handler", i, logger.FieldError, err)
			}
		}
	}
}

// Start runs cycles on a ticker until Stop. Calling Start twice is a no-op.
func (p *Poller) Start() {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	go p.run(ctx)
	p.logger.Infow("Poller started", logger.FieldSymbol, sym.PollOpen,
		logger.FieldScope, p.scope.String(), logger.FieldInterval, p.interval)
}

// Stop cancels the ticker and waits for an in-flight cycle to finish. The
// cycle itself is not aborted.
func (p *Poller) Stop() {
	p.runMu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	p.logger.Infow("Poller stopped", logger.FieldSymbol, sym.PollStop, logger.FieldScope, p.scope.String())
}

// SetInterval changes the ticker period of a running or future loop.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	p.runMu.Lock()
	p.interval = d
	p.runMu.Unlock()
	select {
	case p.resetCh <- d:
	default:
	}
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	p.runMu.Lock()
	interval := p.interval
	p.runMu.Unlock()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Cycles outlive the ticker context: Stop waits for them instead.
	cycleCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-p.resetCh:
			ticker.Reset(d)
			p.logger.Infow("Poll interval changed", logger.FieldInterval, d)
		case <-ticker.C:
			if _, err := p.Poll(cycleCtx); err != nil {
				logger.PollWarnw(p.logger, "Poll tick error", logger.FieldError, err)
			}
		}
	}
}
