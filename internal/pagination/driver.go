// Package pagination drives incremental loading of one collection view.
//
// A Driver owns the page index, the merged entries and the in-flight page set of a browse session.
// Every Apply starts a new generation: results that arrive for an older generation are discarded
// instead of merged, so a slow response to a superseded filter can never overwrite newer results.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	"github.com/watchlogapp/watchlog-server/internal/filter"
	"github.com/watchlogapp/watchlog-server/internal/metrics"
	"github.com/watchlogapp/watchlog-server/internal/query"
)

// ErrSuperseded is returned to the caller whose page result arrived after a newer Apply.
var ErrSuperseded = errors.New("page result superseded by a newer filter")

// Phase is the loading state of a driver.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseLoading     Phase = "loading"
	PhaseReady       Phase = "ready"
	PhaseLoadingMore Phase = "loading_more"
	PhaseFailed      Phase = "failed"
)

// Fetcher executes compiled plans.
type Fetcher interface {
	FetchPage(ctx context.Context, plan query.Plan) ([]*domain.CollectionEntry, error)
	CountEntries(ctx context.Context, plan query.CountPlan) (int, error)
}

// PageError is a failed page fetch. A failed first page clears the view; later pages keep what is loaded.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("load page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// Destructive reports whether the failure cleared previously visible entries.
func (e *PageError) Destructive() bool {
	return e.Page == 0
}

// Snapshot is a copy of the driver state.
type Snapshot struct {
	Phase       Phase                     `json:"phase"`
	Fingerprint string                    `json:"fingerprint"`
	Page        int                       `json:"page"`
	Entries     []*domain.CollectionEntry `json:"entries"`
	HasMore     bool                      `json:"has_more"`
	Total       int                       `json:"total"`
	TotalKnown  bool                      `json:"total_known"`
	// Message explains a deliberately empty result.
	Message string     `json:"message,omitempty"`
	Err     *PageError `json:"-"`
}

type inFlightKey struct {
	fingerprint string
	page        int
}

// Driver loads pages of one scope. It is safe for concurrent use.
type Driver struct {
	fetcher  Fetcher
	compiler *query.Compiler
	scope    query.Scope
	logger   *slog.Logger

	mu          sync.Mutex
	generation  uint64
	spec        filter.Spec
	fingerprint string
	phase       Phase
	page        int
	entries     []*domain.CollectionEntry
	seen        map[string]struct{}
	hasMore     bool
	total       int
	totalKnown  bool
	message     string
	lastErr     *PageError
	inFlight    map[inFlightKey]struct{}
}

// NewDriver creates an idle driver for scope.
func NewDriver(fetcher Fetcher, compiler *query.Compiler, scope query.Scope, logger *slog.Logger) *Driver {
	d := &Driver{
		fetcher:  fetcher,
		compiler: compiler,
		scope:    scope,
		logger:   logger.With("scope", scope.String()),
	}
	d.resetLocked()
	d.phase = PhaseIdle
	return d
}

// Spec returns the spec in effect.
func (d *Driver) Spec() filter.Spec {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.spec
}

// Snapshot returns a copy of the current state.
func (d *Driver) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

// Apply makes spec the spec in effect, drops loaded entries and loads page 0 together with the total count.
// It returns ErrSuperseded if another Apply started before this one finished.
func (d *Driver) Apply(ctx context.Context, spec filter.Spec) (Snapshot, error) {
	spec = spec.Normalized()
	fp, err := filter.Fingerprint(d.scope.String(), spec)
	if err != nil {
		return d.Snapshot(), err
	}
	compiled, err := d.compiler.Compile(d.scope, spec, 0)
	if err != nil {
		return d.Snapshot(), err
	}

	d.mu.Lock()
	d.generation++
	gen := d.generation
	d.spec = spec
	d.fingerprint = fp
	d.resetLocked()

	if compiled.Data.Empty {
		d.phase = PhaseReady
		d.message = compiled.Data.Reason
		d.totalKnown = true
		snap := d.snapshotLocked()
		d.mu.Unlock()
		d.logger.Debug("filter short-circuited", "fingerprint", fp, "reason", compiled.Data.Reason)
		return snap, nil
	}

	key := inFlightKey{fingerprint: fp, page: 0}
	d.inFlight[key] = struct{}{}
	d.phase = PhaseLoading
	d.mu.Unlock()

	rows, total, totalKnown, fetchErr := d.fetchFirst(ctx, compiled)

	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.generation {
		metrics.PagesDiscardedTotal.Inc()
		d.logger.Debug("discarding superseded page", "fingerprint", fp, "page", 0)
		return d.snapshotLocked(), ErrSuperseded
	}
	delete(d.inFlight, key)

	if fetchErr != nil {
		d.resetLocked()
		d.phase = PhaseFailed
		d.lastErr = &PageError{Page: 0, Err: fetchErr}
		metrics.RecordPage(0, "error")
		d.logger.Warn("first page failed", "fingerprint", fp, "error", fetchErr)
		return d.snapshotLocked(), d.lastErr
	}

	d.mergeLocked(rows)
	d.page = 0
	d.hasMore = !compiled.Data.FullScan && len(rows) == compiled.Data.Window.Size
	d.total, d.totalKnown = total, totalKnown
	d.phase = PhaseReady
	metrics.RecordPage(0, "ok")
	return d.snapshotLocked(), nil
}

// LoadNextPage loads and merges the page after the last merged one. It does nothing unless the driver is
// ready, more rows exist and that page is not already being loaded, so duplicate triggers are harmless.
func (d *Driver) LoadNextPage(ctx context.Context) (Snapshot, error) {
	d.mu.Lock()
	if d.phase != PhaseReady || !d.hasMore {
		snap := d.snapshotLocked()
		d.mu.Unlock()
		return snap, nil
	}

	next := d.page + 1
	key := inFlightKey{fingerprint: d.fingerprint, page: next}
	if _, busy := d.inFlight[key]; busy {
		snap := d.snapshotLocked()
		d.mu.Unlock()
		return snap, nil
	}

	compiled, err := d.compiler.Compile(d.scope, d.spec, next)
	if err != nil {
		snap := d.snapshotLocked()
		d.mu.Unlock()
		return snap, err
	}
	if compiled.Data.Empty {
		d.hasMore = false
		snap := d.snapshotLocked()
		d.mu.Unlock()
		return snap, nil
	}

	d.inFlight[key] = struct{}{}
	d.phase = PhaseLoadingMore
	gen := d.generation
	d.mu.Unlock()

	rows, fetchErr := d.fetch(ctx, compiled.Data)

	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.generation {
		metrics.PagesDiscardedTotal.Inc()
		d.logger.Debug("discarding superseded page", "fingerprint", key.fingerprint, "page", next)
		return d.snapshotLocked(), ErrSuperseded
	}
	delete(d.inFlight, key)
	d.phase = PhaseReady

	if fetchErr != nil {
		d.lastErr = &PageError{Page: next, Err: fetchErr}
		metrics.RecordPage(next, "error")
		d.logger.Warn("next page failed", "page", next, "error", fetchErr)
		return d.snapshotLocked(), d.lastErr
	}

	d.lastErr = nil
	d.mergeLocked(rows)
	d.page = next
	d.hasMore = len(rows) == compiled.Data.Window.Size
	metrics.RecordPage(next, "ok")
	return d.snapshotLocked(), nil
}

// Retry repeats the last failed load: the whole view after a first-page failure, the next page otherwise.
func (d *Driver) Retry(ctx context.Context) (Snapshot, error) {
	d.mu.Lock()
	lastErr, spec := d.lastErr, d.spec
	d.mu.Unlock()

	switch {
	case lastErr == nil:
		return d.Snapshot(), nil
	case lastErr.Destructive():
		return d.Apply(ctx, spec)
	default:
		return d.LoadNextPage(ctx)
	}
}

// Reset returns the driver to idle and invalidates every in-flight load.
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generation++
	d.fingerprint = ""
	d.resetLocked()
	d.phase = PhaseIdle
}

func (d *Driver) fetchFirst(ctx context.Context, compiled query.Compiled) (rows []*domain.CollectionEntry, total int, totalKnown bool, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = d.fetch(gctx, compiled.Data)
		return err
	})
	if compiled.Count != nil {
		g.Go(func() error {
			n, err := d.fetcher.CountEntries(gctx, *compiled.Count)
			if err != nil {
				// The page is still usable without a total.
				d.logger.Warn("count failed", "error", err)
				return nil
			}
			total, totalKnown = n, true
			return nil
		})
	}
	err = g.Wait()
	return rows, total, totalKnown, err
}

func (d *Driver) fetch(ctx context.Context, plan query.Plan) ([]*domain.CollectionEntry, error) {
	start := time.Now()
	rows, err := d.fetcher.FetchPage(ctx, plan)
	metrics.ObservePageFetch(plan.FullScan, time.Since(start))
	return rows, err
}

// mergeLocked appends rows whose ids are not loaded yet.
func (d *Driver) mergeLocked(rows []*domain.CollectionEntry) {
	for _, e := range rows {
		if _, dup := d.seen[e.ID]; dup {
			continue
		}
		d.seen[e.ID] = struct{}{}
		d.entries = append(d.entries, e)
	}
}

func (d *Driver) resetLocked() {
	d.page = -1
	d.entries = nil
	d.seen = make(map[string]struct{})
	d.hasMore = false
	d.total = 0
	d.totalKnown = false
	d.message = ""
	d.lastErr = nil
	d.inFlight = make(map[inFlightKey]struct{})
}

func (d *Driver) snapshotLocked() Snapshot {
	return Snapshot{
		Phase:       d.phase,
		Fingerprint: d.fingerprint,
		Page:        d.page,
		Entries:     slices.Clone(d.entries),
		HasMore:     d.hasMore,
		Total:       d.total,
		TotalKnown:  d.totalKnown,
		Message:     d.message,
		Err:         d.lastErr,
	}
}
