// Package browse ties the collection engine together for one viewer looking at one collection.
//
// A Session owns the access gate, the pagination driver, the pending and applied filter specs and the
// enrichment cache of a (viewer, owner, category) triple. Every query-issuing operation decides the gate
// again, and nothing reaches the store unless the viewer is allowed.
package browse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/watchlogapp/watchlog-server/internal/access"
	"github.com/watchlogapp/watchlog-server/internal/bounds"
	"github.com/watchlogapp/watchlog-server/internal/domain"
	"github.com/watchlogapp/watchlog-server/internal/enrich"
	domainerrors "github.com/watchlogapp/watchlog-server/internal/errors"
	"github.com/watchlogapp/watchlog-server/internal/filter"
	"github.com/watchlogapp/watchlog-server/internal/metadata"
	"github.com/watchlogapp/watchlog-server/internal/pagination"
	"github.com/watchlogapp/watchlog-server/internal/query"
	"github.com/watchlogapp/watchlog-server/internal/store"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("browse session closed")

// Store is the persistence a Session reads.
type Store interface {
	pagination.Fetcher
	access.Directory
	enrich.YearWriter
	EntryExtremes(ctx context.Context, scope query.Scope) (store.Extremes, error)
}

// MetadataApplier writes provider metadata onto a catalog item.
type MetadataApplier interface {
	ApplyMetadata(ctx context.Context, itemID string, detail *metadata.Detail) (*domain.CatalogItem, error)
}

// Deps are shared by every session.
type Deps struct {
	Store    Store
	Compiler *query.Compiler
	// Provider may be nil, which disables enrichment.
	Provider enrich.Provider
	Metadata MetadataApplier
	Logger   *slog.Logger
}

// View is what a client renders after any session operation.
type View struct {
	Access  access.State        `json:"access"`
	Message string              `json:"message,omitempty"`
	Spec    filter.Spec         `json:"spec"`
	Page    pagination.Snapshot `json:"page"`
}

// Session is one viewer browsing one collection.
type Session struct {
	viewerID string
	scope    query.Scope
	store    Store
	meta     MetadataApplier
	logger   *slog.Logger

	gate    *access.Gate
	checker *access.Checker
	driver  *pagination.Driver
	cache   *enrich.Cache

	mu      sync.Mutex
	pending filter.Spec
	applied filter.Spec
	domains bounds.Snapshot
	opened  bool
	// stale is set when the owner's collection changed since domains were loaded.
	stale  bool
	closed bool
}

// NewSession creates a session with an undecided gate. viewerID is empty for anonymous callers.
func NewSession(deps Deps, viewerID string, scope query.Scope) *Session {
	logger := deps.Logger.With("viewer_id", viewerID, "scope", scope.String())
	initial := filter.Default(filter.DefaultDomains())

	s := &Session{
		viewerID: viewerID,
		scope:    scope,
		store:    deps.Store,
		meta:     deps.Metadata,
		logger:   logger,
		gate:     access.NewGate(),
		checker:  access.NewChecker(deps.Store, logger),
		driver:   pagination.NewDriver(deps.Store, deps.Compiler, scope, logger),
		pending:  initial,
		applied:  initial,
	}
	if deps.Provider != nil {
		s.cache = enrich.New(deps.Provider, deps.Store, logger)
		go s.drainBackfillFailures()
	}
	return s
}

// Scope returns the collection being browsed.
func (s *Session) Scope() query.Scope { return s.scope }

// ViewerID returns the viewer, empty when anonymous.
func (s *Session) ViewerID() string { return s.viewerID }

// Access returns the gate state without deciding it.
func (s *Session) Access() access.State { return s.gate.State() }

// CheckAccess runs a fresh gate decision. An anonymous viewer gets ErrUnauthorized along with the state.
func (s *Session) CheckAccess(ctx context.Context) (access.State, error) {
	state, err := s.checker.Check(ctx, s.gate, s.viewerID, s.scope.OwnerID)
	if err != nil {
		return state, err
	}
	if state == access.StateUnauthenticated {
		return state, domainerrors.ErrUnauthorized
	}
	return state, nil
}

// Open decides access, loads the live bounds and applies the default filters.
func (s *Session) Open(ctx context.Context) (View, error) {
	state, err := s.ensureAllowed(ctx)
	if errors.Is(err, ErrClosed) {
		return View{}, err
	}
	if err != nil || state != access.StateAllowed {
		return s.blocked(state), err
	}

	s.takeStale()
	snap, err := s.loadDomains(ctx)
	if err != nil {
		s.MarkBoundsStale()
		return s.view(), err
	}
	spec := filter.Default(snap.Domains(filter.DefaultDomains()))

	s.mu.Lock()
	s.domains = snap
	s.pending = spec
	s.applied = spec
	s.opened = true
	s.mu.Unlock()

	return s.apply(ctx, spec)
}

// ApplyFilters makes spec both the pending and the applied spec and loads its first page.
func (s *Session) ApplyFilters(ctx context.Context, spec filter.Spec) (View, error) {
	state, err := s.ensureAllowed(ctx)
	if err != nil || state != access.StateAllowed {
		return s.blocked(state), err
	}

	spec = spec.Normalized()
	if s.takeStale() {
		snap, err := s.loadDomains(ctx)
		if err != nil {
			s.MarkBoundsStale()
			return s.view(), err
		}
		spec = bounds.Apply(spec, snap)
		s.mu.Lock()
		s.domains = snap
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.pending = spec
	s.applied = spec
	s.opened = true
	s.mu.Unlock()

	return s.apply(ctx, spec)
}

// ApplyPending applies the pending spec.
func (s *Session) ApplyPending(ctx context.Context) (View, error) {
	return s.ApplyFilters(ctx, s.Pending())
}

// LoadNextPage loads the page after the last merged one.
func (s *Session) LoadNextPage(ctx context.Context) (View, error) {
	state, err := s.ensureAllowed(ctx)
	if err != nil || state != access.StateAllowed {
		return s.blocked(state), err
	}
	if view, applied, err := s.reconcileIfNeeded(ctx); err != nil || applied {
		return view, err
	}
	snap, err := s.driver.LoadNextPage(ctx)
	return s.viewOf(snap), err
}

// Retry repeats the last failed page load.
func (s *Session) Retry(ctx context.Context) (View, error) {
	state, err := s.ensureAllowed(ctx)
	if err != nil || state != access.StateAllowed {
		return s.blocked(state), err
	}
	if view, applied, err := s.reconcileIfNeeded(ctx); err != nil || applied {
		return view, err
	}
	snap, err := s.driver.Retry(ctx)
	return s.viewOf(snap), err
}

// Pending returns the spec being edited.
func (s *Session) Pending() filter.Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// SetPending replaces the spec being edited without querying.
func (s *Session) SetPending(spec filter.Spec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = spec
}

// Domains returns the last loaded live bounds.
func (s *Session) Domains() bounds.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.domains
}

// RefreshBounds reloads the collection extremes and reconciles both the pending and the applied spec.
// The applied spec is re-run only when reconciliation changed it.
func (s *Session) RefreshBounds(ctx context.Context) (View, error) {
	state, err := s.ensureAllowed(ctx)
	if err != nil || state != access.StateAllowed {
		return s.blocked(state), err
	}
	view, _, err := s.refreshBounds(ctx)
	return view, err
}

// MarkBoundsStale makes the next query-issuing operation reconcile against fresh bounds first.
func (s *Session) MarkBoundsStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale = true
}

// EnrichVisible looks up provider metadata for every loaded entry. Entries that fail stay unenriched.
func (s *Session) EnrichVisible(ctx context.Context) (map[string]*metadata.Detail, error) {
	state, err := s.ensureAllowed(ctx)
	if err != nil {
		return nil, err
	}
	if state != access.StateAllowed || s.cache == nil {
		return map[string]*metadata.Detail{}, nil
	}
	return s.cache.EnrichAll(ctx, s.driver.Snapshot().Entries), nil
}

// RefreshMetadata searches the provider by the entry's title and saves a unique match onto the item.
// Several matches are returned as a Conflict whose details list the candidates.
func (s *Session) RefreshMetadata(ctx context.Context, entryID string) (*domain.CatalogItem, error) {
	entry, err := s.ownedEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	detail, err := s.cache.Refresh(ctx, entry)
	if err != nil {
		return nil, metadataError(err)
	}
	return s.meta.ApplyMetadata(ctx, entry.ItemID, detail)
}

// ChooseMetadata binds the entry's item to externalID and saves the provider detail onto it.
func (s *Session) ChooseMetadata(ctx context.Context, entryID, externalID string) (*domain.CatalogItem, error) {
	entry, err := s.ownedEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	detail, err := s.cache.Choose(ctx, entry, externalID)
	if err != nil {
		return nil, metadataError(err)
	}
	return s.meta.ApplyMetadata(ctx, entry.ItemID, detail)
}

// Close drops loaded pages and stops the enrichment cache. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.driver.Reset()
	if s.cache != nil {
		s.cache.Close()
	}
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// ensureAllowed decides the gate again and returns the state. A viewer who lost access also loses the
// loaded pages; the next allowed query starts over from page 0.
func (s *Session) ensureAllowed(ctx context.Context) (access.State, error) {
	if err := s.checkOpen(); err != nil {
		return access.StateChecking, err
	}
	state, err := s.CheckAccess(ctx)
	if state.Decided() && state != access.StateAllowed {
		s.revoke()
	}
	return state, err
}

func (s *Session) revoke() {
	s.mu.Lock()
	wasOpen := s.opened
	s.opened = false
	s.mu.Unlock()

	if wasOpen {
		s.driver.Reset()
		s.logger.Info("browse access lost, dropped loaded pages", "state", s.gate.State())
	}
}

func (s *Session) takeStale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	stale := s.stale
	s.stale = false
	return stale
}

// reconcileIfNeeded refreshes bounds before paging when the collection changed or nothing was applied yet.
// applied reports whether page 0 was reloaded.
func (s *Session) reconcileIfNeeded(ctx context.Context) (View, bool, error) {
	s.mu.Lock()
	needed := s.stale || !s.opened
	s.mu.Unlock()
	if !needed {
		return View{}, false, nil
	}
	return s.refreshBounds(ctx)
}

func (s *Session) refreshBounds(ctx context.Context) (View, bool, error) {
	s.takeStale()
	snap, err := s.loadDomains(ctx)
	if err != nil {
		s.MarkBoundsStale()
		return s.view(), false, err
	}

	s.mu.Lock()
	before := s.applied
	s.domains = snap
	s.pending = bounds.Apply(s.pending, snap)
	s.applied = bounds.Apply(s.applied, snap)
	after := s.applied
	opened := s.opened
	s.mu.Unlock()

	changed, err := s.specChanged(before, after)
	if err != nil {
		return s.view(), false, err
	}
	if changed || !opened {
		s.mu.Lock()
		s.opened = true
		s.mu.Unlock()
		view, err := s.apply(ctx, after)
		return view, true, err
	}
	return s.view(), false, nil
}

func (s *Session) ownedEntry(ctx context.Context, entryID string) (*domain.CollectionEntry, error) {
	state, err := s.ensureAllowed(ctx)
	if err != nil {
		return nil, err
	}
	if state != access.StateAllowed {
		return nil, domainerrors.Forbidden(state.Message())
	}
	if s.viewerID != s.scope.OwnerID {
		return nil, domainerrors.Forbidden("only the owner can change metadata")
	}
	if s.cache == nil {
		return nil, domainerrors.Unavailable("metadata provider is not configured")
	}
	for _, e := range s.driver.Snapshot().Entries {
		if e.ID == entryID {
			return e, nil
		}
	}
	return nil, domainerrors.NotFound("entry is not loaded")
}

func (s *Session) loadDomains(ctx context.Context) (bounds.Snapshot, error) {
	ext, err := s.store.EntryExtremes(ctx, s.scope)
	if err != nil {
		return bounds.Snapshot{}, fmt.Errorf("load extremes: %w", err)
	}
	return snapshotOf(ext), nil
}

func (s *Session) specChanged(before, after filter.Spec) (bool, error) {
	a, err := filter.Fingerprint(s.scope.String(), before)
	if err != nil {
		return false, err
	}
	b, err := filter.Fingerprint(s.scope.String(), after)
	if err != nil {
		return false, err
	}
	return a != b, nil
}

func (s *Session) apply(ctx context.Context, spec filter.Spec) (View, error) {
	snap, err := s.driver.Apply(ctx, spec)
	if errors.Is(err, pagination.ErrSuperseded) {
		// A newer Apply owns the view; report its state.
		return s.view(), nil
	}
	return s.viewOf(snap), err
}

func (s *Session) view() View {
	return s.viewOf(s.driver.Snapshot())
}

func (s *Session) viewOf(snap pagination.Snapshot) View {
	return View{
		Access:  access.StateAllowed,
		Message: snap.Message,
		Spec:    s.driver.Spec(),
		Page:    snap,
	}
}

// blocked is the empty view for a gate that does not allow queries.
func (s *Session) blocked(state access.State) View {
	return View{
		Access:  state,
		Message: state.Message(),
		Spec:    s.Pending(),
		Page:    pagination.Snapshot{Phase: pagination.PhaseIdle, Page: -1},
	}
}

func (s *Session) drainBackfillFailures() {
	for f := range s.cache.Failures() {
		s.logger.Debug("year backfill dropped", "item_id", f.ItemID, "year", f.Year, "error", f.Err)
	}
}

func snapshotOf(ext store.Extremes) bounds.Snapshot {
	var snap bounds.Snapshot
	if ext.YearMin != nil && ext.YearMax != nil {
		snap.Year = bounds.Of(*ext.YearMin, *ext.YearMax)
	} else {
		snap.Year.Empty = true
	}
	if ext.ExternalRatingMin != nil && ext.ExternalRatingMax != nil {
		snap.ExternalRating = bounds.Of(*ext.ExternalRatingMin, *ext.ExternalRatingMax)
	} else {
		snap.ExternalRating.Empty = true
	}
	return snap
}

// metadataError maps enrichment and provider failures onto domain errors.
func metadataError(err error) error {
	var ambiguous *enrich.AmbiguousError
	switch {
	case errors.As(err, &ambiguous):
		return domainerrors.Conflict("several titles match; choose one").WithDetails(ambiguous.Candidates)
	case errors.Is(err, enrich.ErrNoMatch):
		return domainerrors.NotFound("no matching title found")
	case errors.Is(err, metadata.ErrNotFound):
		return domainerrors.NotFound("title not found at the provider")
	case errors.Is(err, metadata.ErrBadRequest):
		return domainerrors.Validation("the provider rejected the request")
	case errors.Is(err, metadata.ErrUnavailable), errors.Is(err, metadata.ErrRateLimited), errors.Is(err, metadata.ErrServer):
		return domainerrors.Wrap(err, domainerrors.CodeUnavailable, "metadata provider unavailable")
	default:
		return err
	}
}
