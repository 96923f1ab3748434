// Package enrich lazily annotates collection entries with provider metadata.
//
// A Cache belongs to one browse session. It keeps at most one lookup in flight per entry, memoizes
// results per catalog item, and never retries a failed lookup on its own: only Refresh or Choose
// touch the provider again for an entry that failed.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	"github.com/watchlogapp/watchlog-server/internal/metadata"
	"github.com/watchlogapp/watchlog-server/internal/metrics"
)

const (
	// maxConcurrentLookups bounds provider calls issued by one EnrichAll.
	maxConcurrentLookups = 4

	backfillTimeout = 10 * time.Second

	// lookupTimeout bounds one shared provider call.
	lookupTimeout = 30 * time.Second

	failureBuffer = 16
)

var (
	// ErrNoExternalID is returned for entries whose item has no provider identifier.
	ErrNoExternalID = errors.New("item has no external id")
	// ErrPreviouslyFailed is returned for entries whose last lookup failed.
	ErrPreviouslyFailed = errors.New("lookup failed earlier; refresh to try again")
	// ErrNoMatch is returned by Refresh when the provider finds nothing.
	ErrNoMatch = errors.New("no provider match")
	// ErrAmbiguous is returned by Refresh when several candidates match.
	ErrAmbiguous = errors.New("several provider matches")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("enrichment cache closed")
)

// Provider is the subset of the metadata client the cache uses.
type Provider interface {
	Search(ctx context.Context, category domain.Category, query string) ([]metadata.Candidate, error)
	Detail(ctx context.Context, category domain.Category, externalID string) (*metadata.Detail, error)
}

// YearWriter persists a derived release year for items that lack one.
type YearWriter interface {
	SetCatalogYearIfMissing(ctx context.Context, itemID string, year int) (bool, error)
}

// AmbiguousError carries the candidates of an ambiguous Refresh so the caller can offer a choice.
type AmbiguousError struct {
	Candidates []metadata.Candidate
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%d provider matches", len(e.Candidates))
}

func (e *AmbiguousError) Is(target error) bool {
	return target == ErrAmbiguous
}

// BackfillFailure reports a year write-back that did not land.
type BackfillFailure struct {
	ItemID string
	Year   int
	Err    error
}

// Cache memoizes provider details for the entries of one browse session.
type Cache struct {
	provider Provider
	years    YearWriter
	logger   *slog.Logger

	group singleflight.Group

	mu     sync.Mutex
	memo   map[string]*metadata.Detail // by item id
	failed map[string]error            // by entry id
	closed bool

	backfills sync.WaitGroup
	failures  chan BackfillFailure
}

// New creates an empty cache.
func New(provider Provider, years YearWriter, logger *slog.Logger) *Cache {
	return &Cache{
		provider: provider,
		years:    years,
		logger:   logger,
		memo:     make(map[string]*metadata.Detail),
		failed:   make(map[string]error),
		failures: make(chan BackfillFailure, failureBuffer),
	}
}

// Failures delivers failed year write-backs. Failures are dropped when nobody drains the channel.
// The channel is closed by Close.
func (c *Cache) Failures() <-chan BackfillFailure {
	return c.failures
}

// Cached returns the memoized detail of an item.
func (c *Cache) Cached(itemID string) (*metadata.Detail, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.memo[itemID]
	return d, ok
}

// Lookup returns the provider detail for entry, fetching it at most once.
func (c *Cache) Lookup(ctx context.Context, entry *domain.CollectionEntry) (*metadata.Detail, error) {
	if entry.Item == nil {
		return nil, fmt.Errorf("entry %s: item not loaded", entry.ID)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if d, ok := c.memo[entry.ItemID]; ok {
		c.mu.Unlock()
		metrics.EnrichmentLookupsTotal.WithLabelValues("hit").Inc()
		return d, nil
	}
	if err, ok := c.failed[entry.ID]; ok {
		c.mu.Unlock()
		metrics.EnrichmentLookupsTotal.WithLabelValues("skipped").Inc()
		return nil, fmt.Errorf("%w: %v", ErrPreviouslyFailed, err)
	}
	c.mu.Unlock()

	if entry.Item.ExternalID == "" {
		c.markFailed(entry.ID, ErrNoExternalID)
		return nil, ErrNoExternalID
	}

	// The flight is detached from the caller that started it; a caller that gives up only stops waiting.
	ch := c.group.DoChan(entry.ID, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()

		detail, err := c.provider.Detail(lctx, entry.Item.Category, entry.Item.ExternalID)
		if err != nil {
			if !interrupted(err) {
				c.markFailed(entry.ID, err)
			}
			return nil, err
		}
		c.remember(entry, detail)
		return detail, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		metrics.EnrichmentLookupsTotal.WithLabelValues("canceled").Inc()
		return nil, ctx.Err()
	case res = <-ch:
	}

	if res.Err != nil {
		metrics.EnrichmentLookupsTotal.WithLabelValues("failed").Inc()
		c.logger.Debug("enrichment lookup failed", "entry_id", entry.ID, "error", res.Err)
		return nil, res.Err
	}

	if res.Shared {
		metrics.EnrichmentLookupsTotal.WithLabelValues("shared").Inc()
	} else {
		metrics.EnrichmentLookupsTotal.WithLabelValues("fetched").Inc()
	}
	return res.Val.(*metadata.Detail), nil
}

// interrupted reports whether err is a cancellation or timeout rather than a provider answer.
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// EnrichAll looks up every entry not yet enriched and returns the details by item id.
// Failures are silent: the entry simply stays unenriched.
func (c *Cache) EnrichAll(ctx context.Context, entries []*domain.CollectionEntry) map[string]*metadata.Detail {
	var (
		mu  sync.Mutex
		out = make(map[string]*metadata.Detail, len(entries))
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for _, entry := range entries {
		g.Go(func() error {
			d, err := c.Lookup(ctx, entry)
			if err != nil {
				return nil
			}
			mu.Lock()
			out[entry.ItemID] = d
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Refresh re-runs the provider search for entry's title. A single candidate is fetched and
// memoized; several candidates are returned in an *AmbiguousError instead of guessing.
func (c *Cache) Refresh(ctx context.Context, entry *domain.CollectionEntry) (*metadata.Detail, error) {
	if entry.Item == nil {
		return nil, fmt.Errorf("entry %s: item not loaded", entry.ID)
	}
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	candidates, err := c.provider.Search(ctx, entry.Item.Category, entry.Item.Title)
	if err != nil {
		return nil, fmt.Errorf("search provider: %w", err)
	}

	switch len(candidates) {
	case 0:
		return nil, ErrNoMatch
	case 1:
		return c.Choose(ctx, entry, candidates[0].ExternalID)
	default:
		return nil, &AmbiguousError{Candidates: candidates}
	}
}

// Choose fetches the detail of the candidate the user picked and memoizes it for entry's item.
func (c *Cache) Choose(ctx context.Context, entry *domain.CollectionEntry, externalID string) (*metadata.Detail, error) {
	if entry.Item == nil {
		return nil, fmt.Errorf("entry %s: item not loaded", entry.ID)
	}
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	detail, err := c.provider.Detail(ctx, entry.Item.Category, externalID)
	if err != nil {
		return nil, fmt.Errorf("fetch detail: %w", err)
	}

	c.mu.Lock()
	delete(c.failed, entry.ID)
	c.mu.Unlock()

	c.remember(entry, detail)
	return detail, nil
}

// Reset forgets every memoized detail and failure.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.memo)
	clear(c.failed)
}

// Close waits for pending write-backs and closes the failure channel.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.backfills.Wait()
	close(c.failures)
}

func (c *Cache) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

func (c *Cache) markFailed(entryID string, err error) {
	c.mu.Lock()
	c.failed[entryID] = err
	c.mu.Unlock()
}

// remember memoizes detail and schedules a year write-back when the item has none.
func (c *Cache) remember(entry *domain.CollectionEntry, detail *metadata.Detail) {
	c.mu.Lock()
	c.memo[entry.ItemID] = detail
	backfill := !c.closed && !entry.Item.HasYear() && detail.Year != nil
	if backfill {
		// Added under mu: Close only waits after it has set closed.
		c.backfills.Add(1)
	}
	c.mu.Unlock()

	if backfill {
		go c.backfillYear(entry.ItemID, *detail.Year)
	}
}

// backfillYear writes the derived year without blocking the read path.
func (c *Cache) backfillYear(itemID string, year int) {
	defer c.backfills.Done()

	ctx, cancel := context.WithTimeout(context.Background(), backfillTimeout)
	defer cancel()

	written, err := c.years.SetCatalogYearIfMissing(ctx, itemID, year)
	if err != nil {
		metrics.BackfillFailuresTotal.Inc()
		c.logger.Warn("year backfill failed", "item_id", itemID, "year", year, "error", err)
		select {
		case c.failures <- BackfillFailure{ItemID: itemID, Year: year, Err: err}:
		default:
		}
		return
	}
	if written {
		c.logger.Debug("year backfilled", "item_id", itemID, "year", year)
	}
}
