package browse_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchlogapp/watchlog-server/internal/access"
	"github.com/watchlogapp/watchlog-server/internal/browse"
	"github.com/watchlogapp/watchlog-server/internal/domain"
	domainerrors "github.com/watchlogapp/watchlog-server/internal/errors"
	"github.com/watchlogapp/watchlog-server/internal/filter"
	"github.com/watchlogapp/watchlog-server/internal/metadata"
	"github.com/watchlogapp/watchlog-server/internal/query"
	"github.com/watchlogapp/watchlog-server/internal/service"
	"github.com/watchlogapp/watchlog-server/internal/store/sqlite"
	"github.com/watchlogapp/watchlog-server/internal/validation"
)

// countingStore records how many page reads reach the database.
type countingStore struct {
	*sqlite.Store
	fetches atomic.Int32
}

func (c *countingStore) FetchPage(ctx context.Context, plan query.Plan) ([]*domain.CollectionEntry, error) {
	c.fetches.Add(1)
	return c.Store.FetchPage(ctx, plan)
}

type fakeProvider struct {
	candidates []metadata.Candidate
	details    map[string]*metadata.Detail
}

func (p *fakeProvider) Search(context.Context, domain.Category, string) ([]metadata.Candidate, error) {
	return p.candidates, nil
}

func (p *fakeProvider) Detail(_ context.Context, _ domain.Category, externalID string) (*metadata.Detail, error) {
	d, ok := p.details[externalID]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	return d, nil
}

type fixture struct {
	store      *countingStore
	provider   *fakeProvider
	deps       browse.Deps
	collection *service.CollectionService
	profiles   *service.ProfileService
	invites    *service.InviteService
	contacts   *service.ContactService
}

func setup(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cs := &countingStore{Store: db}
	v := validation.New()
	collection := service.NewCollectionService(db, v, logger)
	provider := &fakeProvider{details: map[string]*metadata.Detail{}}

	return &fixture{
		store:    cs,
		provider: provider,
		deps: browse.Deps{
			Store:    cs,
			Compiler: query.NewCompiler(query.WithPageSize(2)),
			Provider: provider,
			Metadata: collection,
			Logger:   logger,
		},
		collection: collection,
		profiles:   service.NewProfileService(db, v, logger),
		invites:    service.NewInviteService(db, v, service.InviteSettings{}, logger),
		contacts:   service.NewContactService(db, logger),
	}
}

func (f *fixture) user(t *testing.T, nickname string) *domain.User {
	t.Helper()
	u, err := f.profiles.Register(context.Background(), nickname)
	require.NoError(t, err)
	return u
}

func (f *fixture) befriend(t *testing.T, a, b *domain.User) {
	t.Helper()
	ctx := context.Background()
	inv, err := f.invites.Create(ctx, a.ID, service.CreateInviteRequest{})
	require.NoError(t, err)
	outcome, err := f.invites.Accept(ctx, b.ID, inv.Token)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeAccepted, outcome)
}

func (f *fixture) film(t *testing.T, owner *domain.User, externalID, title string, year int) *domain.CollectionEntry {
	t.Helper()
	e, err := f.collection.AddItem(context.Background(), owner.ID, service.AddItemRequest{
		Category:   domain.CategoryFilm,
		ExternalID: externalID,
		Title:      title,
		Year:       &year,
	})
	require.NoError(t, err)
	return e
}

func films(ownerID string) query.Scope {
	return query.Scope{OwnerID: ownerID, Category: domain.CategoryFilm}
}

func TestSession_OwnerBrowses(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	f.film(t, alice, "tt1", "Arrival", 2016)
	f.film(t, alice, "tt2", "The Matrix", 1999)
	f.film(t, alice, "tt3", "Heat", 1995)

	s := browse.NewSession(f.deps, alice.ID, films(alice.ID))
	defer s.Close()

	view, err := s.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, access.StateAllowed, view.Access)
	assert.Len(t, view.Page.Entries, 2)
	assert.True(t, view.Page.HasMore)
	assert.Equal(t, 3, view.Page.Total)
	assert.Equal(t, filter.Range[int]{From: 1995, To: 2016}, view.Spec.Year.Domain)

	view, err = s.LoadNextPage(ctx)
	require.NoError(t, err)
	assert.Len(t, view.Page.Entries, 3)
	assert.False(t, view.Page.HasMore)
}

func TestSession_GateShortCircuits(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	f.film(t, alice, "tt1", "Arrival", 2016)
	f.befriend(t, alice, carol)

	t.Run("stranger", func(t *testing.T) {
		s := browse.NewSession(f.deps, bob.ID, films(alice.ID))
		defer s.Close()
		view, err := s.Open(ctx)
		require.NoError(t, err)
		assert.Equal(t, access.StateNotFriends, view.Access)
		assert.NotEmpty(t, view.Message)
		assert.Empty(t, view.Page.Entries)
	})

	t.Run("friend with closed library", func(t *testing.T) {
		s := browse.NewSession(f.deps, carol.ID, films(alice.ID))
		defer s.Close()
		view, err := s.ApplyFilters(ctx, filter.Default(filter.DefaultDomains()))
		require.NoError(t, err)
		assert.Equal(t, access.StateClosed, view.Access)
	})

	t.Run("anonymous", func(t *testing.T) {
		s := browse.NewSession(f.deps, "", films(alice.ID))
		defer s.Close()
		view, err := s.LoadNextPage(ctx)
		assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
		assert.Equal(t, access.StateUnauthenticated, view.Access)
	})

	assert.Zero(t, f.store.fetches.Load(), "a denied gate must not reach the store")

	_, err := f.profiles.SetLibraryVisibility(ctx, alice.ID, true)
	require.NoError(t, err)
	s := browse.NewSession(f.deps, carol.ID, films(alice.ID))
	defer s.Close()
	view, err := s.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, access.StateAllowed, view.Access)
	assert.Len(t, view.Page.Entries, 1)
}

func TestSession_GateIsCheckedOnEveryQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("removed contact", func(t *testing.T) {
		f := setup(t)
		alice := f.user(t, "alice")
		bob := f.user(t, "bob")
		f.film(t, alice, "tt1", "Arrival", 2016)
		f.befriend(t, alice, bob)
		_, err := f.profiles.SetLibraryVisibility(ctx, alice.ID, true)
		require.NoError(t, err)

		s := browse.NewSession(f.deps, bob.ID, films(alice.ID))
		defer s.Close()
		view, err := s.Open(ctx)
		require.NoError(t, err)
		require.Equal(t, access.StateAllowed, view.Access)
		require.Len(t, view.Page.Entries, 1)

		require.NoError(t, f.contacts.RemoveContact(ctx, alice.ID, bob.ID))
		before := f.store.fetches.Load()

		view, err = s.ApplyFilters(ctx, s.Pending())
		require.NoError(t, err)
		assert.Equal(t, access.StateNotFriends, view.Access)
		assert.Empty(t, view.Page.Entries)

		view, err = s.LoadNextPage(ctx)
		require.NoError(t, err)
		assert.Equal(t, access.StateNotFriends, view.Access)

		_, err = s.RefreshBounds(ctx)
		require.NoError(t, err)
		enriched, err := s.EnrichVisible(ctx)
		require.NoError(t, err)
		assert.Empty(t, enriched)

		assert.Equal(t, before, f.store.fetches.Load(), "a revoked contact must not reach the store")
	})

	t.Run("library closed then reopened", func(t *testing.T) {
		f := setup(t)
		alice := f.user(t, "alice")
		carol := f.user(t, "carol")
		f.film(t, alice, "tt1", "Arrival", 2016)
		f.befriend(t, alice, carol)
		_, err := f.profiles.SetLibraryVisibility(ctx, alice.ID, true)
		require.NoError(t, err)

		s := browse.NewSession(f.deps, carol.ID, films(alice.ID))
		defer s.Close()
		_, err = s.Open(ctx)
		require.NoError(t, err)

		_, err = f.profiles.SetLibraryVisibility(ctx, alice.ID, false)
		require.NoError(t, err)
		before := f.store.fetches.Load()

		view, err := s.LoadNextPage(ctx)
		require.NoError(t, err)
		assert.Equal(t, access.StateClosed, view.Access)
		assert.Empty(t, view.Page.Entries)
		assert.Equal(t, before, f.store.fetches.Load())

		_, err = f.profiles.SetLibraryVisibility(ctx, alice.ID, true)
		require.NoError(t, err)

		view, err = s.LoadNextPage(ctx)
		require.NoError(t, err)
		assert.Equal(t, access.StateAllowed, view.Access)
		assert.Len(t, view.Page.Entries, 1, "regained access reloads from page 0")
	})

	t.Run("stranger becomes a friend", func(t *testing.T) {
		f := setup(t)
		alice := f.user(t, "alice")
		dave := f.user(t, "dave")
		f.film(t, alice, "tt1", "Arrival", 2016)
		_, err := f.profiles.SetLibraryVisibility(ctx, alice.ID, true)
		require.NoError(t, err)

		s := browse.NewSession(f.deps, dave.ID, films(alice.ID))
		defer s.Close()
		view, err := s.Open(ctx)
		require.NoError(t, err)
		require.Equal(t, access.StateNotFriends, view.Access)

		f.befriend(t, alice, dave)

		view, err = s.ApplyFilters(ctx, s.Pending())
		require.NoError(t, err)
		assert.Equal(t, access.StateAllowed, view.Access)
		assert.Len(t, view.Page.Entries, 1)
	})
}

func TestSession_ChangedCollectionReconcilesBeforePaging(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	f.film(t, alice, "tt1", "Arrival", 2016)
	f.film(t, alice, "tt2", "The Matrix", 1999)

	r := browse.NewRegistry(f.deps, time.Hour)
	defer r.Close()
	s, _ := r.Session(alice.ID, films(alice.ID))
	_, err := s.Open(ctx)
	require.NoError(t, err)

	f.film(t, alice, "tt3", "Dune", 2021)
	r.MarkOwnerChanged(alice.ID)

	view, err := s.LoadNextPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, filter.Range[int]{From: 1999, To: 2021}, view.Spec.Year.Selected)
	assert.Equal(t, 3, view.Page.Total)
	assert.Equal(t, 2021, s.Domains().Year.To)

	before := f.store.fetches.Load()
	_, err = s.LoadNextPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, f.store.fetches.Load(), "reconciled once, then paging resumes")
}

func TestSession_RefreshBoundsFollowsPinnedEdge(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	f.film(t, alice, "tt1", "Arrival", 2016)
	f.film(t, alice, "tt2", "The Matrix", 1999)

	s := browse.NewSession(f.deps, alice.ID, films(alice.ID))
	defer s.Close()
	_, err := s.Open(ctx)
	require.NoError(t, err)

	f.film(t, alice, "tt3", "Dune", 2021)

	before := f.store.fetches.Load()
	view, err := s.RefreshBounds(ctx)
	require.NoError(t, err)
	assert.Equal(t, filter.Range[int]{From: 1999, To: 2021}, view.Spec.Year.Selected)
	assert.Equal(t, 3, view.Page.Total)
	assert.Greater(t, f.store.fetches.Load(), before, "changed bounds re-run the query")
	assert.Equal(t, 2021, s.Pending().Year.Selected.To)

	before = f.store.fetches.Load()
	_, err = s.RefreshBounds(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, f.store.fetches.Load(), "unchanged bounds do not re-run the query")
}

func TestSession_PendingIsNotApplied(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	f.film(t, alice, "tt1", "Arrival", 2016)
	f.film(t, alice, "tt2", "The Matrix", 1999)

	s := browse.NewSession(f.deps, alice.ID, films(alice.ID))
	defer s.Close()
	_, err := s.Open(ctx)
	require.NoError(t, err)

	before := f.store.fetches.Load()
	s.SetPending(s.Pending().WithQuery("matrix"))
	assert.Equal(t, before, f.store.fetches.Load())

	view, err := s.ApplyPending(ctx)
	require.NoError(t, err)
	require.Len(t, view.Page.Entries, 1)
	assert.Equal(t, "The Matrix", view.Page.Entries[0].Item.Title)
	assert.Equal(t, "matrix", view.Spec.Query)
}

func TestSession_EmptyViewSelection(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	f.film(t, alice, "tt1", "Arrival", 2016)

	s := browse.NewSession(f.deps, alice.ID, films(alice.ID))
	defer s.Close()

	spec := filter.Default(filter.DefaultDomains())
	spec.View = filter.ViewNone
	view, err := s.ApplyFilters(ctx, spec)
	require.NoError(t, err)
	assert.Empty(t, view.Page.Entries)
	assert.Equal(t, query.ReasonChooseFilters, view.Message)
	assert.Zero(t, f.store.fetches.Load())
}

func TestSession_Metadata(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	f.befriend(t, alice, bob)
	_, err := f.profiles.SetLibraryVisibility(ctx, alice.ID, true)
	require.NoError(t, err)

	entry, err := f.collection.AddItem(ctx, alice.ID, service.AddItemRequest{
		Category: domain.CategoryFilm,
		Title:    "Arrival",
	})
	require.NoError(t, err)

	year := 2016
	f.provider.details["tt2543164"] = &metadata.Detail{
		ExternalID:  "tt2543164",
		Title:       "Arrival",
		Description: "A linguist is recruited.",
		Year:        &year,
		Genres:      []string{"Drama", "Sci-Fi"},
	}

	owner := browse.NewSession(f.deps, alice.ID, films(alice.ID))
	defer owner.Close()
	_, err = owner.Open(ctx)
	require.NoError(t, err)

	t.Run("no match", func(t *testing.T) {
		_, err := owner.RefreshMetadata(ctx, entry.ID)
		assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	})

	t.Run("ambiguous", func(t *testing.T) {
		f.provider.candidates = []metadata.Candidate{
			{ExternalID: "tt2543164", Title: "Arrival"},
			{ExternalID: "tt0115571", Title: "The Arrival"},
		}
		_, err := owner.RefreshMetadata(ctx, entry.ID)
		require.ErrorIs(t, err, domainerrors.ErrConflict)
		var de *domainerrors.Error
		require.ErrorAs(t, err, &de)
		assert.Len(t, de.Details, 2)
	})

	t.Run("choose", func(t *testing.T) {
		item, err := owner.ChooseMetadata(ctx, entry.ID, "tt2543164")
		require.NoError(t, err)
		assert.Equal(t, "tt2543164", item.ExternalID)
		assert.Equal(t, "A linguist is recruited.", item.Description)
		require.NotNil(t, item.Year)
		assert.Equal(t, 2016, *item.Year)
	})

	t.Run("friend cannot change metadata", func(t *testing.T) {
		s := browse.NewSession(f.deps, bob.ID, films(alice.ID))
		defer s.Close()
		_, err := s.Open(ctx)
		require.NoError(t, err)
		_, err = s.RefreshMetadata(ctx, entry.ID)
		assert.ErrorIs(t, err, domainerrors.ErrForbidden)
	})

	t.Run("entry not loaded", func(t *testing.T) {
		_, err := owner.ChooseMetadata(ctx, "entry-missing", "tt2543164")
		assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	})
}

func TestSession_EnrichVisible(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	e := f.film(t, alice, "tt1", "Arrival", 2016)
	f.film(t, alice, "tt2", "The Matrix", 1999)
	f.provider.details["tt1"] = &metadata.Detail{ExternalID: "tt1", Title: "Arrival"}

	s := browse.NewSession(f.deps, alice.ID, films(alice.ID))
	defer s.Close()
	_, err := s.Open(ctx)
	require.NoError(t, err)

	got, err := s.EnrichVisible(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1, "the failed lookup stays unenriched")
	assert.Contains(t, got, e.ItemID)
}

func TestSession_Close(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.user(t, "alice")

	s := browse.NewSession(f.deps, alice.ID, films(alice.ID))
	s.Close()
	s.Close()

	_, err := s.Open(ctx)
	assert.ErrorIs(t, err, browse.ErrClosed)
	_, err = s.LoadNextPage(ctx)
	assert.ErrorIs(t, err, browse.ErrClosed)
	assert.Equal(t, access.StateChecking, s.Access(), "a closed session never decides its gate")
}

func TestRegistry(t *testing.T) {
	f := setup(t)
	alice := f.user(t, "alice")

	r := browse.NewRegistry(f.deps, time.Hour)
	defer r.Close()

	s1, created := r.Session(alice.ID, films(alice.ID))
	assert.True(t, created)
	s2, created := r.Session(alice.ID, films(alice.ID))
	assert.False(t, created)
	assert.Same(t, s1, s2)

	games := query.Scope{OwnerID: alice.ID, Category: domain.CategoryGame}
	s3, _ := r.Session(alice.ID, games)
	assert.NotSame(t, s1, s3)
	assert.Equal(t, 2, r.Len())

	r.Drop(alice.ID, games)
	assert.Equal(t, 1, r.Len())
	_, err := s3.Open(context.Background())
	assert.ErrorIs(t, err, browse.ErrClosed)
}
