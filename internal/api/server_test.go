package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchlogapp/watchlog-server/internal/auth"
	"github.com/watchlogapp/watchlog-server/internal/browse"
	"github.com/watchlogapp/watchlog-server/internal/query"
	"github.com/watchlogapp/watchlog-server/internal/service"
	"github.com/watchlogapp/watchlog-server/internal/store/sqlite"
	"github.com/watchlogapp/watchlog-server/internal/validation"
)

type testServer struct {
	*Server
	api    humatest.TestAPI
	store  *sqlite.Store
	tokens *auth.TokenService
}

// setupTestServer builds the full stack over a temp database with a page size of 2.
func setupTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()

	dir := t.TempDir()
	logger := slog.New(slog.DiscardHandler)

	st, err := sqlite.Open(filepath.Join(dir, "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	key, err := auth.LoadOrGenerateKey(dir)
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(key, time.Hour)
	require.NoError(t, err)

	v := validation.New()
	services := &Services{
		Collection:      service.NewCollectionService(st, v, logger),
		Profiles:        service.NewProfileService(st, v, logger),
		Contacts:        service.NewContactService(st, logger),
		Recommendations: service.NewRecommendationService(st, v, logger),
		Invites:         service.NewInviteService(st, v, service.InviteSettings{}, logger),
	}

	sessions := browse.NewRegistry(browse.Deps{
		Store:    st,
		Compiler: query.NewCompiler(query.WithPageSize(2)),
		Metadata: services.Collection,
		Logger:   logger,
	}, time.Hour)
	t.Cleanup(sessions.Close)

	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.NewRegistry()
	}
	srv := NewServer(st, services, tokens, sessions, cfg, logger)
	t.Cleanup(srv.Close)

	return &testServer{
		Server: srv,
		api:    humatest.Wrap(t, srv.API()),
		store:  st,
		tokens: tokens,
	}
}

// register creates a user and returns its bearer header and ID.
func (ts *testServer) register(t *testing.T, nickname string) (string, string) {
	t.Helper()

	resp := ts.api.Post("/api/v1/auth/register", map[string]any{"nickname": nickname})
	require.Equal(t, http.StatusOK, resp.Code, "register failed: %s", resp.Body.String())

	var body AuthResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return "Authorization: Bearer " + body.AccessToken, body.User.ID
}

// befriend makes a and b contacts through an invite created by a.
func (ts *testServer) befriend(t *testing.T, a, b string) {
	t.Helper()

	resp := ts.api.Post("/api/v1/invites", a, map[string]any{})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var inv InviteResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &inv))

	resp = ts.api.Post("/api/v1/invites/accept", b, map[string]any{"token": inv.Token})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var accepted AcceptInviteResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &accepted))
	require.True(t, accepted.Accepted, accepted.Message)
}

// addFilm adds a film to the caller's collection and returns the entry ID.
func (ts *testServer) addFilm(t *testing.T, authHeader, externalID, title string, year int) string {
	t.Helper()

	resp := ts.api.Post("/api/v1/entries", authHeader, map[string]any{
		"category":    "film",
		"external_id": externalID,
		"title":       title,
		"year":        year,
		"is_viewed":   true,
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var entry struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &entry))
	return entry.ID
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t, Config{})

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	health := decode[HealthResponse](t, resp.Body.Bytes())
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Components["database"].Status)
	assert.Equal(t, "0 open browse sessions", health.Components["sessions"].Message)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "watchlog_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	ts := setupTestServer(t, Config{Gatherer: reg})

	resp := ts.api.Get("/metrics")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "watchlog_test_total 1")
}

func TestRegisterAndProfile(t *testing.T) {
	ts := setupTestServer(t, Config{})
	alice, aliceID := ts.register(t, "alice")

	t.Run("me", func(t *testing.T) {
		resp := ts.api.Get("/api/v1/users/me", alice)
		require.Equal(t, http.StatusOK, resp.Code)
		me := decode[UserResponse](t, resp.Body.Bytes())
		assert.Equal(t, aliceID, me.ID)
		assert.Equal(t, "alice", me.Nickname)
		assert.False(t, me.LibraryVisible)
	})

	t.Run("me requires a token", func(t *testing.T) {
		resp := ts.api.Get("/api/v1/users/me")
		assert.Equal(t, http.StatusUnauthorized, resp.Code)

		resp = ts.api.Get("/api/v1/users/me", "Authorization: Bearer not-a-token")
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("duplicate nickname", func(t *testing.T) {
		resp := ts.api.Post("/api/v1/auth/register", map[string]any{"nickname": "alice"})
		require.Equal(t, http.StatusConflict, resp.Code)
		apiErr := decode[APIError](t, resp.Body.Bytes())
		assert.Equal(t, "ALREADY_EXISTS", apiErr.Code)
	})

	t.Run("invalid nickname", func(t *testing.T) {
		resp := ts.api.Post("/api/v1/auth/register", map[string]any{"nickname": "No Spaces"})
		require.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Equal(t, "VALIDATION", decode[APIError](t, resp.Body.Bytes()).Code)
	})

	t.Run("visibility and nickname", func(t *testing.T) {
		resp := ts.api.Put("/api/v1/users/me/visibility", alice, map[string]any{"visible": true})
		require.Equal(t, http.StatusOK, resp.Code)
		assert.True(t, decode[UserResponse](t, resp.Body.Bytes()).LibraryVisible)

		resp = ts.api.Put("/api/v1/users/me/nickname", alice, map[string]any{"nickname": "alice_2"})
		require.Equal(t, http.StatusOK, resp.Code)

		resp = ts.api.Get("/api/v1/users/by-nickname/alice_2", alice)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, aliceID, decode[UserResponse](t, resp.Body.Bytes()).ID)
	})
}

func TestRegister_RateLimited(t *testing.T) {
	ts := setupTestServer(t, Config{RegisterPerMinute: 1})
	ts.register(t, "first")

	resp := ts.api.Post("/api/v1/auth/register", map[string]any{"nickname": "second"})
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, codeRateLimited, decode[APIError](t, resp.Body.Bytes()).Code)
}

func TestEntryLifecycle(t *testing.T) {
	ts := setupTestServer(t, Config{})
	alice, _ := ts.register(t, "alice")
	bob, _ := ts.register(t, "bob")

	id := ts.addFilm(t, alice, "tt0083658", "Blade Runner", 1982)

	resp := ts.api.Patch("/api/v1/entries/"+id, alice, map[string]any{"rating": 9, "comment": "rain"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var entry struct {
		Rating  *int   `json:"rating"`
		Comment string `json:"comment"`
		Item    struct {
			Title string `json:"title"`
			Year  int    `json:"year"`
		} `json:"item"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &entry))
	require.NotNil(t, entry.Rating)
	assert.Equal(t, 9, *entry.Rating)
	assert.Equal(t, "rain", entry.Comment)

	resp = ts.api.Get("/api/v1/entries/"+id, alice)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &entry))
	assert.Equal(t, "Blade Runner", entry.Item.Title)
	assert.Equal(t, 1982, entry.Item.Year)

	t.Run("other users cannot see it", func(t *testing.T) {
		resp := ts.api.Get("/api/v1/entries/"+id, bob)
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("duplicate add", func(t *testing.T) {
		resp := ts.api.Post("/api/v1/entries", alice, map[string]any{
			"category": "film", "external_id": "tt0083658", "title": "Blade Runner",
		})
		assert.Equal(t, http.StatusConflict, resp.Code)
	})

	t.Run("platform must fit the category", func(t *testing.T) {
		resp := ts.api.Post("/api/v1/entries", alice, map[string]any{
			"category": "film", "title": "Alien", "platforms": []string{"xbox"},
		})
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	resp = ts.api.Delete("/api/v1/entries/"+id, alice)
	require.Equal(t, http.StatusNoContent, resp.Code)
	resp = ts.api.Get("/api/v1/entries/"+id, alice)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestBrowse_OwnerPages(t *testing.T) {
	ts := setupTestServer(t, Config{})
	alice, aliceID := ts.register(t, "alice")
	ts.addFilm(t, alice, "tt1", "Heat", 1995)
	ts.addFilm(t, alice, "tt2", "Arrival", 2016)
	ts.addFilm(t, alice, "tt3", "Ronin", 1998)

	base := "/api/v1/users/" + aliceID + "/collections/film"

	resp := ts.api.Post(base+"/open", alice)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	view := decode[BrowseResponse](t, resp.Body.Bytes())
	assert.Equal(t, "allowed", string(view.Access))
	assert.Equal(t, 3, view.Total)
	assert.Len(t, view.Entries, 2)
	assert.True(t, view.HasMore)
	assert.Equal(t, 1995, view.Spec.Year.Domain.From)
	assert.Equal(t, 2016, view.Spec.Year.Domain.To)

	resp = ts.api.Post(base+"/pages/next", alice)
	require.Equal(t, http.StatusOK, resp.Code)
	view = decode[BrowseResponse](t, resp.Body.Bytes())
	assert.Len(t, view.Entries, 3)
	assert.False(t, view.HasMore)

	// Exhausted: another trigger changes nothing.
	resp = ts.api.Post(base+"/pages/next", alice)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decode[BrowseResponse](t, resp.Body.Bytes()).Entries, 3)

	t.Run("title sort with a query", func(t *testing.T) {
		resp := ts.api.Put(base+"/filters", alice, map[string]any{"query": "r", "sort_key": "title"})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		view := decode[BrowseResponse](t, resp.Body.Bytes())
		require.Len(t, view.Entries, 2)
		assert.Equal(t, "Arrival", view.Entries[0].Item.Title)
		assert.Equal(t, "Ronin", view.Entries[1].Item.Title)
	})

	t.Run("empty view selection never queries", func(t *testing.T) {
		resp := ts.api.Put(base+"/filters", alice, map[string]any{"view_all": false})
		require.Equal(t, http.StatusOK, resp.Code)
		view := decode[BrowseResponse](t, resp.Body.Bytes())
		assert.Empty(t, view.Entries)
		assert.NotEmpty(t, view.Message)
	})

	t.Run("pending is not applied", func(t *testing.T) {
		resp := ts.api.Put(base+"/filters/pending", alice, map[string]any{"year": map[string]any{"from": 1990, "to": 1996}})
		require.Equal(t, http.StatusOK, resp.Code)

		resp = ts.api.Post(base+"/filters/pending/apply", alice)
		require.Equal(t, http.StatusOK, resp.Code)
		view := decode[BrowseResponse](t, resp.Body.Bytes())
		require.Len(t, view.Entries, 1)
		assert.Equal(t, "Heat", view.Entries[0].Item.Title)
	})

	t.Run("bounds follow new data", func(t *testing.T) {
		resp := ts.api.Put(base+"/filters", alice, map[string]any{})
		require.Equal(t, http.StatusOK, resp.Code)

		ts.addFilm(t, alice, "tt4", "Dune", 2021)
		resp = ts.api.Post(base+"/bounds/refresh", alice)
		require.Equal(t, http.StatusOK, resp.Code)
		view := decode[BrowseResponse](t, resp.Body.Bytes())
		assert.Equal(t, 2021, view.Spec.Year.Selected.To)
		assert.Equal(t, 4, view.Total)

		resp = ts.api.Get(base+"/bounds", alice)
		require.Equal(t, http.StatusOK, resp.Code)
		b := decode[BoundsResponse](t, resp.Body.Bytes())
		require.NotNil(t, b.Year)
		assert.Equal(t, 2021, b.Year.To)
	})

	t.Run("adding an entry reconciles on the next page load", func(t *testing.T) {
		ts.addFilm(t, alice, "tt5", "Past Lives", 2023)

		resp := ts.api.Post(base+"/pages/next", alice)
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		view := decode[BrowseResponse](t, resp.Body.Bytes())
		assert.Equal(t, 2023, view.Spec.Year.Selected.To)
		assert.Equal(t, 5, view.Total)
	})

	t.Run("unknown category", func(t *testing.T) {
		resp := ts.api.Post("/api/v1/users/"+aliceID+"/collections/books/open", alice)
		assert.GreaterOrEqual(t, resp.Code, http.StatusBadRequest)
		assert.Less(t, resp.Code, http.StatusInternalServerError)
	})

	resp = ts.api.Delete(base, alice)
	require.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, 0, ts.sessions.Len())
}

func TestBrowse_FriendGate(t *testing.T) {
	ts := setupTestServer(t, Config{})
	alice, aliceID := ts.register(t, "alice")
	bob, bobID := ts.register(t, "bob")
	ts.addFilm(t, alice, "tt1", "Heat", 1995)

	base := "/api/v1/users/" + aliceID + "/collections/film"

	t.Run("anonymous", func(t *testing.T) {
		resp := ts.api.Post(base + "/open")
		require.Equal(t, http.StatusUnauthorized, resp.Code)

		resp = ts.api.Get("/api/v1/users/" + aliceID + "/access")
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "unauthenticated", string(decode[AccessResponse](t, resp.Body.Bytes()).State))
	})

	t.Run("stranger", func(t *testing.T) {
		resp := ts.api.Post(base+"/open", bob)
		require.Equal(t, http.StatusOK, resp.Code)
		view := decode[BrowseResponse](t, resp.Body.Bytes())
		assert.Equal(t, "not_friends", string(view.Access))
		assert.Empty(t, view.Entries)
		assert.NotEmpty(t, view.Message)
	})

	ts.befriend(t, alice, bob)

	t.Run("friend of a closed library", func(t *testing.T) {
		resp := ts.api.Get("/api/v1/users/"+aliceID+"/access", bob)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "closed", string(decode[AccessResponse](t, resp.Body.Bytes()).State))
	})

	resp := ts.api.Put("/api/v1/users/me/visibility", alice, map[string]any{"visible": true})
	require.Equal(t, http.StatusOK, resp.Code)

	t.Run("friend of an open library", func(t *testing.T) {
		resp := ts.api.Post(base+"/open", bob)
		require.Equal(t, http.StatusOK, resp.Code)
		view := decode[BrowseResponse](t, resp.Body.Bytes())
		assert.Equal(t, "allowed", string(view.Access))
		require.Len(t, view.Entries, 1)
		assert.Equal(t, "Heat", view.Entries[0].Item.Title)
	})

	t.Run("friends cannot change metadata", func(t *testing.T) {
		resp := ts.api.Get(base+"/filters/pending", bob)
		require.Equal(t, http.StatusOK, resp.Code)

		resp = ts.api.Post(base+"/entries/missing/metadata/choose", bob, map[string]any{"external_id": "tt1"})
		assert.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("unknown owner", func(t *testing.T) {
		resp := ts.api.Post("/api/v1/users/user-nobody/collections/film/open", bob)
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("removed contact loses an open session", func(t *testing.T) {
		resp := ts.api.Delete("/api/v1/contacts/"+bobID, alice)
		require.Equal(t, http.StatusNoContent, resp.Code)

		resp = ts.api.Post(base+"/pages/next", bob)
		require.Equal(t, http.StatusOK, resp.Code)
		view := decode[BrowseResponse](t, resp.Body.Bytes())
		assert.Equal(t, "not_friends", string(view.Access))
		assert.Empty(t, view.Entries)
	})
}

func TestInvites(t *testing.T) {
	ts := setupTestServer(t, Config{})
	alice, _ := ts.register(t, "alice")
	bob, bobID := ts.register(t, "bob")
	carol, _ := ts.register(t, "carol")

	resp := ts.api.Post("/api/v1/invites", alice, map[string]any{"max_uses": 1})
	require.Equal(t, http.StatusCreated, resp.Code)
	inv := decode[InviteResponse](t, resp.Body.Bytes())
	assert.Equal(t, "active", string(inv.State))
	assert.Equal(t, 1, inv.RemainingUses)

	accept := func(header string) AcceptInviteResponse {
		t.Helper()
		resp := ts.api.Post("/api/v1/invites/accept", header, map[string]any{"token": inv.Token})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		return decode[AcceptInviteResponse](t, resp.Body.Bytes())
	}

	assert.Equal(t, "self", string(accept(alice).Outcome))
	assert.Equal(t, "accepted", string(accept(bob).Outcome))
	assert.Equal(t, "max_uses", string(accept(carol).Outcome))

	resp = ts.api.Post("/api/v1/invites/accept", map[string]any{"token": inv.Token})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "unauthorized", string(decode[AcceptInviteResponse](t, resp.Body.Bytes()).Outcome))

	t.Run("used invites disappear from the list", func(t *testing.T) {
		resp := ts.api.Get("/api/v1/invites", alice)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Empty(t, decode[ListInvitesResponse](t, resp.Body.Bytes()).Invites)
	})

	t.Run("revoke", func(t *testing.T) {
		resp := ts.api.Post("/api/v1/invites", alice, map[string]any{})
		require.Equal(t, http.StatusCreated, resp.Code)
		second := decode[InviteResponse](t, resp.Body.Bytes())

		resp = ts.api.Delete("/api/v1/invites/"+second.ID, bob)
		assert.Equal(t, http.StatusNotFound, resp.Code)

		resp = ts.api.Delete("/api/v1/invites/"+second.ID, alice)
		require.Equal(t, http.StatusNoContent, resp.Code)

		resp = ts.api.Post("/api/v1/invites/accept", carol, map[string]any{"token": second.Token})
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "revoked", string(decode[AcceptInviteResponse](t, resp.Body.Bytes()).Outcome))
	})

	t.Run("contacts", func(t *testing.T) {
		resp := ts.api.Get("/api/v1/contacts", alice)
		require.Equal(t, http.StatusOK, resp.Code)
		var page struct {
			Items []struct {
				ContactID string `json:"contact_id"`
				Status    string `json:"status"`
			} `json:"items"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &page))
		require.Len(t, page.Items, 1)
		assert.Equal(t, bobID, page.Items[0].ContactID)
		assert.Equal(t, "accepted", page.Items[0].Status)

		resp = ts.api.Delete("/api/v1/contacts/"+bobID, alice)
		require.Equal(t, http.StatusNoContent, resp.Code)

		page.Items = nil
		resp = ts.api.Get("/api/v1/contacts", alice)
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &page))
		assert.Empty(t, page.Items)
	})
}

func TestInviteAccept_RateLimited(t *testing.T) {
	ts := setupTestServer(t, Config{InviteAcceptPerMinute: 2})
	bob, _ := ts.register(t, "bob")

	for range 2 {
		resp := ts.api.Post("/api/v1/invites/accept", bob, map[string]any{"token": "guess"})
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "invalid", string(decode[AcceptInviteResponse](t, resp.Body.Bytes()).Outcome))
	}

	resp := ts.api.Post("/api/v1/invites/accept", bob, map[string]any{"token": "guess"})
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, codeRateLimited, decode[APIError](t, resp.Body.Bytes()).Code)
}

func TestRecommendations(t *testing.T) {
	ts := setupTestServer(t, Config{})
	alice, _ := ts.register(t, "alice")
	bob, bobID := ts.register(t, "bob")
	_, carolID := ts.register(t, "carol")
	ts.befriend(t, alice, bob)

	entryID := ts.addFilm(t, alice, "tt1", "Heat", 1995)
	resp := ts.api.Get("/api/v1/entries/"+entryID, alice)
	var entry struct {
		ItemID string `json:"item_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &entry))

	resp = ts.api.Post("/api/v1/recommendations", alice, map[string]any{
		"to_user_ids": []string{bobID, carolID},
		"item_id":     entry.ItemID,
		"comment":     "watch this",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	sent := decode[service.SendResult](t, resp.Body.Bytes())
	assert.Equal(t, 1, sent.SentCount)
	assert.Equal(t, []string{carolID}, sent.Skipped)

	resp = ts.api.Get("/api/v1/recommendations/inbox", bob)
	require.Equal(t, http.StatusOK, resp.Code)
	var inbox struct {
		Items []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"items"`
		HasMore bool `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &inbox))
	require.Len(t, inbox.Items, 1)
	assert.Equal(t, "pending", inbox.Items[0].Status)
	recID := inbox.Items[0].ID

	t.Run("sender cannot resolve", func(t *testing.T) {
		resp := ts.api.Post("/api/v1/recommendations/"+recID+"/resolve", alice, map[string]any{"status": "accepted"})
		assert.Equal(t, http.StatusForbidden, resp.Code)
	})

	resp = ts.api.Post("/api/v1/recommendations/"+recID+"/resolve", bob, map[string]any{"status": "accepted"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	resolved := decode[service.ResolveResult](t, resp.Body.Bytes())
	assert.True(t, resolved.EntryCreated)
	assert.NotEmpty(t, resolved.EntryID)

	t.Run("terminal", func(t *testing.T) {
		resp := ts.api.Post("/api/v1/recommendations/"+recID+"/resolve", bob, map[string]any{"status": "dismissed"})
		assert.Equal(t, http.StatusConflict, resp.Code)
	})

	resp = ts.api.Get("/api/v1/recommendations/sent", alice)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &inbox))
	require.Len(t, inbox.Items, 1)
	assert.Equal(t, "accepted", inbox.Items[0].Status)
}
