package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	"github.com/watchlogapp/watchlog-server/internal/store/sqlite"
	"github.com/watchlogapp/watchlog-server/internal/validation"
)

type testServices struct {
	store           *sqlite.Store
	collection      *CollectionService
	profiles        *ProfileService
	contacts        *ContactService
	recommendations *RecommendationService
	invites         *InviteService
}

func setupServices(t *testing.T) *testServices {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	v := validation.New()
	return &testServices{
		store:           s,
		collection:      NewCollectionService(s, v, logger),
		profiles:        NewProfileService(s, v, logger),
		contacts:        NewContactService(s, logger),
		recommendations: NewRecommendationService(s, v, logger),
		invites:         NewInviteService(s, v, InviteSettings{}, logger),
	}
}

func (ts *testServices) user(t *testing.T, nickname string) *domain.User {
	t.Helper()
	u, err := ts.profiles.Register(context.Background(), nickname)
	require.NoError(t, err)
	return u
}

// befriend links a and b through an invite.
func (ts *testServices) befriend(t *testing.T, a, b *domain.User) {
	t.Helper()
	ctx := context.Background()
	inv, err := ts.invites.Create(ctx, a.ID, CreateInviteRequest{})
	require.NoError(t, err)
	outcome, err := ts.invites.Accept(ctx, b.ID, inv.Token)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeAccepted, outcome)
}

func (ts *testServices) addFilm(t *testing.T, owner *domain.User, externalID, title string) *domain.CollectionEntry {
	t.Helper()
	e, err := ts.collection.AddItem(context.Background(), owner.ID, AddItemRequest{
		Category:   domain.CategoryFilm,
		ExternalID: externalID,
		Title:      title,
	})
	require.NoError(t, err)
	return e
}
