package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	domainerrors "github.com/watchlogapp/watchlog-server/internal/errors"
	"github.com/watchlogapp/watchlog-server/internal/store"
)

func TestRemoveContact(t *testing.T) {
	ts := setupServices(t)
	ctx := context.Background()
	alice := ts.user(t, "alice")
	bob := ts.user(t, "bob")
	carol := ts.user(t, "carol")
	ts.befriend(t, alice, bob)
	ts.befriend(t, alice, carol)

	list, err := ts.contacts.ListContacts(ctx, alice.ID, store.PaginationParams{})
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "bob", list.Items[0].Nickname)

	require.NoError(t, ts.contacts.RemoveContact(ctx, bob.ID, alice.ID))

	for _, pair := range [][2]string{{alice.ID, bob.ID}, {bob.ID, alice.ID}} {
		c, err := ts.store.GetContact(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.Equal(t, domain.ContactRevoked, c.Status)
	}

	assert.ErrorIs(t, ts.contacts.RemoveContact(ctx, bob.ID, alice.ID), domainerrors.ErrNotFound)
	assert.ErrorIs(t, ts.contacts.RemoveContact(ctx, bob.ID, bob.ID), domainerrors.ErrValidation)

	list, err = ts.contacts.ListContacts(ctx, alice.ID, store.PaginationParams{})
	require.NoError(t, err)
	assert.Len(t, list.Items, 1)
}

func TestBlock(t *testing.T) {
	ts := setupServices(t)
	ctx := context.Background()
	alice := ts.user(t, "alice")
	bob := ts.user(t, "bob")
	ts.befriend(t, alice, bob)

	require.NoError(t, ts.contacts.Block(ctx, alice.ID, bob.ID))

	// A blocked pair cannot be re-linked with a fresh invite.
	inv, err := ts.invites.Create(ctx, bob.ID, CreateInviteRequest{})
	require.NoError(t, err)
	outcome, err := ts.invites.Accept(ctx, alice.ID, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeInvalid, outcome)

	assert.ErrorIs(t, ts.contacts.Block(ctx, alice.ID, "user-missing"), domainerrors.ErrNotFound)
}
