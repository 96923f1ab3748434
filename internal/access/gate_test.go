package access

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	domainerrors "github.com/watchlogapp/watchlog-server/internal/errors"
	"github.com/watchlogapp/watchlog-server/internal/store"
)

func TestEvaluate(t *testing.T) {
	accepted := &domain.Contact{Status: domain.ContactAccepted}
	revoked := &domain.Contact{Status: domain.ContactRevoked}

	tests := []struct {
		name string
		ev   Evidence
		want State
	}{
		{"no viewer", Evidence{OwnerID: "bob", Contact: accepted, LibraryVisible: true}, StateUnauthenticated},
		{"owner with closed library", Evidence{ViewerID: "bob", OwnerID: "bob"}, StateAllowed},
		{"stranger", Evidence{ViewerID: "amy", OwnerID: "bob", LibraryVisible: true}, StateNotFriends},
		{"revoked contact", Evidence{ViewerID: "amy", OwnerID: "bob", Contact: revoked, LibraryVisible: true}, StateNotFriends},
		{"stranger to closed library", Evidence{ViewerID: "amy", OwnerID: "bob"}, StateNotFriends},
		{"friend, closed library", Evidence{ViewerID: "amy", OwnerID: "bob", Contact: accepted}, StateClosed},
		{"friend, open library", Evidence{ViewerID: "amy", OwnerID: "bob", Contact: accepted, LibraryVisible: true}, StateAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.ev))
		})
	}
}

func TestGate_Transitions(t *testing.T) {
	g := NewGate()
	assert.Equal(t, StateChecking, g.State())
	assert.False(t, g.Allowed())

	assert.ErrorIs(t, g.Transition(StateChecking), ErrIllegalTransition)
	require.NoError(t, g.Transition(StateNotFriends))

	// A decision cannot flip straight to another decision.
	assert.ErrorIs(t, g.Transition(StateAllowed), ErrIllegalTransition)
	assert.Equal(t, StateNotFriends, g.State())

	require.NoError(t, g.Transition(StateChecking))
	require.NoError(t, g.Transition(StateAllowed))
	assert.True(t, g.Allowed())
}

type fakeDirectory struct {
	users    map[string]*domain.User
	contacts map[[2]string]*domain.Contact
	calls    int
}

func (d *fakeDirectory) GetUser(_ context.Context, id string) (*domain.User, error) {
	d.calls++
	u, ok := d.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (d *fakeDirectory) GetContact(_ context.Context, userID, contactID string) (*domain.Contact, error) {
	d.calls++
	c, ok := d.contacts[[2]string{userID, contactID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func TestChecker_Check(t *testing.T) {
	dir := &fakeDirectory{
		users: map[string]*domain.User{
			"bob":   {Syncable: domain.Syncable{ID: "bob"}, LibraryVisible: true},
			"carol": {Syncable: domain.Syncable{ID: "carol"}},
		},
		contacts: map[[2]string]*domain.Contact{
			{"amy", "bob"}:   {UserID: "amy", ContactID: "bob", Status: domain.ContactAccepted},
			{"amy", "carol"}: {UserID: "amy", ContactID: "carol", Status: domain.ContactAccepted},
		},
	}
	c := NewChecker(dir, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	gate := NewGate()
	state, err := c.Check(ctx, gate, "amy", "bob")
	require.NoError(t, err)
	assert.Equal(t, StateAllowed, state)
	assert.True(t, gate.Allowed())

	// Re-checking an already decided gate goes through checking again.
	state, err = c.Check(ctx, gate, "amy", "carol")
	require.NoError(t, err)
	assert.Equal(t, StateClosed, state)
	assert.Equal(t, StateClosed, gate.State())

	state, err = c.Check(ctx, NewGate(), "dave", "bob")
	require.NoError(t, err)
	assert.Equal(t, StateNotFriends, state)
}

func TestChecker_NoStoreForTrivialDecisions(t *testing.T) {
	dir := &fakeDirectory{}
	c := NewChecker(dir, slog.New(slog.DiscardHandler))

	state, err := c.Decide(context.Background(), "", "bob")
	require.NoError(t, err)
	assert.Equal(t, StateUnauthenticated, state)

	state, err = c.Decide(context.Background(), "bob", "bob")
	require.NoError(t, err)
	assert.Equal(t, StateAllowed, state)

	assert.Zero(t, dir.calls)
}

func TestChecker_UnknownOwner(t *testing.T) {
	c := NewChecker(&fakeDirectory{}, slog.New(slog.DiscardHandler))
	gate := NewGate()

	_, err := c.Check(context.Background(), gate, "amy", "ghost")
	assert.True(t, errors.Is(err, domainerrors.ErrNotFound))
	assert.Equal(t, StateChecking, gate.State())
}

func TestChecker_ConcurrentRechecks(t *testing.T) {
	c := NewChecker(&fakeDirectory{}, slog.New(slog.DiscardHandler))
	gate := NewGate()

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			state, err := c.Check(context.Background(), gate, "amy", "amy")
			assert.NoError(t, err)
			assert.Equal(t, StateAllowed, state)
		})
	}
	wg.Wait()
	assert.Equal(t, StateAllowed, gate.State())
}
