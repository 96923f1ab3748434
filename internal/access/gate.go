// Package access decides whether a viewer may browse another user's collection.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	domainerrors "github.com/watchlogapp/watchlog-server/internal/errors"
	"github.com/watchlogapp/watchlog-server/internal/metrics"
	"github.com/watchlogapp/watchlog-server/internal/store"
)

// State is the decision state of a gate.
type State string

const (
	StateChecking        State = "checking"
	StateAllowed         State = "allowed"
	StateUnauthenticated State = "unauthenticated"
	StateNotFriends      State = "not_friends"
	StateClosed          State = "closed"
)

// ErrIllegalTransition is returned by Gate.Transition for a move the gate does not allow.
var ErrIllegalTransition = errors.New("illegal access state transition")

// Decided reports whether s is a final answer rather than a pending check.
func (s State) Decided() bool {
	return s != StateChecking
}

// CanTransition reports whether a gate in s may move to next.
// A check resolves to exactly one decision; any decision may be re-checked.
func (s State) CanTransition(next State) bool {
	if s == StateChecking {
		return next.Decided()
	}
	return next == StateChecking
}

// Message returns a short user-facing explanation of a denial.
func (s State) Message() string {
	switch s {
	case StateAllowed:
		return ""
	case StateUnauthenticated:
		return "Sign in to view this collection"
	case StateNotFriends:
		return "Only contacts can view this collection"
	case StateClosed:
		return "This collection is private"
	default:
		return "Checking access"
	}
}

// Evidence is what a decision is based on.
type Evidence struct {
	ViewerID string
	OwnerID  string
	// Contact is the viewer's relation to the owner, nil when none exists.
	Contact        *domain.Contact
	LibraryVisible bool
}

// Evaluate decides a state from evidence. The owner is always allowed.
// Strangers see not_friends even when the library is also closed.
func Evaluate(ev Evidence) State {
	switch {
	case ev.ViewerID == "":
		return StateUnauthenticated
	case ev.ViewerID == ev.OwnerID:
		return StateAllowed
	case !ev.Contact.IsAccepted():
		return StateNotFriends
	case !ev.LibraryVisible:
		return StateClosed
	default:
		return StateAllowed
	}
}

// Gate holds the current state for one browse session.
type Gate struct {
	// checking serializes Check calls so concurrent re-checks do not interleave transitions.
	checking sync.Mutex

	mu    sync.Mutex
	state State
}

// NewGate returns a gate in the checking state.
func NewGate() *Gate {
	return &Gate{state: StateChecking}
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Allowed reports whether queries may run.
func (g *Gate) Allowed() bool {
	return g.State() == StateAllowed
}

// Transition moves the gate to next.
func (g *Gate) Transition(next State) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, g.state, next)
	}
	g.state = next
	return nil
}

// Directory is the store subset a Checker reads.
type Directory interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetContact(ctx context.Context, userID, contactID string) (*domain.Contact, error)
}

// Checker gathers evidence from the store and decides.
type Checker struct {
	dir    Directory
	logger *slog.Logger
}

// NewChecker creates a checker.
func NewChecker(dir Directory, logger *slog.Logger) *Checker {
	return &Checker{dir: dir, logger: logger}
}

// Decide returns the state for viewer browsing owner's collection.
// An unauthenticated viewer and the owner themself are decided without touching the store.
func (c *Checker) Decide(ctx context.Context, viewerID, ownerID string) (State, error) {
	ev := Evidence{ViewerID: viewerID, OwnerID: ownerID}
	if viewerID == "" || viewerID == ownerID {
		return c.record(ev), nil
	}

	owner, err := c.dir.GetUser(ctx, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return StateChecking, domainerrors.NotFound("user not found")
		}
		return StateChecking, fmt.Errorf("get owner: %w", err)
	}
	ev.LibraryVisible = owner.LibraryVisible

	contact, err := c.dir.GetContact(ctx, viewerID, ownerID)
	switch {
	case err == nil:
		ev.Contact = contact
	case errors.Is(err, store.ErrNotFound):
	default:
		return StateChecking, fmt.Errorf("get contact: %w", err)
	}

	return c.record(ev), nil
}

// Check runs a fresh decision through gate: checking, then the decided state.
func (c *Checker) Check(ctx context.Context, gate *Gate, viewerID, ownerID string) (State, error) {
	gate.checking.Lock()
	defer gate.checking.Unlock()

	if gate.State().Decided() {
		if err := gate.Transition(StateChecking); err != nil {
			return StateChecking, err
		}
	}

	state, err := c.Decide(ctx, viewerID, ownerID)
	if err != nil {
		return StateChecking, err
	}
	if err := gate.Transition(state); err != nil {
		return StateChecking, err
	}
	return state, nil
}

func (c *Checker) record(ev Evidence) State {
	state := Evaluate(ev)
	metrics.AccessDecisionsTotal.WithLabelValues(string(state)).Inc()
	c.logger.Debug("access decided",
		"viewer_id", ev.ViewerID,
		"owner_id", ev.OwnerID,
		"state", state,
	)
	return state
}
