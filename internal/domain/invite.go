package domain

import "time"

// InviteState is the derived lifecycle state of an invite.
type InviteState string

const (
	InviteActive   InviteState = "active"
	InviteConsumed InviteState = "consumed"
	InviteRevoked  InviteState = "revoked"
	InviteExpired  InviteState = "expired"
)

// Invite is a limited-use token that creates a contact pair when accepted.
type Invite struct {
	ID        string     `json:"id"`
	CreatorID string     `json:"creator_id"`
	Token     string     `json:"token"`
	MaxUses   int        `json:"max_uses"`
	UsedCount int        `json:"used_count"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// State derives the lifecycle state at now. Revocation wins over expiry, expiry over exhaustion.
func (i *Invite) State(now time.Time) InviteState {
	switch {
	case i.RevokedAt != nil:
		return InviteRevoked
	case !now.Before(i.ExpiresAt):
		return InviteExpired
	case i.UsedCount >= i.MaxUses:
		return InviteConsumed
	default:
		return InviteActive
	}
}

// Inert reports whether the invite can never grant contact status again.
func (i *Invite) Inert(now time.Time) bool {
	return i.State(now) != InviteActive
}

// RemainingUses returns how many acceptances are left.
func (i *Invite) RemainingUses() int {
	if n := i.MaxUses - i.UsedCount; n > 0 {
		return n
	}
	return 0
}

// InviteOutcome classifies the result of an acceptance attempt.
type InviteOutcome string

const (
	OutcomeAccepted     InviteOutcome = "accepted"
	OutcomeInvalid      InviteOutcome = "invalid"
	OutcomeExpired      InviteOutcome = "expired"
	OutcomeRevoked      InviteOutcome = "revoked"
	OutcomeMaxUses      InviteOutcome = "max_uses"
	OutcomeSelf         InviteOutcome = "self"
	OutcomeUnauthorized InviteOutcome = "unauthorized"
)

// Succeeded reports whether the outcome created or confirmed a contact pair.
func (o InviteOutcome) Succeeded() bool {
	return o == OutcomeAccepted
}

// Message returns a short user-facing explanation.
func (o InviteOutcome) Message() string {
	switch o {
	case OutcomeAccepted:
		return "You are now contacts"
	case OutcomeExpired:
		return "This invite has expired"
	case OutcomeRevoked:
		return "This invite was revoked"
	case OutcomeMaxUses:
		return "This invite has already been used"
	case OutcomeSelf:
		return "You cannot accept your own invite"
	case OutcomeUnauthorized:
		return "Sign in to accept this invite"
	default:
		return "This invite is not valid"
	}
}
