package domain

import "time"

// ContactStatus is the state of a contact relation.
type ContactStatus string

const (
	ContactPending  ContactStatus = "pending"
	ContactAccepted ContactStatus = "accepted"
	ContactRevoked  ContactStatus = "revoked"
	ContactBlocked  ContactStatus = "blocked"
)

// Valid reports whether s is a known status.
func (s ContactStatus) Valid() bool {
	switch s {
	case ContactPending, ContactAccepted, ContactRevoked, ContactBlocked:
		return true
	default:
		return false
	}
}

// Contact is one direction of a symmetric relation; an accepted pair is stored as two rows.
type Contact struct {
	UserID    string        `json:"user_id"`
	ContactID string        `json:"contact_id"`
	Status    ContactStatus `json:"status"`
	Nickname  string        `json:"nickname,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// IsAccepted reports whether the contact grants sharing and browsing.
func (c *Contact) IsAccepted() bool {
	return c != nil && c.Status == ContactAccepted
}
