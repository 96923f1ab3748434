// Package domain holds the entities shared by the store, the services and the browse engine.
package domain

import "time"

// Syncable carries the identity and timestamps every persisted entity has.
type Syncable struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ID        string    `json:"id"`
}

// Touch updates the UpdatedAt timestamp to the current time.
func (s *Syncable) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// InitTimestamps sets both CreatedAt and UpdatedAt to now.
func (s *Syncable) InitTimestamps() {
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
}
