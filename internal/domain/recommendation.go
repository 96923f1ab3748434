package domain

import (
	"errors"
	"fmt"
	"time"
)

// RecommendationStatus is the lifecycle state of a recommendation.
type RecommendationStatus string

const (
	RecommendationPending   RecommendationStatus = "pending"
	RecommendationSaved     RecommendationStatus = "saved"
	RecommendationAccepted  RecommendationStatus = "accepted"
	RecommendationDismissed RecommendationStatus = "dismissed"
)

// ErrIllegalTransition is returned for a status change the lifecycle does not allow.
var ErrIllegalTransition = errors.New("illegal status transition")

// ErrNotRecipient is returned when anyone but the recipient tries to change a recommendation.
var ErrNotRecipient = errors.New("only the recipient can resolve a recommendation")

// recommendationTransitions lists the allowed targets per state.
var recommendationTransitions = map[RecommendationStatus][]RecommendationStatus{
	RecommendationPending: {RecommendationSaved, RecommendationAccepted, RecommendationDismissed},
	RecommendationSaved:   {RecommendationAccepted, RecommendationDismissed},
}

// Valid reports whether s is a known status.
func (s RecommendationStatus) Valid() bool {
	switch s {
	case RecommendationPending, RecommendationSaved, RecommendationAccepted, RecommendationDismissed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are possible.
func (s RecommendationStatus) Terminal() bool {
	return s == RecommendationAccepted || s == RecommendationDismissed
}

// CanTransition reports whether s may move to next.
func (s RecommendationStatus) CanTransition(next RecommendationStatus) bool {
	for _, allowed := range recommendationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Recommendation is an item one user shared with another.
type Recommendation struct {
	ID         string               `json:"id"`
	FromUserID string               `json:"from_user_id"`
	ToUserID   string               `json:"to_user_id"`
	ItemID     string               `json:"item_id"`
	Comment    string               `json:"comment,omitempty"`
	Status     RecommendationStatus `json:"status"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`

	// Item is populated by reads that join the catalog.
	Item *CatalogItem `json:"item,omitempty"`
}

// Transition validates and applies a status change requested by actorID.
// The receiver is left unchanged when an error is returned.
func (r *Recommendation) Transition(actorID string, next RecommendationStatus) error {
	if actorID != r.ToUserID {
		return ErrNotRecipient
	}
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, r.Status, next)
	}
	r.Status = next
	r.UpdatedAt = time.Now().UTC()
	return nil
}
