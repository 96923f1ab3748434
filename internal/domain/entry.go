package domain

import "time"

// Rating bounds for a personal rating.
const (
	MinRating = 1
	MaxRating = 10
)

// CollectionEntry is one owner's record of a catalog item, watched/played or planned.
type CollectionEntry struct {
	Syncable
	OwnerID          string       `json:"owner_id"`
	ItemID           string       `json:"item_id"`
	ViewedAt         *time.Time   `json:"viewed_at,omitempty"`
	Rating           *int         `json:"rating,omitempty"`
	Comment          string       `json:"comment,omitempty"`
	IsViewed         bool         `json:"is_viewed"`
	Progress         int          `json:"progress"`
	RecommendSimilar bool         `json:"recommend_similar"`
	Availability     Availability `json:"availability,omitempty"`
	Platforms        []Platform   `json:"platforms,omitempty"`

	// Item is populated by reads that join the catalog.
	Item *CatalogItem `json:"item,omitempty"`
}

// IsPlanned reports whether the entry is on the owner's plan list.
func (e *CollectionEntry) IsPlanned() bool {
	return !e.IsViewed
}
