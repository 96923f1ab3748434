package filter

import (
	"time"

	"github.com/watchlogapp/watchlog-server/internal/domain"
)

// Form mirrors the switches and sliders of the browse panel as the client stores them.
// ToSpec is the only way a Form enters the engine.
type Form struct {
	Query string `json:"query" doc:"Substring matched against title and description"`

	ViewAll bool `json:"view_all"`
	Viewed  bool `json:"viewed"`
	Planned bool `json:"planned"`

	FavoriteAll   bool `json:"favorite_all"`
	FavoritesOnly bool `json:"favorites_only"`

	AvailabilityAll bool                  `json:"availability_all"`
	Availability    []domain.Availability `json:"availability,omitempty"`

	Year           *Range[int]     `json:"year,omitempty"`
	ExternalRating *Range[float64] `json:"external_rating,omitempty"`
	Rating         *Range[int]     `json:"rating,omitempty"`

	ViewedFrom *time.Time `json:"viewed_from,omitempty"`
	ViewedTo   *time.Time `json:"viewed_to,omitempty"`

	SortKey       SortKey   `json:"sort_key,omitempty"`
	SortDirection Direction `json:"sort_direction,omitempty"`
}

// ToSpec collapses the form into a Spec over the given domains. Missing ranges select the full domain.
func (f Form) ToSpec(d Domains) Spec {
	s := Default(d)
	s.Query = f.Query
	s.View = ViewStatusFromFlags(f.ViewAll, f.Viewed, f.Planned)
	s.Favorite = FavoriteFromFlags(f.FavoriteAll, f.FavoritesOnly)
	if f.AvailabilityAll {
		s.Availability = AnyAvailability()
	} else {
		s.Availability = OnlyAvailability(f.Availability...)
	}
	if f.Year != nil {
		s.Year.Selected = *f.Year
	}
	if f.ExternalRating != nil {
		s.ExternalRating.Selected = *f.ExternalRating
	}
	if f.Rating != nil {
		s.Rating.Selected = *f.Rating
	}
	s.Viewed = DateRange{From: f.ViewedFrom, To: f.ViewedTo}
	if f.SortKey != "" {
		s.Sort = Sort{Key: f.SortKey, Direction: f.SortDirection}
	}
	return s.Normalized()
}
