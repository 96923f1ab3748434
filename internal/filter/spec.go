// Package filter describes the constraints applied when browsing a collection.
//
// A Spec is a value: copy it, change the copy, and hand the copy to the engine. Every axis that the
// browsing UI models as an "all" switch plus component switches is collapsed here into a single enum,
// so an "all" switch always dominates and the component switches cannot narrow results on their own.
package filter

import (
	"slices"
	"strings"
	"time"

	"github.com/watchlogapp/watchlog-server/internal/domain"
)

// ViewStatus selects entries by their watched/played flag.
type ViewStatus string

const (
	ViewAll     ViewStatus = "all"
	ViewViewed  ViewStatus = "viewed"
	ViewPlanned ViewStatus = "planned"
	// ViewNone is what remains when every view switch is off; it yields an empty result without a query.
	ViewNone ViewStatus = "none"
)

// ViewStatusFromFlags collapses the "all" switch and its two component switches.
func ViewStatusFromFlags(all, viewed, planned bool) ViewStatus {
	switch {
	case all, viewed && planned:
		return ViewAll
	case viewed:
		return ViewViewed
	case planned:
		return ViewPlanned
	default:
		return ViewNone
	}
}

// Valid reports whether v is a known view status.
func (v ViewStatus) Valid() bool {
	switch v {
	case ViewAll, ViewViewed, ViewPlanned, ViewNone:
		return true
	default:
		return false
	}
}

// TriState filters a boolean column: all rows, only true, or only false.
type TriState string

const (
	TriAll       TriState = "all"
	TriOnlyTrue  TriState = "true"
	TriOnlyFalse TriState = "false"
)

// FavoriteFromFlags collapses the favorites "all" switch and the favorites-only toggle.
func FavoriteFromFlags(all, onlyFavorites bool) TriState {
	if all || !onlyFavorites {
		return TriAll
	}
	return TriOnlyTrue
}

// Valid reports whether t is a known tri-state value.
func (t TriState) Valid() bool {
	return t == TriAll || t == TriOnlyTrue || t == TriOnlyFalse
}

// AvailabilitySet is an inclusion set of availability labels, or every label when All is set.
type AvailabilitySet struct {
	All    bool                  `json:"all"`
	Values []domain.Availability `json:"values,omitempty"`
}

// AnyAvailability matches every entry regardless of its label.
func AnyAvailability() AvailabilitySet {
	return AvailabilitySet{All: true}
}

// OnlyAvailability matches entries carrying one of the given labels.
func OnlyAvailability(values ...domain.Availability) AvailabilitySet {
	return AvailabilitySet{Values: values}.normalize()
}

// Empty reports whether the set excludes every entry.
func (a AvailabilitySet) Empty() bool {
	return !a.All && len(a.Values) == 0
}

func (a AvailabilitySet) normalize() AvailabilitySet {
	if a.All {
		return AvailabilitySet{All: true}
	}
	values := slices.Clone(a.Values)
	slices.Sort(values)
	return AvailabilitySet{Values: slices.Compact(values)}
}

// DateRange bounds the viewed-at timestamp. A nil side is open.
type DateRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// Active reports whether either side is bounded.
func (d DateRange) Active() bool {
	return d.From != nil || d.To != nil
}

func (d DateRange) normalize() DateRange {
	var out DateRange
	if d.From != nil {
		from := d.From.UTC()
		out.From = &from
	}
	if d.To != nil {
		to := d.To.UTC()
		out.To = &to
	}
	if out.From != nil && out.To != nil && out.To.Before(*out.From) {
		out.From, out.To = out.To, out.From
	}
	return out
}

// Spec is the full set of browse constraints.
type Spec struct {
	Query          string          `json:"query"`
	View           ViewStatus      `json:"view"`
	Favorite       TriState        `json:"favorite"`
	Availability   AvailabilitySet `json:"availability"`
	Year           Bound[int]      `json:"year"`
	ExternalRating Bound[float64]  `json:"external_rating"`
	Rating         Bound[int]      `json:"rating"`
	Viewed         DateRange       `json:"viewed"`
	Sort           Sort            `json:"sort"`
}

// Domains carries the full numeric domains a fresh Spec spans.
type Domains struct {
	Year           Range[int]
	ExternalRating Range[float64]
}

// Fixed domains that never depend on the data.
var (
	RatingDomain         = Range[int]{From: domain.MinRating, To: domain.MaxRating}
	ExternalRatingDomain = Range[float64]{From: 0, To: 10}
)

// DefaultDomains is used before the live domain of a collection is known.
func DefaultDomains() Domains {
	return Domains{
		Year:           Range[int]{From: 1900, To: time.Now().Year()},
		ExternalRating: ExternalRatingDomain,
	}
}

// Default returns a Spec that matches everything over the given domains.
func Default(d Domains) Spec {
	return Spec{
		View:           ViewAll,
		Favorite:       TriAll,
		Availability:   AnyAvailability(),
		Year:           Full(d.Year),
		ExternalRating: Full(d.ExternalRating),
		Rating:         Full(RatingDomain),
		Sort:           DefaultSort(),
	}
}

// Normalized returns the canonical form of s. Equivalent specs normalize to equal values.
func (s Spec) Normalized() Spec {
	out := s
	out.Query = strings.TrimSpace(s.Query)
	if !out.View.Valid() {
		out.View = ViewAll
	}
	if !out.Favorite.Valid() {
		out.Favorite = TriAll
	}
	out.Availability = s.Availability.normalize()
	out.Year = s.Year.normalize()
	out.ExternalRating = s.ExternalRating.normalize()
	out.Rating = s.Rating.normalize()
	out.Viewed = s.Viewed.normalize()
	out.Sort = s.Sort.normalize()
	return out
}

// Empty reports whether s can only ever produce an empty result, so no query should be issued.
func (s Spec) Empty() bool {
	return s.View == ViewNone || s.Availability.Empty()
}

// WithQuery returns a copy of s with a new text query.
func (s Spec) WithQuery(q string) Spec {
	s.Query = q
	return s
}

// WithSort returns a copy of s with a new ordering.
func (s Spec) WithSort(sort Sort) Spec {
	s.Sort = sort
	return s
}

// WithYear returns a copy of s with a new selected year range.
func (s Spec) WithYear(r Range[int]) Spec {
	s.Year.Selected = r
	return s
}

// WithAvailability returns a copy of s with a new availability set.
func (s Spec) WithAvailability(a AvailabilitySet) Spec {
	s.Availability = AvailabilitySet{All: a.All, Values: slices.Clone(a.Values)}
	return s
}
