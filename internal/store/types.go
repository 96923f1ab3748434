package store

import "time"

// Extremes holds the smallest and largest values present in a collection.
// A nil pair means no row carries the value.
type Extremes struct {
	YearMin, YearMax                     *int
	ExternalRatingMin, ExternalRatingMax *float64
}

// SendResult reports what a recommendation fan-out did per recipient.
type SendResult struct {
	Sent    []string // recipients that received a new recommendation
	Skipped []string // self, non-contacts and duplicates
}

// AcceptResult reports the writes performed by accepting a recommendation.
type AcceptResult struct {
	EntryID      string
	EntryCreated bool
	AcceptedAt   time.Time
}
