// Package metadata is the client of the external title metadata provider.
//
// The provider is unreliable by contract: responses may be slow, empty or partial. Calls are rate limited
// per category and pass through a circuit breaker so a failing provider is not hammered by enrichment.
package metadata

import (
	"strconv"
	"strings"

	"github.com/watchlogapp/watchlog-server/internal/domain"
)

// Candidate is one search hit.
type Candidate struct {
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
	Year       *int   `json:"year,omitempty"`
	Poster     string `json:"poster,omitempty"`
}

// Detail is the descriptive record of one external title. Any field may be empty.
type Detail struct {
	ExternalID  string   `json:"external_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"` // Markdown
	Rating      *float64 `json:"rating,omitempty"`
	Released    string   `json:"released,omitempty"`
	Year        *int     `json:"year,omitempty"`
	Poster      string   `json:"poster,omitempty"`
	Genres      []string `json:"genres,omitempty"`
}

// CatalogItem converts d into the catalog fields it carries. Missing values stay unset so
// CatalogItem.MergeOptional keeps what is already known.
func (d *Detail) CatalogItem(category domain.Category) *domain.CatalogItem {
	return &domain.CatalogItem{
		Category:       category,
		ExternalID:     d.ExternalID,
		Title:          d.Title,
		Description:    d.Description,
		Poster:         d.Poster,
		ExternalRating: d.Rating,
		Year:           d.Year,
		Genres:         strings.Join(d.Genres, ", "),
	}
}

// ParseYear extracts the year from a release date such as "2021-10-22", "2021" or "Oct 2021".
// It returns nil when no plausible year is present.
func ParseYear(released string) *int {
	for field := range strings.FieldsFuncSeq(released, func(r rune) bool { return r < '0' || r > '9' }) {
		if len(field) != 4 {
			continue
		}
		y, err := strconv.Atoi(field)
		if err == nil && y >= 1850 && y <= 2200 {
			return &y
		}
	}
	return nil
}

// Raw provider response types (internal).

type rawSearchResponse struct {
	Results []rawCandidate `json:"results"`
}

type rawCandidate struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Released string `json:"released"`
	Poster   string `json:"poster"`
}

type rawDetail struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Rating      *float64 `json:"rating"`
	Released    string   `json:"released"`
	Poster      string   `json:"poster"`
	Genres      []string `json:"genres"`
}
