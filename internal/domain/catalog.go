package domain

// CatalogItem is the deduplicated record for one external title.
// At most one exists per (Category, ExternalID).
type CatalogItem struct {
	Syncable
	Category       Category `json:"category"`
	ExternalID     string   `json:"external_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Poster         string   `json:"poster,omitempty"`
	ExternalRating *float64 `json:"external_rating,omitempty"`
	Year           *int     `json:"year,omitempty"`
	Genres         string   `json:"genres,omitempty"`
}

// HasYear reports whether the release year is known.
func (c *CatalogItem) HasYear() bool {
	return c.Year != nil && *c.Year > 0
}

// MergeOptional copies the non-empty optional fields of other onto c.
// Title and identity are left untouched so a sparse update never blanks known values.
func (c *CatalogItem) MergeOptional(other *CatalogItem) {
	if other.Description != "" {
		c.Description = other.Description
	}
	if other.Poster != "" {
		c.Poster = other.Poster
	}
	if other.ExternalRating != nil {
		c.ExternalRating = other.ExternalRating
	}
	if other.HasYear() {
		c.Year = other.Year
	}
	if other.Genres != "" {
		c.Genres = other.Genres
	}
}
