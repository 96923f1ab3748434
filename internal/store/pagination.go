package store

import (
	"encoding/base64"
	"fmt"
	"strconv"
)

// Limits for list endpoints (recommendations, contacts, invites).
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// PaginationParams contains pagination request parameters for list endpoints.
type PaginationParams struct {
	Limit  int    // The number of items per page (defaults to 50 with a maximum of 200)
	Cursor string // Opaque cursor for next page (empty for first page)
}

// PaginatedResult contains paginated data and metadata.
type PaginatedResult[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"` // Empty if no more pages
	HasMore    bool   `json:"has_more"`
}

// DefaultPaginationParams returns sensible defaults.
func DefaultPaginationParams() PaginationParams {
	return PaginationParams{Limit: DefaultListLimit}
}

// Validate checks and corrects pagination parameters.
func (p *PaginationParams) Validate() {
	if p.Limit <= 0 {
		p.Limit = DefaultListLimit
	}
	if p.Limit > MaxListLimit {
		p.Limit = MaxListLimit
	}
}

// Offset returns the row offset encoded in the cursor.
func (p PaginationParams) Offset() (int, error) {
	return DecodeCursor(p.Cursor)
}

// NewPaginatedResult builds a result from rows fetched with a limit of p.Limit+1.
// The extra row only signals that another page exists.
func NewPaginatedResult[T any](rows []T, p PaginationParams, offset int) *PaginatedResult[T] {
	res := &PaginatedResult[T]{Items: rows}
	if res.Items == nil {
		res.Items = []T{}
	}
	if len(rows) > p.Limit {
		res.Items = rows[:p.Limit]
		res.HasMore = true
		res.NextCursor = EncodeCursor(offset + p.Limit)
	}
	return res
}

// EncodeCursor creates an opaque cursor from a row offset.
func EncodeCursor(offset int) string {
	if offset <= 0 {
		return ""
	}
	return base64.URLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

// DecodeCursor decodes a cursor back to a row offset.
func DecodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor: %w", err)
	}
	offset, err := strconv.Atoi(string(decoded))
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("invalid cursor %q", cursor)
	}
	return offset, nil
}
