package metadata

import (
	"errors"
	"fmt"

	"github.com/watchlogapp/watchlog-server/internal/domain"
)

// Sentinel errors for provider operations.
var (
	ErrNotFound    = errors.New("metadata: not found")
	ErrRateLimited = errors.New("metadata: rate limited by provider")
	ErrBadRequest  = errors.New("metadata: bad request")
	ErrServer      = errors.New("metadata: provider error")
	ErrUnavailable = errors.New("metadata: provider unavailable")
)

// Error wraps an underlying error with operation context.
type Error struct {
	Op         string // "search" or "detail"
	Category   domain.Category
	ExternalID string // If applicable
	Err        error
}

func (e *Error) Error() string {
	if e.ExternalID != "" {
		return fmt.Sprintf("metadata %s [%s/%s]: %v", e.Op, e.Category, e.ExternalID, e.Err)
	}
	return fmt.Sprintf("metadata %s [%s]: %v", e.Op, e.Category, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapError(op string, category domain.Category, externalID string, err error) error {
	return &Error{Op: op, Category: category, ExternalID: externalID, Err: err}
}
