package service

import (
	"errors"
	"fmt"

	domainerrors "github.com/watchlogapp/watchlog-server/internal/errors"
	"github.com/watchlogapp/watchlog-server/internal/store"
)

// storeError translates a storage error into a domain error for the user-facing classes
// and wraps everything else with op.
func storeError(err error, op, notFound string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return domainerrors.NotFound(notFound)
	case errors.Is(err, store.ErrAlreadyExists):
		return domainerrors.AlreadyExists(notFound).WithCause(err)
	case errors.Is(err, store.ErrConflict):
		return domainerrors.ErrConflict.WithCause(err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
