package store_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/watchlogapp/watchlog-server/internal/store"
)

func TestError_Error(t *testing.T) {
	err := &store.Error{
		Code:    http.StatusNotFound,
		Message: "not found",
	}

	assert.Equal(t, "not found", err.Error())
}

func TestError_ErrorWithCause(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := store.ErrConflict.WithCause(cause)

	assert.Contains(t, err.Error(), "collides")
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.ErrorIs(t, err, cause)
}

func TestError_IsMatchesSentinelThroughWrapping(t *testing.T) {
	err := fmt.Errorf("update catalog item: %w", store.ErrConflict.WithCause(errors.New("UNIQUE constraint failed")))

	assert.ErrorIs(t, err, store.ErrConflict)
	assert.NotErrorIs(t, err, store.ErrAlreadyExists)
	assert.NotErrorIs(t, err, store.ErrNotFound)
}

func TestError_HTTPCode(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, store.ErrNotFound.HTTPCode())
	assert.Equal(t, http.StatusConflict, store.ErrAlreadyExists.HTTPCode())
	assert.Equal(t, http.StatusBadRequest, store.ErrInvalidInput.HTTPCode())
}
