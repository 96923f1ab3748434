package validation_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/watchlogapp/watchlog-server/internal/errors"
	"github.com/watchlogapp/watchlog-server/internal/validation"
)

type testRequest struct {
	Nickname     string   `json:"nickname" validate:"required,nickname"`
	Category     string   `json:"category" validate:"required,category"`
	Availability string   `json:"availability,omitempty" validate:"omitempty,availability"`
	Rating       *int     `json:"rating,omitempty" validate:"omitempty,gte=1,lte=10"`
	Comment      string   `json:"comment" validate:"max=10"`
	Recipients   []string `json:"recipients" validate:"required,min=1,dive,required"`
}

func validRequest() testRequest {
	return testRequest{
		Nickname:   "film_buff",
		Category:   "film",
		Recipients: []string{"user-1"},
	}
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()
	assert.NoError(t, v.Validate(validRequest()))
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()
	eleven := 11

	tests := []struct {
		name      string
		mutate    func(r *testRequest)
		wantField string
		wantMsg   string
	}{
		{"bad nickname", func(r *testRequest) { r.Nickname = "No Spaces" }, "nickname", "lowercase"},
		{"short nickname", func(r *testRequest) { r.Nickname = "ab" }, "nickname", "3-32"},
		{"unknown category", func(r *testRequest) { r.Category = "book" }, "category", "film or game"},
		{"unknown availability", func(r *testRequest) { r.Availability = "borrowed" }, "availability", "owned"},
		{"rating out of range", func(r *testRequest) { r.Rating = &eleven }, "rating", "less than or equal to 10"},
		{"comment too long", func(r *testRequest) { r.Comment = "far too long a comment" }, "comment", "10 characters"},
		{"no recipients", func(r *testRequest) { r.Recipients = nil }, "recipients", "is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			err := v.Validate(req)
			require.Error(t, err)

			var domainErr *domainerrors.Error
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, http.StatusBadRequest, domainErr.HTTPStatus())

			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Contains(t, details[tt.wantField], tt.wantMsg)
		})
	}
}
