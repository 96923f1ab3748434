package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	"github.com/watchlogapp/watchlog-server/internal/service"
)

func (s *Server) registerEntryRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "addEntry",
		Method:        http.MethodPost,
		Path:          "/api/v1/entries",
		Summary:       "Add entry",
		Description:   "Adds a title to the caller's collection, creating or updating its catalog item",
		Tags:          []string{"Entries"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleAddEntry)

	huma.Register(s.api, huma.Operation{
		OperationID: "getEntry",
		Method:      http.MethodGet,
		Path:        "/api/v1/entries/{id}",
		Summary:     "Get entry",
		Description: "Returns one of the caller's entries with its catalog item",
		Tags:        []string{"Entries"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetEntry)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateEntry",
		Method:      http.MethodPatch,
		Path:        "/api/v1/entries/{id}",
		Summary:     "Update entry",
		Description: "Changes the editable fields of an entry (owner only)",
		Tags:        []string{"Entries"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateEntry)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteEntry",
		Method:        http.MethodDelete,
		Path:          "/api/v1/entries/{id}",
		Summary:       "Delete entry",
		Description:   "Removes an entry from the caller's collection (owner only)",
		Tags:          []string{"Entries"},
		DefaultStatus: http.StatusNoContent,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteEntry)
}

// === DTOs ===

// AddEntryRequest is the request body for adding a title.
type AddEntryRequest struct {
	Category       domain.Category `json:"category" enum:"film,game" doc:"Item category"`
	ExternalID     string          `json:"external_id,omitempty" doc:"Metadata provider identifier"`
	Title          string          `json:"title" doc:"Title"`
	Description    string          `json:"description,omitempty" doc:"Description"`
	Poster         string          `json:"poster,omitempty" doc:"Poster URL"`
	ExternalRating *float64        `json:"external_rating,omitempty" doc:"Provider rating, 0 to 10"`
	Year           *int            `json:"year,omitempty" doc:"Release year"`
	Genres         string          `json:"genres,omitempty" doc:"Genre text"`

	IsViewed         bool                `json:"is_viewed,omitempty" doc:"Watched or played; false puts the title on the plan list"`
	ViewedAt         *time.Time          `json:"viewed_at,omitempty" doc:"When it was watched; defaults to now for viewed entries"`
	Rating           *int                `json:"rating,omitempty" doc:"Personal rating, 1 to 10"`
	Comment          string              `json:"comment,omitempty" doc:"Free-text comment"`
	Progress         int                 `json:"progress,omitempty" doc:"Completion percentage"`
	RecommendSimilar bool                `json:"recommend_similar,omitempty" doc:"Favorite flag"`
	Availability     domain.Availability `json:"availability,omitempty" doc:"Availability label"`
	Platforms        []domain.Platform   `json:"platforms,omitempty" doc:"Platform tags valid for the category"`
}

func (r AddEntryRequest) toService() service.AddItemRequest {
	return service.AddItemRequest{
		Category:       r.Category,
		ExternalID:     r.ExternalID,
		Title:          r.Title,
		Description:    r.Description,
		Poster:         r.Poster,
		ExternalRating: r.ExternalRating,
		Year:           r.Year,
		Genres:         r.Genres,
		EntryFields: service.EntryFields{
			IsViewed:         r.IsViewed,
			ViewedAt:         r.ViewedAt,
			Rating:           r.Rating,
			Comment:          r.Comment,
			Progress:         r.Progress,
			RecommendSimilar: r.RecommendSimilar,
			Availability:     r.Availability,
			Platforms:        r.Platforms,
		},
	}
}

// AddEntryInput wraps the add request for Huma.
type AddEntryInput struct {
	Authorization string `header:"Authorization"`
	Body          AddEntryRequest
}

// EntryIDInput addresses one entry.
type EntryIDInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Entry ID"`
}

// UpdateEntryInput wraps the update request for Huma.
type UpdateEntryInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Entry ID"`
	Body          service.UpdateEntryRequest
}

// EntryOutput wraps an entry for Huma.
type EntryOutput struct {
	Body *domain.CollectionEntry
}

// === Handlers ===

func (s *Server) handleAddEntry(ctx context.Context, input *AddEntryInput) (*EntryOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	entry, err := s.services.Collection.AddItem(ctx, userID, input.Body.toService())
	if err != nil {
		return nil, err
	}
	s.collectionChanged(userID)
	return &EntryOutput{Body: entry}, nil
}

func (s *Server) handleGetEntry(ctx context.Context, input *EntryIDInput) (*EntryOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	entry, err := s.services.Collection.GetEntry(ctx, userID, input.ID)
	if err != nil {
		return nil, err
	}
	return &EntryOutput{Body: entry}, nil
}

func (s *Server) handleUpdateEntry(ctx context.Context, input *UpdateEntryInput) (*EntryOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	entry, err := s.services.Collection.UpdateEntry(ctx, userID, input.ID, input.Body)
	if err != nil {
		return nil, err
	}
	s.collectionChanged(userID)
	return &EntryOutput{Body: entry}, nil
}

func (s *Server) handleDeleteEntry(ctx context.Context, input *EntryIDInput) (*struct{}, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.services.Collection.DeleteEntry(ctx, userID, input.ID); err != nil {
		return nil, err
	}
	s.collectionChanged(userID)
	return nil, nil
}

// collectionChanged makes open browse sessions on the owner's collections reconcile their bounds.
func (s *Server) collectionChanged(ownerID string) {
	if s.sessions != nil {
		s.sessions.MarkOwnerChanged(ownerID)
	}
}
