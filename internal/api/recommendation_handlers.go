package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	"github.com/watchlogapp/watchlog-server/internal/service"
	"github.com/watchlogapp/watchlog-server/internal/store"
)

func (s *Server) registerRecommendationRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "sendRecommendation",
		Method:      http.MethodPost,
		Path:        "/api/v1/recommendations",
		Summary:     "Send recommendation",
		Description: "Recommends an item to accepted contacts. Self, non-contacts and duplicates are skipped",
		Tags:        []string{"Recommendations"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSendRecommendation)

	huma.Register(s.api, huma.Operation{
		OperationID: "listRecommendationInbox",
		Method:      http.MethodGet,
		Path:        "/api/v1/recommendations/inbox",
		Summary:     "Recommendation inbox",
		Description: "Lists pending and saved recommendations received, newest first",
		Tags:        []string{"Recommendations"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListInbox)

	huma.Register(s.api, huma.Operation{
		OperationID: "listSentRecommendations",
		Method:      http.MethodGet,
		Path:        "/api/v1/recommendations/sent",
		Summary:     "Sent recommendations",
		Description: "Lists recommendations sent by the caller, newest first",
		Tags:        []string{"Recommendations"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListSent)

	huma.Register(s.api, huma.Operation{
		OperationID: "resolveRecommendation",
		Method:      http.MethodPost,
		Path:        "/api/v1/recommendations/{id}/resolve",
		Summary:     "Resolve recommendation",
		Description: "Saves, accepts or dismisses a received recommendation. Accepting adds the item to the caller's plan list",
		Tags:        []string{"Recommendations"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleResolveRecommendation)
}

// === DTOs ===

// SendRecommendationInput wraps the send request for Huma.
type SendRecommendationInput struct {
	Authorization string `header:"Authorization"`
	Body          service.SendRecommendationRequest
}

// SendRecommendationOutput wraps the send result for Huma.
type SendRecommendationOutput struct {
	Body *service.SendResult
}

// ListInput carries cursor pagination parameters.
type ListInput struct {
	Authorization string `header:"Authorization"`
	Limit         int    `query:"limit" default:"50" minimum:"1" maximum:"200" doc:"Page size"`
	Cursor        string `query:"cursor" doc:"Cursor from a previous page"`
}

func (in ListInput) params() store.PaginationParams {
	return store.PaginationParams{Limit: in.Limit, Cursor: in.Cursor}
}

// RecommendationListOutput wraps a page of recommendations for Huma.
type RecommendationListOutput struct {
	Body *store.PaginatedResult[*domain.Recommendation]
}

// ResolveRecommendationRequest is the request body for a state change.
type ResolveRecommendationRequest struct {
	Status domain.RecommendationStatus `json:"status" enum:"saved,accepted,dismissed" doc:"Target status"`
}

// ResolveRecommendationInput wraps the resolve request for Huma.
type ResolveRecommendationInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Recommendation ID"`
	Body          ResolveRecommendationRequest
}

// ResolveRecommendationOutput wraps the resolve result for Huma.
type ResolveRecommendationOutput struct {
	Body *service.ResolveResult
}

// === Handlers ===

func (s *Server) handleSendRecommendation(ctx context.Context, input *SendRecommendationInput) (*SendRecommendationOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.services.Recommendations.Send(ctx, userID, input.Body)
	if err != nil {
		return nil, err
	}
	return &SendRecommendationOutput{Body: result}, nil
}

func (s *Server) handleListInbox(ctx context.Context, input *ListInput) (*RecommendationListOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	page, err := s.services.Recommendations.Inbox(ctx, userID, input.params())
	if err != nil {
		return nil, err
	}
	return &RecommendationListOutput{Body: page}, nil
}

func (s *Server) handleListSent(ctx context.Context, input *ListInput) (*RecommendationListOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	page, err := s.services.Recommendations.Sent(ctx, userID, input.params())
	if err != nil {
		return nil, err
	}
	return &RecommendationListOutput{Body: page}, nil
}

func (s *Server) handleResolveRecommendation(ctx context.Context, input *ResolveRecommendationInput) (*ResolveRecommendationOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.services.Recommendations.Resolve(ctx, userID, input.ID, input.Body.Status)
	if err != nil {
		return nil, err
	}
	if result.EntryCreated {
		s.collectionChanged(userID)
	}
	return &ResolveRecommendationOutput{Body: result}, nil
}
