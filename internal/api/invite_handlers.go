package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	"github.com/watchlogapp/watchlog-server/internal/service"
)

func (s *Server) registerInviteRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "createInvite",
		Method:        http.MethodPost,
		Path:          "/api/v1/invites",
		Summary:       "Create invite",
		Description:   "Creates a limited-use invite token",
		Tags:          []string{"Invites"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleCreateInvite)

	huma.Register(s.api, huma.Operation{
		OperationID: "listInvites",
		Method:      http.MethodGet,
		Path:        "/api/v1/invites",
		Summary:     "List invites",
		Description: "Lists the caller's active invites. Used up, expired and revoked invites are deleted",
		Tags:        []string{"Invites"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListInvites)

	huma.Register(s.api, huma.Operation{
		OperationID:   "revokeInvite",
		Method:        http.MethodDelete,
		Path:          "/api/v1/invites/{id}",
		Summary:       "Revoke invite",
		Description:   "Disables one of the caller's invites",
		Tags:          []string{"Invites"},
		DefaultStatus: http.StatusNoContent,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleRevokeInvite)

	huma.Register(s.api, huma.Operation{
		OperationID: "acceptInvite",
		Method:      http.MethodPost,
		Path:        "/api/v1/invites/accept",
		Summary:     "Accept invite",
		Description: "Redeems an invite token and reports the outcome",
		Tags:        []string{"Invites"},
		Security:    []map[string][]string{{"bearer": {}}},
		Middlewares: huma.Middlewares{s.rateLimitInviteAccept},
	}, s.handleAcceptInvite)
}

// rateLimitInviteAccept throttles token guessing per user, or per IP for anonymous callers.
func (s *Server) rateLimitInviteAccept(ctx huma.Context, next func(huma.Context)) {
	key := viewerID(ctx.Context())
	if key == "" {
		key = "ip:" + clientIP(ctx)
	}
	if !s.inviteLimiter.Allow(key) {
		s.logger.Warn("invite accept rate limit exceeded", "key", key)
		_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests, "Too many invite attempts. Please try again later.")
		return
	}
	next(ctx)
}

// === DTOs ===

// InviteResponse contains invite data in API responses.
type InviteResponse struct {
	ID            string             `json:"id" doc:"Invite ID"`
	Token         string             `json:"token" doc:"Token to share"`
	MaxUses       int                `json:"max_uses" doc:"Number of acceptances allowed"`
	UsedCount     int                `json:"used_count" doc:"Acceptances so far"`
	RemainingUses int                `json:"remaining_uses" doc:"Acceptances left"`
	State         domain.InviteState `json:"state" doc:"active, consumed, revoked or expired"`
	ExpiresAt     time.Time          `json:"expires_at" doc:"Expiry time"`
	CreatedAt     time.Time          `json:"created_at" doc:"Creation time"`
}

func toInviteResponse(inv *domain.Invite, now time.Time) InviteResponse {
	return InviteResponse{
		ID:            inv.ID,
		Token:         inv.Token,
		MaxUses:       inv.MaxUses,
		UsedCount:     inv.UsedCount,
		RemainingUses: inv.RemainingUses(),
		State:         inv.State(now),
		ExpiresAt:     inv.ExpiresAt,
		CreatedAt:     inv.CreatedAt,
	}
}

// CreateInviteInput wraps the create request for Huma.
type CreateInviteInput struct {
	Authorization string `header:"Authorization"`
	Body          service.CreateInviteRequest
}

// InviteOutput wraps an invite for Huma.
type InviteOutput struct {
	Body InviteResponse
}

// ListInvitesResponse contains the caller's active invites.
type ListInvitesResponse struct {
	Invites []InviteResponse `json:"invites" doc:"Active invites"`
}

// ListInvitesOutput wraps the list for Huma.
type ListInvitesOutput struct {
	Body ListInvitesResponse
}

// InviteIDInput addresses one invite.
type InviteIDInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Invite ID"`
}

// AcceptInviteRequest is the request body for accepting an invite.
type AcceptInviteRequest struct {
	Token string `json:"token" doc:"Invite token"`
}

// AcceptInviteInput wraps the accept request for Huma.
type AcceptInviteInput struct {
	Authorization string `header:"Authorization"`
	Body          AcceptInviteRequest
}

// AcceptInviteResponse reports the outcome of an acceptance attempt.
type AcceptInviteResponse struct {
	Outcome  domain.InviteOutcome `json:"outcome" doc:"accepted, invalid, expired, revoked, max_uses, self or unauthorized"`
	Accepted bool                 `json:"accepted" doc:"Whether the caller and the creator are now contacts"`
	Message  string               `json:"message" doc:"User-facing explanation"`
}

// AcceptInviteOutput wraps the accept response for Huma.
type AcceptInviteOutput struct {
	Body AcceptInviteResponse
}

// === Handlers ===

func (s *Server) handleCreateInvite(ctx context.Context, input *CreateInviteInput) (*InviteOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	invite, err := s.services.Invites.Create(ctx, userID, input.Body)
	if err != nil {
		return nil, err
	}
	return &InviteOutput{Body: toInviteResponse(invite, time.Now())}, nil
}

func (s *Server) handleListInvites(ctx context.Context, _ *AuthenticatedInput) (*ListInvitesOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	invites, err := s.services.Invites.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	resp := ListInvitesResponse{Invites: make([]InviteResponse, 0, len(invites))}
	for _, inv := range invites {
		resp.Invites = append(resp.Invites, toInviteResponse(inv, now))
	}
	return &ListInvitesOutput{Body: resp}, nil
}

func (s *Server) handleRevokeInvite(ctx context.Context, input *InviteIDInput) (*struct{}, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.services.Invites.Revoke(ctx, userID, input.ID); err != nil {
		return nil, err
	}
	return nil, nil
}

// handleAcceptInvite lets anonymous callers through so they learn the unauthorized outcome.
func (s *Server) handleAcceptInvite(ctx context.Context, input *AcceptInviteInput) (*AcceptInviteOutput, error) {
	outcome, err := s.services.Invites.Accept(ctx, viewerID(ctx), input.Body.Token)
	if err != nil {
		return nil, err
	}
	return &AcceptInviteOutput{
		Body: AcceptInviteResponse{
			Outcome:  outcome,
			Accepted: outcome.Succeeded(),
			Message:  outcome.Message(),
		},
	}, nil
}
