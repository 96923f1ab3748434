package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	domainerrors "github.com/watchlogapp/watchlog-server/internal/errors"
	"github.com/watchlogapp/watchlog-server/internal/id"
	"github.com/watchlogapp/watchlog-server/internal/metrics"
	"github.com/watchlogapp/watchlog-server/internal/store"
	"github.com/watchlogapp/watchlog-server/internal/validation"
)

const (
	defaultInviteMaxUses = 1
	defaultInviteTTL     = 7 * 24 * time.Hour
)

// InviteSettings are the defaults applied to new invites.
type InviteSettings struct {
	DefaultMaxUses int
	DefaultTTL     time.Duration
}

// InviteService creates, lists and accepts contact invites.
type InviteService struct {
	store     store.Store
	validator *validation.Validator
	settings  InviteSettings
	logger    *slog.Logger
}

// NewInviteService creates a new invite service.
func NewInviteService(store store.Store, validator *validation.Validator, settings InviteSettings, logger *slog.Logger) *InviteService {
	if settings.DefaultMaxUses <= 0 {
		settings.DefaultMaxUses = defaultInviteMaxUses
	}
	if settings.DefaultTTL <= 0 {
		settings.DefaultTTL = defaultInviteTTL
	}
	return &InviteService{
		store:     store,
		validator: validator,
		settings:  settings,
		logger:    logger,
	}
}

// CreateInviteRequest customizes a new invite. Zero values use the configured defaults.
type CreateInviteRequest struct {
	MaxUses        int `json:"max_uses,omitempty" validate:"omitempty,gte=1,lte=100"`
	ExpiresInHours int `json:"expires_in_hours,omitempty" validate:"omitempty,gte=1,lte=8760"`
}

// Create issues a new invite token owned by creatorID.
func (s *InviteService) Create(ctx context.Context, creatorID string, req CreateInviteRequest) (*domain.Invite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if creatorID == "" {
		return nil, domainerrors.ErrUnauthorized
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	inviteID, err := id.Generate("invite")
	if err != nil {
		return nil, fmt.Errorf("generate invite ID: %w", err)
	}
	token, err := id.Token()
	if err != nil {
		return nil, fmt.Errorf("generate invite token: %w", err)
	}

	maxUses := s.settings.DefaultMaxUses
	if req.MaxUses > 0 {
		maxUses = req.MaxUses
	}
	ttl := s.settings.DefaultTTL
	if req.ExpiresInHours > 0 {
		ttl = time.Duration(req.ExpiresInHours) * time.Hour
	}

	now := time.Now().UTC()
	invite := &domain.Invite{
		ID:        inviteID,
		CreatorID: creatorID,
		Token:     token,
		MaxUses:   maxUses,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.store.CreateInvite(ctx, invite); err != nil {
		return nil, fmt.Errorf("create invite: %w", err)
	}

	s.logger.Info("invite created",
		"invite_id", invite.ID,
		"creator_id", creatorID,
		"max_uses", maxUses,
		"expires_at", invite.ExpiresAt,
	)
	return invite, nil
}

// List returns the creator's active invites. Inert invites found along the way are deleted.
func (s *InviteService) List(ctx context.Context, creatorID string) ([]*domain.Invite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if creatorID == "" {
		return nil, domainerrors.ErrUnauthorized
	}

	invites, err := s.store.ListInvites(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}

	now := time.Now()
	active := make([]*domain.Invite, 0, len(invites))
	var inert []string
	for _, inv := range invites {
		if inv.Inert(now) {
			inert = append(inert, inv.ID)
			continue
		}
		active = append(active, inv)
	}

	if len(inert) > 0 {
		n, err := s.store.DeleteInvites(ctx, inert)
		if err != nil {
			// The listing stays correct without the cleanup; the next load tries again.
			s.logger.Warn("failed to delete inert invites", "creator_id", creatorID, "count", len(inert), "error", err)
		} else {
			s.logger.Debug("deleted inert invites", "creator_id", creatorID, "count", n)
		}
	}

	return active, nil
}

// Revoke disables one of the creator's invites.
func (s *InviteService) Revoke(ctx context.Context, creatorID, inviteID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if creatorID == "" {
		return domainerrors.ErrUnauthorized
	}

	invite, err := s.store.GetInvite(ctx, inviteID)
	if err != nil {
		return storeError(err, "get invite", "invite not found")
	}
	if invite.CreatorID != creatorID {
		return domainerrors.NotFound("invite not found")
	}
	if invite.RevokedAt != nil {
		return domainerrors.Conflict("invite is already revoked")
	}

	if err := s.store.RevokeInvite(ctx, inviteID, time.Now()); err != nil {
		return storeError(err, "revoke invite", "invite not found")
	}

	s.logger.Info("invite revoked", "invite_id", inviteID, "creator_id", creatorID)
	return nil
}

// Accept redeems token for userID. Every failure that is the caller's to fix is reported as an
// outcome rather than an error; errors are reserved for store failures.
func (s *InviteService) Accept(ctx context.Context, userID, token string) (domain.InviteOutcome, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	outcome, err := s.accept(ctx, userID, strings.TrimSpace(token))
	if err != nil {
		return "", err
	}

	metrics.InviteOutcomesTotal.WithLabelValues(string(outcome)).Inc()
	s.logger.Info("invite acceptance", "user_id", userID, "outcome", outcome)
	return outcome, nil
}

func (s *InviteService) accept(ctx context.Context, userID, token string) (domain.InviteOutcome, error) {
	switch {
	case userID == "":
		return domain.OutcomeUnauthorized, nil
	case token == "":
		return domain.OutcomeInvalid, nil
	}

	outcome, err := s.store.AcceptInvite(ctx, token, userID, time.Now())
	if err != nil {
		return "", fmt.Errorf("accept invite: %w", err)
	}
	return outcome, nil
}
