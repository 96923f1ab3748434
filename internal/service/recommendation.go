package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	domainerrors "github.com/watchlogapp/watchlog-server/internal/errors"
	"github.com/watchlogapp/watchlog-server/internal/id"
	"github.com/watchlogapp/watchlog-server/internal/metrics"
	"github.com/watchlogapp/watchlog-server/internal/store"
	"github.com/watchlogapp/watchlog-server/internal/validation"
)

// RecommendationService sends recommendations and lets recipients resolve them.
type RecommendationService struct {
	store     store.Store
	validator *validation.Validator
	logger    *slog.Logger
}

// NewRecommendationService creates a new recommendation service.
func NewRecommendationService(store store.Store, validator *validation.Validator, logger *slog.Logger) *RecommendationService {
	return &RecommendationService{
		store:     store,
		validator: validator,
		logger:    logger,
	}
}

// SendRecommendationRequest shares one catalog item with several contacts.
type SendRecommendationRequest struct {
	ToUserIDs []string `json:"to_user_ids" validate:"required,min=1,max=50,dive,required"`
	ItemID    string   `json:"item_id" validate:"required"`
	Comment   string   `json:"comment,omitempty" validate:"max=1000"`
}

// SendResult reports how many recommendations were created.
type SendResult struct {
	SentCount int      `json:"sent_count"`
	Sent      []string `json:"sent"`
	Skipped   []string `json:"skipped"`
}

// Send creates a pending recommendation for every eligible recipient. The sender, non-contacts and
// recipients who already got this item from the sender are skipped.
func (s *RecommendationService) Send(ctx context.Context, fromID string, req SendRecommendationRequest) (*SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fromID == "" {
		return nil, domainerrors.ErrUnauthorized
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	res, err := s.store.SendRecommendations(ctx, fromID, req.ToUserIDs, req.ItemID, req.Comment)
	if err != nil {
		return nil, storeError(err, "send recommendations", "item not found")
	}

	metrics.RecommendationsSentTotal.Add(float64(len(res.Sent)))
	s.logger.Info("recommendations sent",
		"from_user_id", fromID,
		"item_id", req.ItemID,
		"sent", len(res.Sent),
		"skipped", len(res.Skipped),
	)

	return &SendResult{
		SentCount: len(res.Sent),
		Sent:      nonNil(res.Sent),
		Skipped:   nonNil(res.Skipped),
	}, nil
}

// Inbox lists the pending and saved recommendations of a recipient, newest first.
func (s *RecommendationService) Inbox(ctx context.Context, userID string, params store.PaginationParams) (*store.PaginatedResult[*domain.Recommendation], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, domainerrors.ErrUnauthorized
	}
	params.Validate()

	result, err := s.store.ListInbox(ctx, userID, params)
	if err != nil {
		return nil, storeError(err, "list inbox", "recommendation not found")
	}
	return result, nil
}

// Sent lists what a user has recommended, newest first.
func (s *RecommendationService) Sent(ctx context.Context, userID string, params store.PaginationParams) (*store.PaginatedResult[*domain.Recommendation], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, domainerrors.ErrUnauthorized
	}
	params.Validate()

	result, err := s.store.ListSent(ctx, userID, params)
	if err != nil {
		return nil, storeError(err, "list sent", "recommendation not found")
	}
	return result, nil
}

// ResolveResult is the outcome of a status change.
type ResolveResult struct {
	Recommendation *domain.Recommendation `json:"recommendation"`
	// EntryID is set when the recommendation was accepted.
	EntryID      string `json:"entry_id,omitempty"`
	EntryCreated bool   `json:"entry_created"`
}

// Resolve moves a recommendation to status on behalf of its recipient.
//
// Accepting adds the item to the recipient's collection as planned unless it is already there, and
// marks the recommendation accepted in the same transaction.
func (s *RecommendationService) Resolve(ctx context.Context, actorID, recID string, status domain.RecommendationStatus) (*ResolveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if actorID == "" {
		return nil, domainerrors.ErrUnauthorized
	}
	if !status.Valid() {
		return nil, domainerrors.Validationf("unknown status %q", status)
	}

	rec, err := s.store.GetRecommendation(ctx, recID)
	if err != nil {
		return nil, storeError(err, "get recommendation", "recommendation not found")
	}
	if actorID != rec.ToUserID && actorID != rec.FromUserID {
		return nil, domainerrors.NotFound("recommendation not found")
	}

	from := rec.Status
	if err := rec.Transition(actorID, status); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotRecipient):
			return nil, domainerrors.Forbidden("only the recipient can resolve a recommendation")
		case errors.Is(err, domain.ErrIllegalTransition):
			return nil, domainerrors.Conflictf("cannot move a %s recommendation to %s", from, status)
		default:
			return nil, err
		}
	}

	result := &ResolveResult{Recommendation: rec}
	if status == domain.RecommendationAccepted {
		entry, err := s.plannedEntry(actorID, rec.ItemID)
		if err != nil {
			return nil, err
		}
		accepted, err := s.store.AcceptRecommendation(ctx, rec, from, entry)
		if err != nil {
			return nil, s.resolveError(err)
		}
		result.EntryID = accepted.EntryID
		result.EntryCreated = accepted.EntryCreated
	} else if err := s.store.UpdateRecommendationStatus(ctx, rec, from); err != nil {
		return nil, s.resolveError(err)
	}

	s.logger.Info("recommendation resolved",
		"recommendation_id", rec.ID,
		"from", from,
		"to", status,
		"entry_created", result.EntryCreated,
	)
	return result, nil
}

func (s *RecommendationService) resolveError(err error) error {
	if errors.Is(err, store.ErrConflict) {
		return domainerrors.Conflict("recommendation was changed by another request")
	}
	return fmt.Errorf("resolve recommendation: %w", err)
}

func (s *RecommendationService) plannedEntry(ownerID, itemID string) (*domain.CollectionEntry, error) {
	entryID, err := id.Generate("entry")
	if err != nil {
		return nil, fmt.Errorf("generate entry ID: %w", err)
	}
	entry := &domain.CollectionEntry{
		Syncable: domain.Syncable{ID: entryID},
		OwnerID:  ownerID,
		ItemID:   itemID,
	}
	entry.InitTimestamps()
	return entry, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clip(s)
}
