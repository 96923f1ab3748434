package service

import (
	"context"
	"log/slog"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	domainerrors "github.com/watchlogapp/watchlog-server/internal/errors"
	"github.com/watchlogapp/watchlog-server/internal/store"
)

// ContactService manages a user's contacts.
type ContactService struct {
	store  store.Store
	logger *slog.Logger
}

// NewContactService creates a new contact service.
func NewContactService(store store.Store, logger *slog.Logger) *ContactService {
	return &ContactService{
		store:  store,
		logger: logger,
	}
}

// ListContacts returns the user's accepted contacts ordered by nickname.
func (s *ContactService) ListContacts(ctx context.Context, userID string, params store.PaginationParams) (*store.PaginatedResult[*domain.Contact], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, domainerrors.ErrUnauthorized
	}
	params.Validate()

	result, err := s.store.ListContacts(ctx, userID, params)
	if err != nil {
		return nil, storeError(err, "list contacts", "contact not found")
	}
	return result, nil
}

// RemoveContact ends an accepted contact relation in both directions.
func (s *ContactService) RemoveContact(ctx context.Context, userID, otherID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if userID == "" {
		return domainerrors.ErrUnauthorized
	}
	if userID == otherID {
		return domainerrors.Validation("you cannot remove yourself")
	}

	if err := s.store.RemoveContact(ctx, userID, otherID); err != nil {
		return storeError(err, "remove contact", "not a contact")
	}

	s.logger.Info("contact removed", "user_id", userID, "contact_id", otherID)
	return nil
}

// Block stops otherID from reaching userID through invites, recommendations or browsing.
func (s *ContactService) Block(ctx context.Context, userID, otherID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if userID == "" {
		return domainerrors.ErrUnauthorized
	}
	if userID == otherID {
		return domainerrors.Validation("you cannot block yourself")
	}

	if _, err := s.store.GetUser(ctx, otherID); err != nil {
		return storeError(err, "get user", "user not found")
	}
	if err := s.store.BlockContact(ctx, userID, otherID); err != nil {
		return storeError(err, "block contact", "user not found")
	}

	s.logger.Info("contact blocked", "user_id", userID, "contact_id", otherID)
	return nil
}
