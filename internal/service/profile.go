package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	domainerrors "github.com/watchlogapp/watchlog-server/internal/errors"
	"github.com/watchlogapp/watchlog-server/internal/id"
	"github.com/watchlogapp/watchlog-server/internal/store"
	"github.com/watchlogapp/watchlog-server/internal/validation"
)

// ProfileService manages accounts and the public side of a profile.
type ProfileService struct {
	store     store.Store
	validator *validation.Validator
	logger    *slog.Logger
}

// NewProfileService creates a new profile service.
func NewProfileService(store store.Store, validator *validation.Validator, logger *slog.Logger) *ProfileService {
	return &ProfileService{
		store:     store,
		validator: validator,
		logger:    logger,
	}
}

type nicknameRequest struct {
	Nickname string `json:"nickname" validate:"required,nickname"`
}

// Register creates an account. Libraries start hidden from contacts.
func (s *ProfileService) Register(ctx context.Context, nickname string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nickname = strings.TrimSpace(nickname)
	if err := s.validator.Validate(nicknameRequest{Nickname: nickname}); err != nil {
		return nil, err
	}

	userID, err := id.Generate("user")
	if err != nil {
		return nil, fmt.Errorf("generate user ID: %w", err)
	}
	user := &domain.User{
		Syncable: domain.Syncable{ID: userID},
		Nickname: nickname,
	}
	user.InitTimestamps()

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, domainerrors.AlreadyExists("nickname is taken")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered", "user_id", user.ID, "nickname", nickname)
	return user, nil
}

// GetUser returns a user by ID.
func (s *ProfileService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, storeError(err, "get user", "user not found")
	}
	return user, nil
}

// FindByNickname resolves a nickname to a user.
func (s *ProfileService) FindByNickname(ctx context.Context, nickname string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByNickname(ctx, strings.TrimSpace(nickname))
	if err != nil {
		return nil, storeError(err, "get user by nickname", "user not found")
	}
	return user, nil
}

// SetNickname changes a user's nickname. The pattern is checked before any store access.
func (s *ProfileService) SetNickname(ctx context.Context, userID, nickname string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nickname = strings.TrimSpace(nickname)
	if err := s.validator.Validate(nicknameRequest{Nickname: nickname}); err != nil {
		return nil, err
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Nickname == nickname {
		return user, nil
	}

	user.Nickname = nickname
	user.Touch()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, domainerrors.AlreadyExists("nickname is taken")
		}
		return nil, storeError(err, "update user", "user not found")
	}

	s.logger.Info("nickname changed", "user_id", userID, "nickname", nickname)
	return user, nil
}

// SetLibraryVisibility opens or closes a user's collection to accepted contacts.
func (s *ProfileService) SetLibraryVisibility(ctx context.Context, userID string, visible bool) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.LibraryVisible == visible {
		return user, nil
	}

	user.LibraryVisible = visible
	user.Touch()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, storeError(err, "update user", "user not found")
	}

	s.logger.Info("library visibility changed", "user_id", userID, "visible", visible)
	return user, nil
}
