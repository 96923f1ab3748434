// Package service holds the business operations behind the HTTP API and the browse engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	domainerrors "github.com/watchlogapp/watchlog-server/internal/errors"
	"github.com/watchlogapp/watchlog-server/internal/id"
	"github.com/watchlogapp/watchlog-server/internal/metadata"
	"github.com/watchlogapp/watchlog-server/internal/store"
	"github.com/watchlogapp/watchlog-server/internal/validation"
)

// CollectionService manages catalog items and the entries owners keep of them.
type CollectionService struct {
	store     store.Store
	validator *validation.Validator
	logger    *slog.Logger
}

// NewCollectionService creates a new collection service.
func NewCollectionService(store store.Store, validator *validation.Validator, logger *slog.Logger) *CollectionService {
	return &CollectionService{
		store:     store,
		validator: validator,
		logger:    logger,
	}
}

// EntryFields are the owner-editable fields of an entry.
type EntryFields struct {
	IsViewed         bool                `json:"is_viewed"`
	ViewedAt         *time.Time          `json:"viewed_at,omitempty"`
	Rating           *int                `json:"rating,omitempty" validate:"omitempty,gte=1,lte=10"`
	Comment          string              `json:"comment,omitempty" validate:"max=5000"`
	Progress         int                 `json:"progress" validate:"gte=0,lte=100"`
	RecommendSimilar bool                `json:"recommend_similar"`
	Availability     domain.Availability `json:"availability,omitempty" validate:"omitempty,availability"`
	Platforms        []domain.Platform   `json:"platforms,omitempty" validate:"max=10"`
}

// AddItemRequest adds a title to the caller's collection, creating its catalog item on first add.
type AddItemRequest struct {
	Category       domain.Category `json:"category" validate:"required,category"`
	ExternalID     string          `json:"external_id,omitempty" validate:"max=128"`
	Title          string          `json:"title" validate:"required,max=500"`
	Description    string          `json:"description,omitempty" validate:"max=20000"`
	Poster         string          `json:"poster,omitempty" validate:"omitempty,url"`
	ExternalRating *float64        `json:"external_rating,omitempty" validate:"omitempty,gte=0,lte=10"`
	Year           *int            `json:"year,omitempty" validate:"omitempty,gte=1850,lte=2200"`
	Genres         string          `json:"genres,omitempty" validate:"max=500"`

	EntryFields
}

// UpdateEntryRequest changes the editable fields of an entry. Nil fields are left alone.
type UpdateEntryRequest struct {
	IsViewed         *bool                `json:"is_viewed,omitempty"`
	ViewedAt         *time.Time           `json:"viewed_at,omitempty"`
	Rating           *int                 `json:"rating,omitempty" validate:"omitempty,gte=0,lte=10"`
	Comment          *string              `json:"comment,omitempty" validate:"omitempty,max=5000"`
	Progress         *int                 `json:"progress,omitempty" validate:"omitempty,gte=0,lte=100"`
	RecommendSimilar *bool                `json:"recommend_similar,omitempty"`
	Availability     *domain.Availability `json:"availability,omitempty" validate:"omitempty,availability"`
	Platforms        []domain.Platform    `json:"platforms,omitempty" validate:"max=10"`
}

// AddItem finds or creates the catalog item and adds an entry for it to owner's collection.
// A second add of the same external id in a category fills in optional fields of the existing item.
func (s *CollectionService) AddItem(ctx context.Context, ownerID string, req AddItemRequest) (*domain.CollectionEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ownerID == "" {
		return nil, domainerrors.ErrUnauthorized
	}

	req.Title = strings.TrimSpace(req.Title)
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if err := checkPlatforms(req.Category, req.Platforms); err != nil {
		return nil, err
	}

	item, err := s.findOrCreateItem(ctx, &domain.CatalogItem{
		Category:       req.Category,
		ExternalID:     req.ExternalID,
		Title:          req.Title,
		Description:    req.Description,
		Poster:         req.Poster,
		ExternalRating: req.ExternalRating,
		Year:           req.Year,
		Genres:         req.Genres,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.store.GetEntryByItem(ctx, ownerID, item.ID); err == nil {
		return nil, domainerrors.AlreadyExists("this title is already in your collection")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check existing entry: %w", err)
	}

	entryID, err := id.Generate("entry")
	if err != nil {
		return nil, fmt.Errorf("generate entry ID: %w", err)
	}

	entry := &domain.CollectionEntry{
		Syncable: domain.Syncable{ID: entryID},
		OwnerID:  ownerID,
		ItemID:   item.ID,
	}
	entry.InitTimestamps()
	applyFields(entry, req.EntryFields)

	if err := s.store.CreateEntry(ctx, entry); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, domainerrors.AlreadyExists("this title is already in your collection")
		}
		return nil, fmt.Errorf("create entry: %w", err)
	}
	entry.Item = item

	s.logger.Info("entry added",
		"entry_id", entry.ID,
		"owner_id", ownerID,
		"item_id", item.ID,
		"category", item.Category,
	)
	return entry, nil
}

// findOrCreateItem returns the catalog item for incoming's external id, creating it if needed.
// Items without an external id are never shared.
func (s *CollectionService) findOrCreateItem(ctx context.Context, incoming *domain.CatalogItem) (*domain.CatalogItem, error) {
	if incoming.ExternalID != "" {
		existing, err := s.store.GetCatalogItemByExternalID(ctx, incoming.Category, incoming.ExternalID)
		switch {
		case err == nil:
			return s.mergeItem(ctx, existing, incoming)
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("find catalog item: %w", err)
		}
	}

	itemID, err := id.Generate("item")
	if err != nil {
		return nil, fmt.Errorf("generate item ID: %w", err)
	}
	incoming.ID = itemID
	incoming.InitTimestamps()

	err = s.store.CreateCatalogItem(ctx, incoming)
	if err == nil {
		return incoming, nil
	}
	if !errors.Is(err, store.ErrAlreadyExists) {
		return nil, fmt.Errorf("create catalog item: %w", err)
	}

	// Another add of the same title won the insert; update its row instead.
	existing, err := s.store.GetCatalogItemByExternalID(ctx, incoming.Category, incoming.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("find catalog item after conflict: %w", err)
	}
	return s.mergeItem(ctx, existing, incoming)
}

func (s *CollectionService) mergeItem(ctx context.Context, existing, incoming *domain.CatalogItem) (*domain.CatalogItem, error) {
	existing.MergeOptional(incoming)
	existing.Touch()
	if err := s.saveItem(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// saveItem updates item. When its external id collides with another item, the stored row is
// re-read and the update retried once without the external id change.
func (s *CollectionService) saveItem(ctx context.Context, item *domain.CatalogItem) error {
	err := s.store.UpdateCatalogItem(ctx, item)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("update catalog item: %w", err)
	}

	current, err := s.store.GetCatalogItem(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("reload catalog item: %w", err)
	}

	s.logger.Warn("external id collision, saving without it",
		"item_id", item.ID,
		"external_id", item.ExternalID,
		"kept_external_id", current.ExternalID,
	)
	item.ExternalID = current.ExternalID

	if err := s.store.UpdateCatalogItem(ctx, item); err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeConflict, "could not save item")
	}
	return nil
}

// ApplyMetadata writes provider fields onto an item. Empty provider fields keep the stored values.
func (s *CollectionService) ApplyMetadata(ctx context.Context, itemID string, detail *metadata.Detail) (*domain.CatalogItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	item, err := s.store.GetCatalogItem(ctx, itemID)
	if err != nil {
		return nil, storeError(err, "get catalog item", "item not found")
	}

	incoming := detail.CatalogItem(item.Category)
	item.MergeOptional(incoming)
	if incoming.Title != "" {
		item.Title = incoming.Title
	}
	if incoming.ExternalID != "" {
		item.ExternalID = incoming.ExternalID
	}
	item.Touch()

	if err := s.saveItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// GetEntry returns one of owner's entries.
func (s *CollectionService) GetEntry(ctx context.Context, ownerID, entryID string) (*domain.CollectionEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.ownedEntry(ctx, ownerID, entryID)
}

// UpdateEntry applies req to one of owner's entries.
func (s *CollectionService) UpdateEntry(ctx context.Context, ownerID, entryID string, req UpdateEntryRequest) (*domain.CollectionEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	entry, err := s.ownedEntry(ctx, ownerID, entryID)
	if err != nil {
		return nil, err
	}
	if req.Platforms != nil {
		if err := checkPlatforms(entry.Item.Category, req.Platforms); err != nil {
			return nil, err
		}
	}

	if req.IsViewed != nil {
		entry.IsViewed = *req.IsViewed
	}
	// A planned entry has no viewed date; one sent along with it is ignored.
	switch {
	case !entry.IsViewed:
		entry.ViewedAt = nil
	case req.ViewedAt != nil:
		viewedAt := req.ViewedAt.UTC()
		entry.ViewedAt = &viewedAt
	case entry.ViewedAt == nil:
		now := time.Now().UTC()
		entry.ViewedAt = &now
	}
	if req.Rating != nil {
		// Zero clears the rating.
		if *req.Rating == 0 {
			entry.Rating = nil
		} else {
			entry.Rating = req.Rating
		}
	}
	if req.Comment != nil {
		entry.Comment = *req.Comment
	}
	if req.Progress != nil {
		entry.Progress = *req.Progress
	}
	if req.RecommendSimilar != nil {
		entry.RecommendSimilar = *req.RecommendSimilar
	}
	if req.Availability != nil {
		entry.Availability = *req.Availability
	}
	if req.Platforms != nil {
		entry.Platforms = req.Platforms
	}
	entry.Touch()

	if err := s.store.UpdateEntry(ctx, entry); err != nil {
		return nil, storeError(err, "update entry", "entry not found")
	}
	return entry, nil
}

// DeleteEntry removes one of owner's entries.
func (s *CollectionService) DeleteEntry(ctx context.Context, ownerID, entryID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.ownedEntry(ctx, ownerID, entryID); err != nil {
		return err
	}
	if err := s.store.DeleteEntry(ctx, entryID); err != nil {
		return storeError(err, "delete entry", "entry not found")
	}
	s.logger.Info("entry deleted", "entry_id", entryID, "owner_id", ownerID)
	return nil
}

// ownedEntry loads an entry and hides it from anyone but its owner.
func (s *CollectionService) ownedEntry(ctx context.Context, ownerID, entryID string) (*domain.CollectionEntry, error) {
	if ownerID == "" {
		return nil, domainerrors.ErrUnauthorized
	}
	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, storeError(err, "get entry", "entry not found")
	}
	if entry.OwnerID != ownerID {
		return nil, domainerrors.NotFound("entry not found")
	}
	return entry, nil
}

func applyFields(entry *domain.CollectionEntry, f EntryFields) {
	entry.IsViewed = f.IsViewed
	entry.Rating = f.Rating
	entry.Comment = f.Comment
	entry.Progress = f.Progress
	entry.RecommendSimilar = f.RecommendSimilar
	entry.Availability = f.Availability
	entry.Platforms = f.Platforms

	switch {
	case !f.IsViewed:
		entry.ViewedAt = nil
	case f.ViewedAt != nil:
		viewedAt := f.ViewedAt.UTC()
		entry.ViewedAt = &viewedAt
	default:
		viewedAt := entry.CreatedAt
		entry.ViewedAt = &viewedAt
	}
}

func checkPlatforms(category domain.Category, platforms []domain.Platform) error {
	for _, p := range platforms {
		if !category.AllowsPlatform(p) {
			return domainerrors.Validationf("platform %q is not available for %s", p, category)
		}
	}
	return nil
}
