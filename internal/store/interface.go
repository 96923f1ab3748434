// Package store defines the persistence interface for the watchlog server.
package store

import (
	"context"
	"time"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	"github.com/watchlogapp/watchlog-server/internal/query"
)

// Store defines the interface for all persistence operations.
type Store interface {
	Close() error

	UserStore
	CatalogStore
	EntryStore
	ContactStore
	RecommendationStore
	InviteStore
}

// UserStore persists accounts and their sharing preferences.
type UserStore interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByNickname(ctx context.Context, nickname string) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
}

// CatalogStore persists deduplicated catalog items. CreateCatalogItem returns ErrAlreadyExists and
// UpdateCatalogItem returns ErrConflict when (category, external_id) is already taken.
type CatalogStore interface {
	CreateCatalogItem(ctx context.Context, item *domain.CatalogItem) error
	GetCatalogItem(ctx context.Context, id string) (*domain.CatalogItem, error)
	GetCatalogItemByExternalID(ctx context.Context, category domain.Category, externalID string) (*domain.CatalogItem, error)
	UpdateCatalogItem(ctx context.Context, item *domain.CatalogItem) error
	// SetCatalogYearIfMissing writes year only when none is stored and reports whether it did.
	SetCatalogYearIfMissing(ctx context.Context, itemID string, year int) (bool, error)
}

// EntryStore persists collection entries and executes compiled query plans.
type EntryStore interface {
	CreateEntry(ctx context.Context, entry *domain.CollectionEntry) error
	GetEntry(ctx context.Context, id string) (*domain.CollectionEntry, error)
	GetEntryByItem(ctx context.Context, ownerID, itemID string) (*domain.CollectionEntry, error)
	UpdateEntry(ctx context.Context, entry *domain.CollectionEntry) error
	DeleteEntry(ctx context.Context, id string) error

	FetchPage(ctx context.Context, plan query.Plan) ([]*domain.CollectionEntry, error)
	CountEntries(ctx context.Context, plan query.CountPlan) (int, error)
	EntryExtremes(ctx context.Context, scope query.Scope) (Extremes, error)
}

// ContactStore persists the directed halves of contact relations.
type ContactStore interface {
	GetContact(ctx context.Context, userID, contactID string) (*domain.Contact, error)
	ListContacts(ctx context.Context, userID string, params PaginationParams) (*PaginatedResult[*domain.Contact], error)
	// RemoveContact revokes both directions atomically.
	RemoveContact(ctx context.Context, userID, contactID string) error
	// BlockContact marks userID -> contactID blocked and revokes the reverse direction.
	BlockContact(ctx context.Context, userID, contactID string) error
}

// RecommendationStore persists recommendations and runs their atomic operations.
type RecommendationStore interface {
	// SendRecommendations creates one pending recommendation per eligible recipient in a single transaction.
	SendRecommendations(ctx context.Context, fromID string, toIDs []string, itemID, comment string) (*SendResult, error)
	GetRecommendation(ctx context.Context, id string) (*domain.Recommendation, error)
	ListInbox(ctx context.Context, userID string, params PaginationParams) (*PaginatedResult[*domain.Recommendation], error)
	ListSent(ctx context.Context, userID string, params PaginationParams) (*PaginatedResult[*domain.Recommendation], error)
	// UpdateRecommendationStatus writes rec.Status only if the stored status is still from.
	UpdateRecommendationStatus(ctx context.Context, rec *domain.Recommendation, from domain.RecommendationStatus) error
	// AcceptRecommendation adds entry unless the recipient already has the item, then marks rec accepted.
	// Both writes commit together.
	AcceptRecommendation(ctx context.Context, rec *domain.Recommendation, from domain.RecommendationStatus,
		entry *domain.CollectionEntry) (*AcceptResult, error)
}

// InviteStore persists invites and runs the atomic acceptance.
type InviteStore interface {
	CreateInvite(ctx context.Context, invite *domain.Invite) error
	GetInvite(ctx context.Context, id string) (*domain.Invite, error)
	ListInvites(ctx context.Context, creatorID string) ([]*domain.Invite, error)
	RevokeInvite(ctx context.Context, id string, at time.Time) error
	DeleteInvites(ctx context.Context, ids []string) (int, error)
	// AcceptInvite validates the invite behind token and creates the contact pair in one transaction.
	AcceptInvite(ctx context.Context, token, userID string, now time.Time) (domain.InviteOutcome, error)
}
