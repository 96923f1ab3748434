package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	"github.com/watchlogapp/watchlog-server/internal/query"
	"github.com/watchlogapp/watchlog-server/internal/store"
)

// catalogColumns must match the scan order in scanCatalogItem.
const catalogColumns = `c.id, c.created_at, c.updated_at, c.category, c.external_id, c.title,
	c.description, c.poster, c.external_rating, c.year, c.genres`

func scanCatalogItem(scanner rowScanner) (*domain.CatalogItem, error) {
	var (
		item       domain.CatalogItem
		createdAt  string
		updatedAt  string
		category   string
		externalID sql.NullString
		rating     sql.NullFloat64
		year       sql.NullInt64
	)
	err := scanner.Scan(
		&item.ID,
		&createdAt,
		&updatedAt,
		&category,
		&externalID,
		&item.Title,
		&item.Description,
		&item.Poster,
		&rating,
		&year,
		&item.Genres,
	)
	if err != nil {
		return nil, err
	}

	if item.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if item.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	item.Category = domain.Category(category)
	item.ExternalID = externalID.String
	item.ExternalRating = floatPtr(rating)
	item.Year = intPtr(year)
	return &item, nil
}

// CreateCatalogItem inserts a catalog item.
// Returns store.ErrAlreadyExists if (category, external_id) is already present.
func (s *Store) CreateCatalogItem(ctx context.Context, item *domain.CatalogItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog_items (
			id, created_at, updated_at, category, external_id, title, title_fold,
			description, description_fold, poster, external_rating, year, genres
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		formatTime(item.CreatedAt),
		formatTime(item.UpdatedAt),
		string(item.Category),
		nullString(item.ExternalID),
		item.Title,
		query.Fold(item.Title),
		item.Description,
		query.Fold(item.Description),
		item.Poster,
		nullFloat(item.ExternalRating),
		nullInt(item.Year),
		item.Genres,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists.WithCause(err)
	}
	return err
}

// GetCatalogItem retrieves a catalog item by ID.
func (s *Store) GetCatalogItem(ctx context.Context, id string) (*domain.CatalogItem, error) {
	item, err := scanCatalogItem(s.db.QueryRowContext(ctx,
		`SELECT `+catalogColumns+` FROM catalog_items c WHERE c.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return item, err
}

// GetCatalogItemByExternalID retrieves the catalog item for an external title within a category.
func (s *Store) GetCatalogItemByExternalID(ctx context.Context, category domain.Category, externalID string) (*domain.CatalogItem, error) {
	item, err := scanCatalogItem(s.db.QueryRowContext(ctx,
		`SELECT `+catalogColumns+` FROM catalog_items c WHERE c.category = ? AND c.external_id = ?`,
		string(category), externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return item, err
}

// UpdateCatalogItem writes every mutable field of an existing catalog item.
// Returns store.ErrConflict if the new external_id is already used within the category.
func (s *Store) UpdateCatalogItem(ctx context.Context, item *domain.CatalogItem) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE catalog_items SET
			updated_at = ?,
			external_id = ?,
			title = ?,
			title_fold = ?,
			description = ?,
			description_fold = ?,
			poster = ?,
			external_rating = ?,
			year = ?,
			genres = ?
		WHERE id = ?`,
		formatTime(item.UpdatedAt),
		nullString(item.ExternalID),
		item.Title,
		query.Fold(item.Title),
		item.Description,
		query.Fold(item.Description),
		item.Poster,
		nullFloat(item.ExternalRating),
		nullInt(item.Year),
		item.Genres,
		item.ID,
	)
	if isUniqueViolation(err) {
		return store.ErrConflict.WithCause(err)
	}
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// SetCatalogYearIfMissing stores year on an item that has none.
func (s *Store) SetCatalogYearIfMissing(ctx context.Context, itemID string, year int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE catalog_items SET year = ? WHERE id = ? AND (year IS NULL OR year = 0)`,
		year, itemID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
