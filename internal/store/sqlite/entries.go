package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	"github.com/watchlogapp/watchlog-server/internal/query"
	"github.com/watchlogapp/watchlog-server/internal/store"
)

// entryColumns must match the scan order in scanEntry; catalog columns follow.
const entryColumns = `e.id, e.created_at, e.updated_at, e.owner_id, e.item_id, e.viewed_at, e.rating,
	e.comment, e.is_viewed, e.progress, e.recommend_similar, e.availability, e.platforms, ` + catalogColumns

func scanEntry(scanner rowScanner) (*domain.CollectionEntry, error) {
	var (
		e            domain.CollectionEntry
		createdAt    string
		updatedAt    string
		viewedAt     sql.NullString
		rating       sql.NullInt64
		isViewed     int
		favorite     int
		availability string
		platforms    string

		item       domain.CatalogItem
		itemCreate string
		itemUpdate string
		category   string
		externalID sql.NullString
		extRating  sql.NullFloat64
		year       sql.NullInt64
	)
	err := scanner.Scan(
		&e.ID, &createdAt, &updatedAt, &e.OwnerID, &e.ItemID, &viewedAt, &rating,
		&e.Comment, &isViewed, &e.Progress, &favorite, &availability, &platforms,
		&item.ID, &itemCreate, &itemUpdate, &category, &externalID, &item.Title,
		&item.Description, &item.Poster, &extRating, &year, &item.Genres,
	)
	if err != nil {
		return nil, err
	}

	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if e.ViewedAt, err = parseNullableTime(viewedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(platforms), &e.Platforms); err != nil {
		return nil, fmt.Errorf("decode platforms of entry %s: %w", e.ID, err)
	}
	e.Rating = intPtr(rating)
	e.IsViewed = isViewed != 0
	e.RecommendSimilar = favorite != 0
	e.Availability = domain.Availability(availability)

	if item.CreatedAt, err = parseTime(itemCreate); err != nil {
		return nil, err
	}
	if item.UpdatedAt, err = parseTime(itemUpdate); err != nil {
		return nil, err
	}
	item.Category = domain.Category(category)
	item.ExternalID = externalID.String
	item.ExternalRating = floatPtr(extRating)
	item.Year = intPtr(year)
	e.Item = &item

	return &e, nil
}

func encodePlatforms(p []domain.Platform) (string, error) {
	if p == nil {
		p = []domain.Platform{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode platforms: %w", err)
	}
	return string(b), nil
}

// insertEntry inserts an entry through db or tx. Returns store.ErrAlreadyExists if the owner already has the item.
func insertEntry(ctx context.Context, db execer, entry *domain.CollectionEntry) error {
	platforms, err := encodePlatforms(entry.Platforms)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO collection_entries (
			id, created_at, updated_at, owner_id, item_id, viewed_at, rating, comment,
			is_viewed, progress, recommend_similar, availability, platforms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		formatTime(entry.CreatedAt),
		formatTime(entry.UpdatedAt),
		entry.OwnerID,
		entry.ItemID,
		nullTimeString(entry.ViewedAt),
		nullInt(entry.Rating),
		entry.Comment,
		boolInt(entry.IsViewed),
		entry.Progress,
		boolInt(entry.RecommendSimilar),
		string(entry.Availability),
		platforms,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists.WithCause(err)
	}
	return err
}

// CreateEntry inserts a collection entry.
func (s *Store) CreateEntry(ctx context.Context, entry *domain.CollectionEntry) error {
	return insertEntry(ctx, s.db, entry)
}

// GetEntry retrieves an entry joined with its catalog item.
func (s *Store) GetEntry(ctx context.Context, id string) (*domain.CollectionEntry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM `+entryFrom+` WHERE e.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return e, err
}

// GetEntryByItem retrieves the owner's entry for a catalog item.
func (s *Store) GetEntryByItem(ctx context.Context, ownerID, itemID string) (*domain.CollectionEntry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM `+entryFrom+` WHERE e.owner_id = ? AND e.item_id = ?`, ownerID, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return e, err
}

// UpdateEntry writes the owner-editable fields of an entry.
func (s *Store) UpdateEntry(ctx context.Context, entry *domain.CollectionEntry) error {
	platforms, err := encodePlatforms(entry.Platforms)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE collection_entries SET
			updated_at = ?,
			viewed_at = ?,
			rating = ?,
			comment = ?,
			is_viewed = ?,
			progress = ?,
			recommend_similar = ?,
			availability = ?,
			platforms = ?
		WHERE id = ?`,
		formatTime(entry.UpdatedAt),
		nullTimeString(entry.ViewedAt),
		nullInt(entry.Rating),
		entry.Comment,
		boolInt(entry.IsViewed),
		entry.Progress,
		boolInt(entry.RecommendSimilar),
		string(entry.Availability),
		platforms,
		entry.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// DeleteEntry removes an entry. The catalog item stays for other owners.
func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM collection_entries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// FetchPage executes a data plan. Full-scan plans read every matching row in batches and sort in memory.
func (s *Store) FetchPage(ctx context.Context, plan query.Plan) ([]*domain.CollectionEntry, error) {
	if plan.Empty {
		return nil, store.ErrInvalidInput.WithCause(errors.New("empty plan reached the store"))
	}

	where, args, err := whereClause(plan.Scope, plan.Predicates)
	if err != nil {
		return nil, fmt.Errorf("render plan: %w", err)
	}

	if plan.FullScan {
		return s.fullScan(ctx, plan, where, args)
	}

	order, err := orderClause(plan.Order)
	if err != nil {
		return nil, fmt.Errorf("render plan: %w", err)
	}
	q := `SELECT ` + entryColumns + ` FROM ` + entryFrom + where + order + ` LIMIT ? OFFSET ?`
	return s.queryEntries(ctx, q, append(args, plan.Window.Size, plan.Window.Offset())...)
}

func (s *Store) fullScan(ctx context.Context, plan query.Plan, where string, args []any) ([]*domain.CollectionEntry, error) {
	q := `SELECT ` + entryColumns + ` FROM ` + entryFrom + where + ` ORDER BY e.id LIMIT ? OFFSET ?`

	var all []*domain.CollectionEntry
	for offset := 0; ; offset += s.fullScanBatch {
		batch, err := s.queryEntries(ctx, q, append(args[:len(args):len(args)], s.fullScanBatch, offset)...)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < s.fullScanBatch {
			break
		}
	}

	query.SortEntries(all, plan.Sort)
	s.logger.Debug("full scan",
		"scope", plan.Scope.String(),
		"rows", len(all),
		"sort", string(plan.Sort.Key),
	)
	return all, nil
}

func (s *Store) queryEntries(ctx context.Context, q string, args ...any) ([]*domain.CollectionEntry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.CollectionEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountEntries executes a count plan.
func (s *Store) CountEntries(ctx context.Context, plan query.CountPlan) (int, error) {
	where, args, err := whereClause(plan.Scope, plan.Predicates)
	if err != nil {
		return 0, fmt.Errorf("render count plan: %w", err)
	}
	var n int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+entryFrom+where, args...).Scan(&n)
	return n, err
}

// EntryExtremes returns the year and external rating extremes of a collection.
func (s *Store) EntryExtremes(ctx context.Context, scope query.Scope) (store.Extremes, error) {
	var (
		yearMin, yearMax     sql.NullInt64
		ratingMin, ratingMax sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT MIN(NULLIF(c.year, 0)), MAX(NULLIF(c.year, 0)), MIN(c.external_rating), MAX(c.external_rating)
		FROM `+entryFrom+`
		WHERE e.owner_id = ? AND c.category = ?`,
		scope.OwnerID, string(scope.Category),
	).Scan(&yearMin, &yearMax, &ratingMin, &ratingMax)
	if err != nil {
		return store.Extremes{}, err
	}
	return store.Extremes{
		YearMin:           intPtr(yearMin),
		YearMax:           intPtr(yearMax),
		ExternalRatingMin: floatPtr(ratingMin),
		ExternalRatingMax: floatPtr(ratingMax),
	}, nil
}
