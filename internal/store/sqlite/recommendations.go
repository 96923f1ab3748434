package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	"github.com/watchlogapp/watchlog-server/internal/id"
	"github.com/watchlogapp/watchlog-server/internal/store"
)

const recommendationColumns = `r.id, r.created_at, r.updated_at, r.from_user_id, r.to_user_id, r.item_id,
	r.comment, r.status, ` + catalogColumns

const recommendationFrom = `recommendations r JOIN catalog_items c ON c.id = r.item_id`

func scanRecommendation(scanner rowScanner) (*domain.Recommendation, error) {
	var (
		r          domain.Recommendation
		createdAt  string
		updatedAt  string
		status     string
		item       domain.CatalogItem
		itemCreate string
		itemUpdate string
		category   string
		externalID sql.NullString
		extRating  sql.NullFloat64
		year       sql.NullInt64
	)
	err := scanner.Scan(
		&r.ID, &createdAt, &updatedAt, &r.FromUserID, &r.ToUserID, &r.ItemID, &r.Comment, &status,
		&item.ID, &itemCreate, &itemUpdate, &category, &externalID, &item.Title,
		&item.Description, &item.Poster, &extRating, &year, &item.Genres,
	)
	if err != nil {
		return nil, err
	}

	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if item.CreatedAt, err = parseTime(itemCreate); err != nil {
		return nil, err
	}
	if item.UpdatedAt, err = parseTime(itemUpdate); err != nil {
		return nil, err
	}
	r.Status = domain.RecommendationStatus(status)
	item.Category = domain.Category(category)
	item.ExternalID = externalID.String
	item.ExternalRating = floatPtr(extRating)
	item.Year = intPtr(year)
	r.Item = &item
	return &r, nil
}

// SendRecommendations fans an item out to recipients in one transaction. Recipients that are the sender,
// lack an accepted contact with the sender, or already got this item from the sender are skipped.
func (s *Store) SendRecommendations(ctx context.Context, fromID string, toIDs []string, itemID, comment string) (*store.SendResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM catalog_items WHERE id = ?`, itemID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	now := formatTime(time.Now())
	res := &store.SendResult{}
	seen := make(map[string]bool, len(toIDs))
	for _, toID := range toIDs {
		if seen[toID] {
			continue
		}
		seen[toID] = true

		if toID == fromID {
			res.Skipped = append(res.Skipped, toID)
			continue
		}
		c, err := getContact(ctx, tx, fromID, toID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !c.IsAccepted()) {
			res.Skipped = append(res.Skipped, toID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("check contact %s: %w", toID, err)
		}

		recID, err := id.Generate("rec")
		if err != nil {
			return nil, err
		}
		out, err := tx.ExecContext(ctx, `
			INSERT INTO recommendations (id, created_at, updated_at, from_user_id, to_user_id, item_id, comment, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(from_user_id, to_user_id, item_id) DO NOTHING`,
			recID, now, now, fromID, toID, itemID, comment, string(domain.RecommendationPending))
		if err != nil {
			return nil, fmt.Errorf("insert recommendation for %s: %w", toID, err)
		}
		n, err := out.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			res.Skipped = append(res.Skipped, toID)
			continue
		}
		res.Sent = append(res.Sent, toID)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

// GetRecommendation retrieves a recommendation with its catalog item.
func (s *Store) GetRecommendation(ctx context.Context, id string) (*domain.Recommendation, error) {
	r, err := scanRecommendation(s.db.QueryRowContext(ctx,
		`SELECT `+recommendationColumns+` FROM `+recommendationFrom+` WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return r, err
}

// ListInbox returns the unresolved (pending or saved) recommendations sent to userID, newest first.
func (s *Store) ListInbox(ctx context.Context, userID string, params store.PaginationParams) (*store.PaginatedResult[*domain.Recommendation], error) {
	return s.listRecommendations(ctx, `r.to_user_id = ? AND r.status IN (?, ?)`, params,
		userID, string(domain.RecommendationPending), string(domain.RecommendationSaved))
}

// ListSent returns every recommendation userID sent, newest first.
func (s *Store) ListSent(ctx context.Context, userID string, params store.PaginationParams) (*store.PaginatedResult[*domain.Recommendation], error) {
	return s.listRecommendations(ctx, `r.from_user_id = ?`, params, userID)
}

func (s *Store) listRecommendations(ctx context.Context, where string, params store.PaginationParams, args ...any) (*store.PaginatedResult[*domain.Recommendation], error) {
	params.Validate()
	offset, err := params.Offset()
	if err != nil {
		return nil, store.ErrInvalidInput.WithCause(err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recommendationColumns+` FROM `+recommendationFrom+` WHERE `+where+
			` ORDER BY r.created_at DESC, r.id DESC LIMIT ? OFFSET ?`,
		append(args, params.Limit+1, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*domain.Recommendation
	for rows.Next() {
		r, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return store.NewPaginatedResult(recs, params, offset), nil
}

// updateStatus writes rec.Status if the stored status still equals from.
func updateStatus(ctx context.Context, db execer, rec *domain.Recommendation, from domain.RecommendationStatus) error {
	res, err := db.ExecContext(ctx, `
		UPDATE recommendations SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(rec.Status), formatTime(rec.UpdatedAt), rec.ID, string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrConflict
	}
	return nil
}

// UpdateRecommendationStatus performs an optimistic status change.
func (s *Store) UpdateRecommendationStatus(ctx context.Context, rec *domain.Recommendation, from domain.RecommendationStatus) error {
	return updateStatus(ctx, s.db, rec, from)
}

// AcceptRecommendation adds entry to the recipient's collection unless the item is already there,
// then marks the recommendation accepted. Either both writes commit or neither does.
func (s *Store) AcceptRecommendation(ctx context.Context, rec *domain.Recommendation, from domain.RecommendationStatus,
	entry *domain.CollectionEntry) (*store.AcceptResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res := &store.AcceptResult{AcceptedAt: rec.UpdatedAt}

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM collection_entries WHERE owner_id = ? AND item_id = ?`,
		rec.ToUserID, rec.ItemID).Scan(&existing)
	switch {
	case err == nil:
		res.EntryID = existing
	case errors.Is(err, sql.ErrNoRows):
		if err := insertEntry(ctx, tx, entry); err != nil {
			return nil, fmt.Errorf("add recommended item: %w", err)
		}
		res.EntryID = entry.ID
		res.EntryCreated = true
	default:
		return nil, err
	}

	if err := updateStatus(ctx, tx, rec, from); err != nil {
		return nil, fmt.Errorf("mark accepted: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}
