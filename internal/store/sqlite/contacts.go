package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	"github.com/watchlogapp/watchlog-server/internal/store"
)

const contactColumns = `k.user_id, k.contact_id, k.status, k.created_at, k.updated_at, COALESCE(u.nickname, '')`

const contactFrom = `contacts k LEFT JOIN users u ON u.id = k.contact_id`

func scanContact(scanner rowScanner) (*domain.Contact, error) {
	var (
		c         domain.Contact
		status    string
		createdAt string
		updatedAt string
	)
	if err := scanner.Scan(&c.UserID, &c.ContactID, &status, &createdAt, &updatedAt, &c.Nickname); err != nil {
		return nil, err
	}
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	c.Status = domain.ContactStatus(status)
	return &c, nil
}

// GetContact retrieves the userID -> contactID half of a relation.
func (s *Store) GetContact(ctx context.Context, userID, contactID string) (*domain.Contact, error) {
	return getContact(ctx, s.db, userID, contactID)
}

func getContact(ctx context.Context, db execer, userID, contactID string) (*domain.Contact, error) {
	c, err := scanContact(db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM `+contactFrom+` WHERE k.user_id = ? AND k.contact_id = ?`,
		userID, contactID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return c, err
}

// ListContacts returns the accepted contacts of userID ordered by nickname.
func (s *Store) ListContacts(ctx context.Context, userID string, params store.PaginationParams) (*store.PaginatedResult[*domain.Contact], error) {
	params.Validate()
	offset, err := params.Offset()
	if err != nil {
		return nil, store.ErrInvalidInput.WithCause(err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contactColumns+` FROM `+contactFrom+`
		WHERE k.user_id = ? AND k.status = ?
		ORDER BY u.nickname, k.contact_id
		LIMIT ? OFFSET ?`,
		userID, string(domain.ContactAccepted), params.Limit+1, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []*domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return store.NewPaginatedResult(contacts, params, offset), nil
}

// upsertContact writes one direction of a relation.
func upsertContact(ctx context.Context, db execer, userID, contactID string, status domain.ContactStatus, now time.Time) error {
	ts := formatTime(now)
	_, err := db.ExecContext(ctx, `
		INSERT INTO contacts (user_id, contact_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, contact_id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at`,
		userID, contactID, string(status), ts, ts)
	return err
}

// RemoveContact revokes both directions of an accepted relation.
// Returns store.ErrNotFound if userID has no accepted relation with contactID.
func (s *Store) RemoveContact(ctx context.Context, userID, contactID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	c, err := getContact(ctx, tx, userID, contactID)
	if err != nil {
		return err
	}
	if !c.IsAccepted() {
		return store.ErrNotFound
	}

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		UPDATE contacts SET status = ?, updated_at = ?
		WHERE ((user_id = ? AND contact_id = ?) OR (user_id = ? AND contact_id = ?)) AND status = ?`,
		string(domain.ContactRevoked), formatTime(now),
		userID, contactID, contactID, userID, string(domain.ContactAccepted))
	if err != nil {
		return fmt.Errorf("revoke contact pair: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

// BlockContact marks contactID blocked by userID and revokes the reverse direction.
func (s *Store) BlockContact(ctx context.Context, userID, contactID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	if err := upsertContact(ctx, tx, userID, contactID, domain.ContactBlocked, now); err != nil {
		return fmt.Errorf("block contact: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE contacts SET status = ?, updated_at = ?
		WHERE user_id = ? AND contact_id = ? AND status != ?`,
		string(domain.ContactRevoked), formatTime(now), contactID, userID, string(domain.ContactBlocked)); err != nil {
		return fmt.Errorf("revoke reverse contact: %w", err)
	}
	return tx.Commit()
}
