package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	"github.com/watchlogapp/watchlog-server/internal/store"
)

// inviteColumns must match the scan order in scanInvite.
const inviteColumns = `id, created_at, creator_id, token, max_uses, used_count, expires_at, revoked_at`

func scanInvite(scanner rowScanner) (*domain.Invite, error) {
	var (
		inv       domain.Invite
		createdAt string
		expiresAt string
		revokedAt sql.NullString
	)
	err := scanner.Scan(
		&inv.ID,
		&createdAt,
		&inv.CreatorID,
		&inv.Token,
		&inv.MaxUses,
		&inv.UsedCount,
		&expiresAt,
		&revokedAt,
	)
	if err != nil {
		return nil, err
	}

	if inv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if inv.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}
	if inv.RevokedAt, err = parseNullableTime(revokedAt); err != nil {
		return nil, err
	}
	return &inv, nil
}

// CreateInvite inserts a new invite.
// Returns store.ErrAlreadyExists if the token already exists.
func (s *Store) CreateInvite(ctx context.Context, invite *domain.Invite) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invites (id, created_at, creator_id, token, max_uses, used_count, expires_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		invite.ID,
		formatTime(invite.CreatedAt),
		invite.CreatorID,
		invite.Token,
		invite.MaxUses,
		invite.UsedCount,
		formatTime(invite.ExpiresAt),
		nullTimeString(invite.RevokedAt),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

// GetInvite retrieves an invite by ID.
func (s *Store) GetInvite(ctx context.Context, id string) (*domain.Invite, error) {
	inv, err := scanInvite(s.db.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invites WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return inv, err
}

// ListInvites returns every invite created by creatorID, newest first.
func (s *Store) ListInvites(ctx context.Context, creatorID string) ([]*domain.Invite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+inviteColumns+` FROM invites WHERE creator_id = ? ORDER BY created_at DESC, id DESC`, creatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invites []*domain.Invite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

// RevokeInvite sets revoked_at on an invite that is not yet revoked.
func (s *Store) RevokeInvite(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invites SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`, formatTime(at), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// DeleteInvites removes invites by ID and returns how many were deleted.
func (s *Store) DeleteInvites(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, v := range ids {
		args[i] = v
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM invites WHERE id IN (`+marks+`)`, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// AcceptInvite redeems token for userID. On success both directions of the contact pair become accepted and
// one use is consumed. Accepting an invite from someone who already is an accepted contact succeeds without
// consuming a use. Every other outcome leaves the database untouched.
func (s *Store) AcceptInvite(ctx context.Context, token, userID string, now time.Time) (domain.InviteOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	inv, err := scanInvite(tx.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invites WHERE token = ?`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OutcomeInvalid, nil
	}
	if err != nil {
		return "", fmt.Errorf("load invite: %w", err)
	}

	switch inv.State(now) {
	case domain.InviteRevoked:
		return domain.OutcomeRevoked, nil
	case domain.InviteExpired:
		return domain.OutcomeExpired, nil
	case domain.InviteConsumed:
		return domain.OutcomeMaxUses, nil
	}
	if inv.CreatorID == userID {
		return domain.OutcomeSelf, nil
	}

	forward, err := getContact(ctx, tx, userID, inv.CreatorID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	reverse, err := getContact(ctx, tx, inv.CreatorID, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	if forward.IsAccepted() && reverse.IsAccepted() {
		return domain.OutcomeAccepted, nil
	}
	if isBlocked(forward) || isBlocked(reverse) {
		return domain.OutcomeInvalid, nil
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE invites SET used_count = used_count + 1 WHERE id = ? AND used_count < max_uses`, inv.ID)
	if err != nil {
		return "", fmt.Errorf("consume invite: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return "", err
	} else if n == 0 {
		return domain.OutcomeMaxUses, nil
	}

	if err := upsertContact(ctx, tx, userID, inv.CreatorID, domain.ContactAccepted, now); err != nil {
		return "", fmt.Errorf("create contact: %w", err)
	}
	if err := upsertContact(ctx, tx, inv.CreatorID, userID, domain.ContactAccepted, now); err != nil {
		return "", fmt.Errorf("create reverse contact: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return domain.OutcomeAccepted, nil
}

func isBlocked(c *domain.Contact) bool {
	return c != nil && c.Status == domain.ContactBlocked
}
