package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	"github.com/watchlogapp/watchlog-server/internal/store"
)

const userColumns = `id, created_at, updated_at, nickname, library_visible`

func scanUser(scanner rowScanner) (*domain.User, error) {
	var (
		u         domain.User
		createdAt string
		updatedAt string
		visible   int
	)
	if err := scanner.Scan(&u.ID, &createdAt, &updatedAt, &u.Nickname, &visible); err != nil {
		return nil, err
	}

	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	u.LibraryVisible = visible != 0
	return &u, nil
}

// CreateUser inserts a user. Returns store.ErrAlreadyExists if the id or nickname is taken.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, created_at, updated_at, nickname, library_visible)
		VALUES (?, ?, ?, ?, ?)`,
		user.ID,
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
		user.Nickname,
		boolInt(user.LibraryVisible),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return u, err
}

// GetUserByNickname retrieves a user by nickname.
func (s *Store) GetUserByNickname(ctx context.Context, nickname string) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE nickname = ?`, nickname))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return u, err
}

// UpdateUser writes the nickname and visibility of an existing user.
// Returns store.ErrConflict if the nickname belongs to someone else.
func (s *Store) UpdateUser(ctx context.Context, user *domain.User) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET updated_at = ?, nickname = ?, library_visible = ?
		WHERE id = ?`,
		formatTime(user.UpdatedAt),
		user.Nickname,
		boolInt(user.LibraryVisible),
		user.ID,
	)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// requireAffected maps an UPDATE or DELETE that touched nothing to store.ErrNotFound.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
