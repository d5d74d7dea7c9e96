package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/domain"
)

const userColumns = `id, username, email, password_hash, roles, active, mfa_secret, created_at, updated_at`

func (s *Store) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	now := s.now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, joinRoles(u.Roles), u.Active,
		nullString(u.MFASecret), u.CreatedAt, now,
	)
	return mapConstraint(err)
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return requireRow(s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, s.now(), userID,
	))
}

func (s *Store) SetActive(ctx context.Context, userID string, active bool) error {
	return requireRow(s.db.ExecContext(ctx,
		`UPDATE users SET active = ?, updated_at = ? WHERE id = ?`,
		active, s.now(), userID,
	))
}

func (s *Store) UpdateMFASecret(ctx context.Context, userID string, secret *string) error {
	return requireRow(s.db.ExecContext(ctx,
		`UPDATE users SET mfa_secret = ?, updated_at = ? WHERE id = ?`,
		nullString(secret), s.now(), userID,
	))
}

func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&n); err != nil {
		return false, err
	}
	return n == 0, nil
}

func (s *Store) getUser(ctx context.Context, query string, arg any) (domain.User, error) {
	var (
		u      domain.User
		roles  string
		secret sql.NullString
	)

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &roles, &u.Active,
		&secret, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.Roles = splitRoles(roles)
	u.MFASecret = stringPtr(secret)
	return u, nil
}
