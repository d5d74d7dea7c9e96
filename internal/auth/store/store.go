package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrUnavailable wraps backend failures a caller may retry (network,
	// timeouts, exhausted optimistic retries).
	ErrUnavailable = errors.New("store: unavailable")

	// ErrCorrupt marks a record that exists but cannot be decoded. Retrying
	// never helps.
	ErrCorrupt = errors.New("store: corrupt record")
)

// DefaultRevokeGrace is how long a revoked record is kept when its remaining
// lifetime cannot be read from the backend.
const DefaultRevokeGrace = 300 * time.Second

// UserIndexSlack is how much longer a per-user index lives than the newest
// token written into it.
const UserIndexSlack = 30 * 24 * time.Hour

// Tokens persists token records in a shared, TTL aware key-value backend.
// Records are the source of truth for validity. The per-user and global
// indexes exist only for enumeration and cleanup and may hold stale ids
// until CleanupExpiredTokens reconciles them.
type Tokens interface {
	// SaveToken writes rec under tokenID with the given ttl, adds tokenID to
	// the owner's index and the global index, and extends the owner's index
	// expiry to ttl + UserIndexSlack.
	SaveToken(ctx context.Context, tokenID string, rec domain.TokenRecord, ttl time.Duration) error

	// FindByID returns the record or ErrNotFound.
	FindByID(ctx context.Context, tokenID string) (domain.TokenRecord, error)

	// FindAllByUserID resolves the owner's index and returns every record
	// still present. Ids whose record already expired or will not decode
	// are skipped.
	FindAllByUserID(ctx context.Context, userID string) ([]domain.TokenRecord, error)

	// DeleteToken removes the record and its index entries. Deleting a token
	// that is already gone is not an error.
	DeleteToken(ctx context.Context, tokenID, userID string) error

	// RevokeToken flips the revoked flag on one record while keeping its
	// remaining TTL, or grace when the TTL cannot be read. It reports
	// whether this call performed the flip: false means the record was
	// absent or already revoked. The record is never left half written.
	RevokeToken(ctx context.Context, tokenID string, grace time.Duration) (bool, error)

	// RevokeAllUserTokens revokes every record in the owner's index and
	// returns how many it flipped. Records that will not decode are skipped.
	// Not atomic across the set: on error the records revoked so far stay
	// revoked.
	RevokeAllUserTokens(ctx context.Context, userID string) (int, error)

	// CleanupExpiredTokens prunes index entries whose record no longer
	// exists. It never deletes a record.
	CleanupExpiredTokens(ctx context.Context) (CleanupStats, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection pool.
	Close() error
}

// ResetTokens holds single use password reset tokens. A token maps to the
// id of the user it was issued for and disappears on first use or expiry.
type ResetTokens interface {
	// SaveResetToken stores token for userID with the given ttl.
	SaveResetToken(ctx context.Context, token, userID string, ttl time.Duration) error

	// ConsumeResetToken returns the owner of token and deletes it in the
	// same step, so two concurrent calls never both succeed. A missing or
	// expired token returns ErrNotFound.
	ConsumeResetToken(ctx context.Context, token string) (string, error)
}

// CleanupStats summarises one cleanup sweep.
type CleanupStats struct {
	Scanned     int // ids in the global index at sweep start
	Pruned      int // ids whose record was gone
	UserIndexes int // per-user indexes visited
}

// Users is the user directory consumed by the login and refresh flows.
type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername looks a user up by exact username.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// GetUserByEmail looks a user up by email, case-insensitively.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user. Duplicate username or email returns
	// ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID, hash string) error

	// SetActive flips the activation flag.
	SetActive(ctx context.Context, userID string, active bool) error

	// UpdateMFASecret sets or clears (nil) the TOTP secret.
	UpdateMFASecret(ctx context.Context, userID string, secret *string) error

	// IsEmpty reports whether no users exist yet.
	IsEmpty(ctx context.Context) (bool, error)

	ApplyMigrations() error
	Ping(ctx context.Context) error
	Close() error
}
