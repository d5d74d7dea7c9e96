package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/domain"
	"github.com/aussiebroadwan/sessionkeeper/internal/auth/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	empty, err := s.IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	alice := domain.User{
		ID:           "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV",
		Username:     "alice",
		Email:        "Alice@Example.com",
		PasswordHash: "$argon2id$fake",
		Roles:        []string{domain.RoleUser, domain.RoleAdmin},
		Active:       true,
	}
	require.NoError(t, s.CreateUser(ctx, alice))

	t.Run("lookups", func(t *testing.T) {
		byID, err := s.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		require.Equal(t, "alice", byID.Username)
		require.Equal(t, []string{"user", "admin"}, byID.Roles)
		require.True(t, byID.Active)
		require.Nil(t, byID.MFASecret)
		require.False(t, byID.CreatedAt.IsZero())

		byName, err := s.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, alice.ID, byName.ID)

		byEmail, err := s.GetUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, alice.ID, byEmail.ID)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := s.GetUserByID(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.GetUserByUsername(ctx, "bob")
		require.ErrorIs(t, err, store.ErrNotFound)

		require.ErrorIs(t, s.SetActive(ctx, "missing", false), store.ErrNotFound)
	})

	t.Run("duplicates", func(t *testing.T) {
		dup := alice
		dup.ID = "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZW"
		require.ErrorIs(t, s.CreateUser(ctx, dup), store.ErrAlreadyExists)

		dup.Username = "alice2"
		dup.Email = "ALICE@example.com"
		require.ErrorIs(t, s.CreateUser(ctx, dup), store.ErrAlreadyExists)
	})

	t.Run("updates", func(t *testing.T) {
		require.NoError(t, s.UpdatePasswordHash(ctx, alice.ID, "$argon2id$new"))
		require.NoError(t, s.SetActive(ctx, alice.ID, false))

		secret := "JBSWY3DPEHPK3PXP"
		require.NoError(t, s.UpdateMFASecret(ctx, alice.ID, &secret))

		u, err := s.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		require.Equal(t, "$argon2id$new", u.PasswordHash)
		require.False(t, u.Active)
		require.True(t, u.MFAEnabled())

		require.NoError(t, s.UpdateMFASecret(ctx, alice.ID, nil))
		u, err = s.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		require.False(t, u.MFAEnabled())
	})

	empty, err = s.IsEmpty(ctx)
	require.NoError(t, err)
	require.False(t, empty)
}

func TestApplyMigrationsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}
