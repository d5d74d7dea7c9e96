package service

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/domain"
)

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, pair, err := env.auth.Register(ctx, "alice", "alice@example.com", "correct horse")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{domain.RoleUser, domain.RoleAdmin}, first.Roles)
	require.True(t, env.sessions.ValidateToken(ctx, pair.AccessToken, first.ID))

	second, _, err := env.auth.Register(ctx, "bob", "bob@example.com", "battery staple")
	require.NoError(t, err)
	require.Equal(t, []string{domain.RoleUser}, second.Roles)

	t.Run("duplicate", func(t *testing.T) {
		_, _, err := env.auth.Register(ctx, "alice", "other@example.com", "long enough")
		require.ErrorIs(t, err, ErrUserExists)
	})

	t.Run("weak password", func(t *testing.T) {
		_, _, err := env.auth.Register(ctx, "carol", "carol@example.com", "short")
		require.ErrorIs(t, err, ErrWeakPassword)
	})
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice, _, err := env.auth.Register(ctx, "alice", "alice@example.com", "correct horse")
	require.NoError(t, err)

	t.Run("by username", func(t *testing.T) {
		pair, err := env.auth.Login(ctx, "alice", "correct horse", "")
		require.NoError(t, err)
		require.True(t, env.sessions.ValidateToken(ctx, pair.AccessToken, alice.ID))
	})

	t.Run("by email", func(t *testing.T) {
		_, err := env.auth.Login(ctx, " ALICE@example.com ", "correct horse", "")
		require.NoError(t, err)
	})

	t.Run("wrong password and unknown user look the same", func(t *testing.T) {
		_, err := env.auth.Login(ctx, "alice", "wrong horse", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)

		_, err = env.auth.Login(ctx, "mallory", "correct horse", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)

		_, err = env.auth.Login(ctx, "", "", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("inactive", func(t *testing.T) {
		require.NoError(t, env.users.SetActive(ctx, alice.ID, false))
		t.Cleanup(func() { _ = env.users.SetActive(ctx, alice.ID, true) })

		_, err := env.auth.Login(ctx, "alice", "correct horse", "")
		require.ErrorIs(t, err, ErrUserInactive)

		// Still no hint without the right password
		_, err = env.auth.Login(ctx, "alice", "wrong horse", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestLoginWithTOTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice, _, err := env.auth.Register(ctx, "alice", "alice@example.com", "correct horse")
	require.NoError(t, err)

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "sessionkeeper", AccountName: "alice"})
	require.NoError(t, err)
	secret := key.Secret()
	require.NoError(t, env.users.UpdateMFASecret(ctx, alice.ID, &secret))

	_, err = env.auth.Login(ctx, "alice", "correct horse", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.auth.Login(ctx, "alice", "correct horse", "000000x")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	_, err = env.auth.Login(ctx, "alice", "correct horse", code)
	require.NoError(t, err)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice, pair, err := env.auth.Register(ctx, "alice", "alice@example.com", "correct horse")
	require.NoError(t, err)

	require.NoError(t, env.auth.Logout(ctx, "Bearer "+pair.AccessToken))
	require.ErrorIs(t, env.sessions.Validate(ctx, pair.AccessToken, alice.ID), ErrRevoked)

	require.ErrorIs(t, env.auth.Logout(ctx, "  "), ErrMalformedToken)

	other, err := env.auth.Login(ctx, "alice", "correct horse", "")
	require.NoError(t, err)

	n, err := env.auth.LogoutAllDevices(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, 3, n) // first refresh plus the second pair
	require.False(t, env.sessions.ValidateToken(ctx, other.RefreshToken, alice.ID))
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice, pair, err := env.auth.Register(ctx, "alice", "alice@example.com", "correct horse")
	require.NoError(t, err)

	require.ErrorIs(t, env.auth.ChangePassword(ctx, alice.ID, "wrong horse", "new password"), ErrInvalidCredentials)
	require.ErrorIs(t, env.auth.ChangePassword(ctx, alice.ID, "correct horse", "short"), ErrWeakPassword)
	require.ErrorIs(t, env.auth.ChangePassword(ctx, "missing", "x", "new password"), ErrUserNotFound)

	// Failed attempts change nothing
	require.True(t, env.sessions.ValidateToken(ctx, pair.AccessToken, alice.ID))

	require.NoError(t, env.auth.ChangePassword(ctx, alice.ID, "correct horse", "new password"))
	require.ErrorIs(t, env.sessions.Validate(ctx, pair.AccessToken, alice.ID), ErrRevoked)

	_, err = env.auth.Login(ctx, "alice", "correct horse", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.auth.Login(ctx, "alice", "new password", "")
	require.NoError(t, err)
}

func TestDeactivateUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice, pair, err := env.auth.Register(ctx, "alice", "alice@example.com", "correct horse")
	require.NoError(t, err)

	n, err := env.auth.DeactivateUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.ErrorIs(t, env.sessions.Validate(ctx, pair.AccessToken, alice.ID), ErrRevoked)

	_, err = env.auth.Login(ctx, "alice", "correct horse", "")
	require.ErrorIs(t, err, ErrUserInactive)

	require.NoError(t, env.auth.ReactivateUser(ctx, alice.ID))
	_, err = env.auth.Login(ctx, "alice", "correct horse", "")
	require.NoError(t, err)

	// Reactivation does not bring old tokens back
	require.ErrorIs(t, env.sessions.Validate(ctx, pair.RefreshToken, alice.ID), ErrRevoked)

	_, err = env.auth.DeactivateUser(ctx, "missing")
	require.ErrorIs(t, err, ErrUserNotFound)
}
