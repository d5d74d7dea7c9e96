package service

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestMFALifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mfa := &MFAService{Users: env.users, Sessions: env.sessions, Issuer: "sessionkeeper"}

	alice, pair, err := env.auth.Register(ctx, "alice", "alice@example.com", "correct horse")
	require.NoError(t, err)
	other, err := env.auth.Login(ctx, "alice", "correct horse", "")
	require.NoError(t, err)

	_, err = mfa.EnrollTOTP(ctx, "missing")
	require.ErrorIs(t, err, ErrUserNotFound)

	enrol, err := mfa.EnrollTOTP(ctx, alice.ID)
	require.NoError(t, err)
	require.NotEmpty(t, enrol.Secret)
	require.Contains(t, enrol.URL, "otpauth://totp/")
	require.Equal(t, "alice", enrol.Account)

	require.ErrorIs(t, mfa.RemoveMFA(ctx, alice.ID, "123456"), ErrMFANotEnabled)
	require.ErrorIs(t, mfa.ConfirmTOTP(ctx, alice.ID, pair.AccessToken, enrol.Secret, "nope"), ErrInvalidTOTPCode)

	code, err := totp.GenerateCode(enrol.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, mfa.ConfirmTOTP(ctx, alice.ID, pair.AccessToken, enrol.Secret, code))

	// The confirming session survives with its refresh token, the other
	// device is logged out
	require.True(t, env.sessions.ValidateToken(ctx, pair.AccessToken, alice.ID))
	require.True(t, env.sessions.ValidateToken(ctx, pair.RefreshToken, alice.ID))
	require.ErrorIs(t, env.sessions.Validate(ctx, other.AccessToken, alice.ID), ErrRevoked)
	require.ErrorIs(t, env.sessions.Validate(ctx, other.RefreshToken, alice.ID), ErrRevoked)

	_, err = mfa.EnrollTOTP(ctx, alice.ID)
	require.ErrorIs(t, err, ErrMFAAlreadyEnabled)

	_, err = env.auth.Login(ctx, "alice", "correct horse", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	require.ErrorIs(t, mfa.RemoveMFA(ctx, alice.ID, "000000x"), ErrInvalidTOTPCode)
	code, err = totp.GenerateCode(enrol.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, mfa.RemoveMFA(ctx, alice.ID, code))

	_, err = env.auth.Login(ctx, "alice", "correct horse", "")
	require.NoError(t, err)
}
