package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/domain"
	"github.com/aussiebroadwan/sessionkeeper/pkg/cryptox"
	"github.com/aussiebroadwan/sessionkeeper/pkg/slogx"
)

// DefaultPasswordResetTTL is how long a reset token can be redeemed.
const DefaultPasswordResetTTL = 30 * time.Minute

// resetTokenSize is the number of random bytes behind a reset token.
const resetTokenSize = 32

// ResetNotifier delivers a password reset token to the account owner.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, user domain.User, token string, ttl time.Duration) error
}

// LogNotifier writes the reset link to the request logger instead of
// sending mail. Anyone who can read the logs can use the link.
type LogNotifier struct {
	// LinkBase is prefixed to the token, e.g.
	// "https://app.example.com/reset-password?token=".
	LinkBase string
}

func (n LogNotifier) SendPasswordReset(ctx context.Context, user domain.User, token string, ttl time.Duration) error {
	slogx.FromContext(ctx).Info("password reset link",
		"user_id", user.ID,
		"email", user.Email,
		"reset_link", n.LinkBase+token,
		"expires_in", ttl.String(),
	)
	return nil
}

func (s *AuthService) resetTTL() time.Duration {
	if s.ResetTTL > 0 {
		return s.ResetTTL
	}
	return DefaultPasswordResetTTL
}

func (s *AuthService) notifier() ResetNotifier {
	if s.Notifier != nil {
		return s.Notifier
	}
	return LogNotifier{}
}

// RequestPasswordReset mints a single use reset token for the account
// registered under email and hands it to the notifier. Unknown and
// deactivated accounts get the same nil result as a known one, and a
// notifier failure is only logged, so the caller learns nothing about
// which addresses exist.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	l := slogx.FromContext(ctx)

	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}

	user, err := s.Users.GetUserByEmail(ctx, email)
	switch {
	case isNotFound(err):
		l.Info("password reset for unknown email")
		return nil
	case err != nil:
		return fromStore(err)
	}

	if !user.Active {
		l.Info("password reset for deactivated account", "user_id", user.ID)
		return nil
	}

	token, err := cryptox.GenerateSecret(resetTokenSize)
	if err != nil {
		return err
	}

	ttl := s.resetTTL()
	if err := s.Resets.SaveResetToken(ctx, token, user.ID, ttl); err != nil {
		return fromStore(err)
	}

	if err := s.notifier().SendPasswordReset(ctx, user, token, ttl); err != nil {
		l.Error("failed to deliver password reset", "user_id", user.ID, "error", err)
		return nil
	}

	l.Info("password reset requested", "user_id", user.ID, "token_fp", cryptox.FingerprintToken(token))
	return nil
}

// ConfirmPasswordReset redeems token, sets the new password and revokes
// every token the user holds. The strength check runs first so a rejected
// password does not burn the token.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, next string) error {
	if utf8.RuneCountInString(next) < MinPasswordLength {
		return ErrWeakPassword
	}

	userID, err := s.Resets.ConsumeResetToken(ctx, strings.TrimSpace(token))
	switch {
	case isNotFound(err):
		return ErrInvalidResetToken
	case err != nil:
		return fromStore(err)
	}

	hash, err := s.Hasher.Hash(next)
	if err != nil {
		return err
	}

	err = s.Users.UpdatePasswordHash(ctx, userID, hash)
	switch {
	case isNotFound(err):
		return ErrInvalidResetToken
	case err != nil:
		return fromStore(err)
	}

	n, err := s.Sessions.RevokeAllUserTokens(ctx, userID)
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("password reset completed", "user_id", userID, "revoked", n)
	return nil
}
