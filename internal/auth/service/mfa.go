package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/domain"
	"github.com/aussiebroadwan/sessionkeeper/internal/auth/store"
	"github.com/aussiebroadwan/sessionkeeper/pkg/slogx"
)

var (
	ErrInvalidTOTPCode   = errors.New("invalid_totp_code")
	ErrMFANotEnabled     = errors.New("mfa_not_enabled")
	ErrMFAAlreadyEnabled = errors.New("mfa_already_enabled")
)

// MFAService manages the optional TOTP second factor checked by
// AuthService.Login.
type MFAService struct {
	Users    store.Users
	Sessions *SessionService
	Issuer   string
}

// EnrollTOTP generates a secret for the user. MFA is not on until
// ConfirmTOTP succeeds with a code from it.
func (s *MFAService) EnrollTOTP(ctx context.Context, userID string) (domain.MFAEnrollment, error) {
	user, err := s.user(ctx, userID)
	if err != nil {
		return domain.MFAEnrollment{}, err
	}
	if user.MFAEnabled() {
		return domain.MFAEnrollment{}, ErrMFAAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Username,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("service: generate totp key: %w", err)
	}

	return domain.MFAEnrollment{
		Secret:  key.Secret(),
		URL:     key.URL(),
		Issuer:  s.Issuer,
		Account: user.Username,
	}, nil
}

// ConfirmTOTP turns MFA on once code matches secret. Every other session
// of the user is revoked, since they were established with one factor.
func (s *MFAService) ConfirmTOTP(ctx context.Context, userID, currentToken, secret, code string) error {
	user, err := s.user(ctx, userID)
	if err != nil {
		return err
	}
	if user.MFAEnabled() {
		return ErrMFAAlreadyEnabled
	}

	secret = strings.TrimSpace(secret)
	if secret == "" || !totp.Validate(strings.TrimSpace(code), secret) {
		return ErrInvalidTOTPCode
	}

	if err := s.Users.UpdateMFASecret(ctx, userID, &secret); err != nil {
		return fromStore(err)
	}
	slogx.FromContext(ctx).Info("mfa enabled", "user_id", userID)

	if _, err := s.Sessions.RevokeAllExceptCurrent(ctx, userID, currentToken); err != nil {
		return err
	}
	return nil
}

// RemoveMFA turns MFA off after checking a current code.
func (s *MFAService) RemoveMFA(ctx context.Context, userID, code string) error {
	user, err := s.user(ctx, userID)
	if err != nil {
		return err
	}
	if !user.MFAEnabled() {
		return ErrMFANotEnabled
	}
	if !totp.Validate(strings.TrimSpace(code), *user.MFASecret) {
		return ErrInvalidTOTPCode
	}

	if err := s.Users.UpdateMFASecret(ctx, userID, nil); err != nil {
		return fromStore(err)
	}

	slogx.FromContext(ctx).Info("mfa disabled", "user_id", userID)
	return nil
}

func (s *MFAService) user(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.Users.GetUserByID(ctx, userID)
	switch {
	case isNotFound(err):
		return domain.User{}, ErrUserNotFound
	case err != nil:
		return domain.User{}, fromStore(err)
	}
	return user, nil
}
