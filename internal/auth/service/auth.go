package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/domain"
	"github.com/aussiebroadwan/sessionkeeper/internal/auth/store"
	"github.com/aussiebroadwan/sessionkeeper/pkg/idx"
	"github.com/aussiebroadwan/sessionkeeper/pkg/slogx"
)

// MinPasswordLength is the shortest password Register and ChangePassword
// accept.
const MinPasswordLength = 8

// PasswordHasher hashes new passwords and checks presented ones.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Matches(password, encoded string) bool
}

// AuthService covers the account flows that end in issuing or revoking
// tokens: login, registration, logout, credential changes and password
// reset.
type AuthService struct {
	Users    store.Users
	Sessions *SessionService
	Hasher   PasswordHasher

	// Password reset. A nil Notifier logs the link; zero ResetTTL means
	// DefaultPasswordResetTTL.
	Resets   store.ResetTokens
	Notifier ResetNotifier
	ResetTTL time.Duration
}

// Login authenticates by username, or by email when identifier contains
// "@", and issues a token pair. Users with MFA must also pass a current
// TOTP code. Unknown users and wrong passwords both return
// ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, identifier, password, otpCode string) (domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	// 1. Resolve the account
	user, err := s.lookup(ctx, strings.TrimSpace(identifier))
	switch {
	case isNotFound(err):
		l.Info("login for unknown account")
		return domain.TokenPair{}, ErrInvalidCredentials
	case err != nil:
		return domain.TokenPair{}, fromStore(err)
	}

	// 2. Password
	if !s.Hasher.Matches(password, user.PasswordHash) {
		l.Info("login with wrong password", "user_id", user.ID)
		return domain.TokenPair{}, ErrInvalidCredentials
	}

	// 3. Second factor
	if user.MFAEnabled() && !totp.Validate(strings.TrimSpace(otpCode), *user.MFASecret) {
		l.Info("login with bad otp", "user_id", user.ID)
		return domain.TokenPair{}, ErrInvalidCredentials
	}

	// 4. Only now reveal the account is disabled
	if !user.Active {
		return domain.TokenPair{}, ErrUserInactive
	}

	pair, err := s.Sessions.IssueTokenPair(ctx, user)
	if err != nil {
		return domain.TokenPair{}, err
	}

	l.Info("user logged in", "user_id", user.ID)
	return pair, nil
}

func (s *AuthService) lookup(ctx context.Context, identifier string) (domain.User, error) {
	if identifier == "" {
		return domain.User{}, store.ErrNotFound
	}
	if strings.Contains(identifier, "@") {
		return s.Users.GetUserByEmail(ctx, identifier)
	}
	return s.Users.GetUserByUsername(ctx, identifier)
}

// Register creates an active account with the user role and logs it in.
// The very first account also gets the admin role.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (domain.User, domain.TokenPair, error) {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return domain.User{}, domain.TokenPair{}, ErrWeakPassword
	}

	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return domain.User{}, domain.TokenPair{}, err
	}

	first, err := s.Users.IsEmpty(ctx)
	if err != nil {
		return domain.User{}, domain.TokenPair{}, fromStore(err)
	}

	roles := []string{domain.RoleUser}
	if first {
		roles = append(roles, domain.RoleAdmin)
	}

	user := domain.User{
		ID:           idx.New().String(),
		Username:     strings.TrimSpace(username),
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		Roles:        roles,
		Active:       true,
	}

	if err := s.Users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, domain.TokenPair{}, ErrUserExists
		}
		return domain.User{}, domain.TokenPair{}, fromStore(err)
	}

	pair, err := s.Sessions.IssueTokenPair(ctx, user)
	if err != nil {
		return domain.User{}, domain.TokenPair{}, err
	}

	slogx.FromContext(ctx).Info("user registered", "user_id", user.ID, "admin", first)
	return user, pair, nil
}

// Logout revokes the presented token. A "Bearer " prefix is tolerated.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return ErrMalformedToken
	}
	return s.Sessions.RevokeToken(ctx, token)
}

// LogoutAllDevices revokes every token the user holds.
func (s *AuthService) LogoutAllDevices(ctx context.Context, userID string) (int, error) {
	return s.Sessions.RevokeAllUserTokens(ctx, userID)
}

// ChangePassword swaps the password after checking the current one, then
// revokes every token so other devices have to log in again.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.Users.GetUserByID(ctx, userID)
	switch {
	case isNotFound(err):
		return ErrUserNotFound
	case err != nil:
		return fromStore(err)
	}

	if !s.Hasher.Matches(current, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if utf8.RuneCountInString(next) < MinPasswordLength {
		return ErrWeakPassword
	}

	hash, err := s.Hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.Users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return fromStore(err)
	}

	_, err = s.Sessions.RevokeAllUserTokens(ctx, userID)
	return err
}

// DeactivateUser disables the account and revokes all of its tokens.
func (s *AuthService) DeactivateUser(ctx context.Context, userID string) (int, error) {
	if err := s.setActive(ctx, userID, false); err != nil {
		return 0, err
	}
	return s.Sessions.RevokeAllUserTokens(ctx, userID)
}

// ReactivateUser re-enables the account. Old tokens stay revoked.
func (s *AuthService) ReactivateUser(ctx context.Context, userID string) error {
	return s.setActive(ctx, userID, true)
}

func (s *AuthService) setActive(ctx context.Context, userID string, active bool) error {
	err := s.Users.SetActive(ctx, userID, active)
	switch {
	case isNotFound(err):
		return ErrUserNotFound
	case err != nil:
		return fromStore(err)
	}

	slogx.FromContext(ctx).Info("user activation changed", "user_id", userID, "active", active)
	return nil
}
