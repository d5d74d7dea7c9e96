package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// refreshSkew rotates the pair this long before the access token expires.
const refreshSkew = 30 * time.Second

// ErrNoRefreshToken is returned when the access token has expired and the
// session has nothing to rotate with.
var ErrNoRefreshToken = errors.New("authsdk: access token expired and no refresh token available")

// Session is a logged in user. It is safe for concurrent use; concurrent
// callers share a single rotation.
type Session struct {
	client *SDKClient

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// NewSession wraps tokens obtained elsewhere, for example ones persisted
// from an earlier run.
func (c *SDKClient) NewSession(tokens *TokenResponse) *Session {
	s := &Session{client: c}
	s.set(tokens)
	return s
}

func (s *Session) set(tokens *TokenResponse) {
	s.accessToken = tokens.AccessToken
	s.refreshToken = tokens.RefreshToken
	s.expiresAt = s.client.now().Add(time.Duration(tokens.ExpiresIn)*time.Second - refreshSkew)
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token. It changes after every
// rotation.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// Refresh rotates the pair now, regardless of expiry.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotateLocked(ctx)
}

func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.client.now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have rotated while we waited
	if s.client.now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if err := s.rotateLocked(ctx); err != nil {
		return "", err
	}
	return s.accessToken, nil
}

func (s *Session) rotateLocked(ctx context.Context) error {
	if s.refreshToken == "" {
		return ErrNoRefreshToken
	}

	tokens, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}
	s.set(tokens)
	return nil
}

// Logout revokes the access token and the session's refresh token.
func (s *Session) Logout(ctx context.Context) error {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/auth/logout", LogoutRequest{
		RefreshToken: s.RefreshToken(),
	})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// LogoutAll revokes every token of the user, this session's included.
func (s *Session) LogoutAll(ctx context.Context) (int, error) {
	return s.revokedCall(ctx, http.MethodPost, "/v1/auth/logout-all", nil)
}

// ChangePassword changes the password. The server revokes every token of
// the user, so this session is unusable afterwards.
func (s *Session) ChangePassword(ctx context.Context, current, next string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/auth/password", ChangePasswordRequest{
		CurrentPassword: current,
		NewPassword:     next,
	})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// Deactivate disables the caller's own account and revokes every token it
// holds, this session's included. Only an admin can reactivate it.
func (s *Session) Deactivate(ctx context.Context) (int, error) {
	return s.revokedCall(ctx, http.MethodPost, "/v1/auth/deactivate", nil)
}

// ListSessions lists the user's live tokens, newest first.
func (s *Session) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/sessions", nil)
	if err != nil {
		return nil, err
	}

	var out SessionsResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// RevokeSession revokes one of the user's tokens by its SessionInfo.ID.
func (s *Session) RevokeSession(ctx context.Context, id string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// RevokeOtherSessions revokes every token of the user except this
// session's access and refresh token.
func (s *Session) RevokeOtherSessions(ctx context.Context) (int, error) {
	return s.revokedCall(ctx, http.MethodDelete, "/v1/sessions", nil)
}

// EnrollTOTP returns a new secret. MFA stays off until ConfirmTOTP.
func (s *Session) EnrollTOTP(ctx context.Context) (*TOTPEnrollResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/mfa/totp/enroll", nil)
	if err != nil {
		return nil, err
	}

	var out TOTPEnrollResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmTOTP enables MFA. Every other session of the user is revoked; this
// one keeps its refresh token.
func (s *Session) ConfirmTOTP(ctx context.Context, secret, code string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/mfa/totp/confirm", TOTPConfirmRequest{
		Secret: secret,
		Code:   code,
	})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

func (s *Session) RemoveTOTP(ctx context.Context, code string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodDelete, "/v1/mfa/totp", TOTPCodeRequest{Code: code})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// RevokeUserSessions revokes every token of another user. Requires admin.
func (s *Session) RevokeUserSessions(ctx context.Context, userID string) (int, error) {
	return s.revokedCall(ctx, http.MethodDelete, "/v1/admin/users/"+url.PathEscape(userID)+"/sessions", nil)
}

// DeactivateUser disables an account and revokes its tokens. Requires admin.
func (s *Session) DeactivateUser(ctx context.Context, userID string) (int, error) {
	return s.revokedCall(ctx, http.MethodPost, "/v1/admin/users/"+url.PathEscape(userID)+"/deactivate", nil)
}

// ReactivateUser re-enables an account. Requires admin.
func (s *Session) ReactivateUser(ctx context.Context, userID string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/admin/users/"+url.PathEscape(userID)+"/reactivate", nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

func (s *Session) revokedCall(ctx context.Context, method, path string, v any) (int, error) {
	resp, err := s.doAuthRequest(ctx, method, path, v)
	if err != nil {
		return 0, err
	}

	var out RevokedResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return 0, err
	}
	return out.Revoked, nil
}
