package authsdk

import "time"

// ============================================================================
// Error bodies
// ============================================================================

// ValidationErrorResponse is returned with 400 when a request body fails
// field validation. Details maps the JSON field name to the failed rule.
type ValidationErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// ============================================================================
// Auth
// ============================================================================

// RegisterRequest creates an account. The first account registered on a
// fresh directory is also made admin.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// LoginRequest authenticates by username, or by email when Identifier
// contains "@". OTP is only needed for accounts with MFA.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Password   string `json:"password" validate:"required,max=128"`
	OTP        string `json:"otp,omitempty" validate:"omitempty,numeric,len=6"`
}

// RefreshRequest rotates a refresh token. The presented token is consumed.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LogoutRequest optionally names the refresh token to drop alongside the
// bearer access token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=128"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128,nefield=CurrentPassword"`
}

// PasswordResetRequest asks for a reset link for the account registered
// under Email. The answer is the same whether or not such an account
// exists.
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// PasswordResetConfirmRequest redeems a reset token. Tokens are single use.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token" validate:"required,max=128"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// TokenResponse is the pair handed out by register, login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`
}

type RegisterResponse struct {
	UserID string `json:"user_id"`
	TokenResponse
}

// ============================================================================
// Sessions
// ============================================================================

// SessionInfo describes one live token. The token value itself is never
// returned; Token is always "[PROTECTED]".
type SessionInfo struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	Kind      string    `json:"kind"`
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// PairID is shared by the access and refresh token of one login.
	PairID  string `json:"pair_id,omitempty"`
	Current bool   `json:"current"`
}

type SessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

// RevokedResponse reports how many tokens a bulk call revoked.
type RevokedResponse struct {
	Revoked int `json:"revoked"`
}

// ============================================================================
// MFA
// ============================================================================

type TOTPEnrollResponse struct {
	Secret  string `json:"secret"`
	URL     string `json:"url"`
	Issuer  string `json:"issuer"`
	Account string `json:"account"`
}

// TOTPConfirmRequest turns MFA on for the secret returned by enroll.
type TOTPConfirmRequest struct {
	Secret string `json:"secret" validate:"required,max=128"`
	Code   string `json:"code" validate:"required,numeric,len=6"`
}

type TOTPCodeRequest struct {
	Code string `json:"code" validate:"required,numeric,len=6"`
}

// ============================================================================
// Health
// ============================================================================

type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports each backing store as "ok" or "error: ...".
type HealthChecks struct {
	TokenStore string `json:"token_store"`
	UserStore  string `json:"user_store"`
}
