package domain

import (
	"slices"
	"time"
)

// RedactedToken replaces raw token values in anything leaving the service.
const RedactedToken = "[PROTECTED]"

// TokenKind is the purpose a token was minted for.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// TokenRecord is the store side record of one issued token. TokenID is the
// signed token value itself, so the record is found by whatever the caller
// presents as a bearer credential.
type TokenRecord struct {
	TokenID    string    `cbor:"1,keyasint"`
	UserID     string    `cbor:"2,keyasint"`
	Username   string    `cbor:"3,keyasint"`
	Roles      []string  `cbor:"4,keyasint,omitempty"` // snapshot at issue time
	IssuedAt   time.Time `cbor:"5,keyasint"`
	ExpiryDate time.Time `cbor:"6,keyasint"`
	Revoked    bool      `cbor:"7,keyasint"`

	// SessionID is the token's "jti" claim. It is safe to show to the owner
	// and is what session management endpoints address tokens by.
	SessionID string    `cbor:"8,keyasint,omitempty"`
	Kind      TokenKind `cbor:"9,keyasint,omitempty"`

	// PairID is shared by the access and refresh token of one login.
	PairID string `cbor:"10,keyasint,omitempty"`
}

// Expired reports whether now is at or past the record's expiry.
func (r TokenRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiryDate)
}

// Active means usable at now: not revoked and not expired.
func (r TokenRecord) Active(now time.Time) bool {
	return !r.Revoked && !r.Expired(now)
}

// Redacted returns a copy safe to hand to clients.
func (r TokenRecord) Redacted() TokenRecord {
	r.TokenID = RedactedToken
	r.Roles = slices.Clone(r.Roles)
	return r
}

// TokenPair is what login, registration and refresh hand back.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"` // access token lifetime in seconds
}

// Principal is the authenticated caller behind a validated access token.
type Principal struct {
	Subject   string
	UserID    string
	Username  string
	Roles     []string
	SessionID string
	ExpiresAt time.Time
}

// HasRole reports whether role is among the principal's roles.
func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}
