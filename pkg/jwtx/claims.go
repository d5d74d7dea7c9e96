package jwtx

import (
	"time"
)

// Default token TTLs. Services override them through configuration.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Claim names the codec owns. Callers may not override these through the
// claims map passed to Issue.
const (
	ClaimSubject   = "sub"
	ClaimIssuedAt  = "iat"
	ClaimExpiresAt = "exp"
	ClaimID        = "jti"
	ClaimIssuer    = "iss"
)

// Custom claims shared between the codec and the session layer.
const (
	ClaimRoles    = "roles"
	ClaimUsername = "username"
	ClaimUserID   = "uid"

	// ClaimKind carries the token purpose ("access" or "refresh").
	ClaimKind = "token_use"

	// ClaimPairID ties the access and refresh token of one login together.
	ClaimPairID = "pid"
)

// Token kinds stored under ClaimKind.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

var reserved = map[string]struct{}{
	ClaimSubject:   {},
	ClaimIssuedAt:  {},
	ClaimExpiresAt: {},
	ClaimID:        {},
	ClaimIssuer:    {},
}

// Claims is the decoded payload of a verified token.
type Claims struct {
	Subject   string
	Issuer    string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time

	// Extra holds every non-registered claim exactly as decoded from JSON.
	Extra map[string]any
}

// Roles returns the "roles" claim. Order is not meaningful.
func (c Claims) Roles() []string {
	switch v := c.Extra[ClaimRoles].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, r := range v {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Username returns the "username" claim, or "".
func (c Claims) Username() string { return c.stringClaim(ClaimUsername) }

// UserID returns the "uid" claim, or "".
func (c Claims) UserID() string { return c.stringClaim(ClaimUserID) }

// Kind returns the "token_use" claim. Empty means the issuer did not tag the
// token, which is the case for tokens minted before the claim existed.
func (c Claims) Kind() string { return c.stringClaim(ClaimKind) }

// PairID returns the "pid" claim, or "" for tokens issued on their own.
func (c Claims) PairID() string { return c.stringClaim(ClaimPairID) }

// Remaining reports how long the token has left at now. Negative once expired.
func (c Claims) Remaining(now time.Time) time.Duration {
	return c.ExpiresAt.Sub(now)
}

// Expired reports whether now is at or past the expiry claim.
func (c Claims) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

func (c Claims) stringClaim(name string) string {
	s, _ := c.Extra[name].(string)
	return s
}
