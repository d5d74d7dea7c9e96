package jwtx

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidTTL is returned when Issue is asked for a non-positive lifetime.
var ErrInvalidTTL = errors.New("jwtx: ttl must be positive")

// Issue signs a token for subject that expires ttl from now. Caller claims are
// copied into the payload; registered claims (sub, iat, exp, jti, iss) always
// come from the codec. Every token gets a fresh "jti" so two tokens minted for
// the same subject in the same second never collide.
func (c *Codec) Issue(subject string, claims map[string]any, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidClaim)
	}
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}

	now := c.now()

	payload := jwt.MapClaims{}
	for k, v := range claims {
		if _, ok := reserved[k]; ok {
			continue
		}
		payload[k] = v
	}

	payload[ClaimSubject] = subject
	payload[ClaimIssuedAt] = jwt.NewNumericDate(now)
	payload[ClaimExpiresAt] = jwt.NewNumericDate(now.Add(ttl))
	payload[ClaimID] = c.ids.NewAt(now).String()
	if c.issuer != "" {
		payload[ClaimIssuer] = c.issuer
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, nil
}

// IssueClaims is a typed wrapper over Issue for the claims the session layer
// always sets.
func (c *Codec) IssueClaims(subject, userID, username, kind string, roles []string, extra map[string]any, ttl time.Duration) (string, error) {
	claims := make(map[string]any, len(extra)+4)
	maps.Copy(claims, extra)

	claims[ClaimRoles] = roles
	claims[ClaimUsername] = username
	claims[ClaimUserID] = userID
	claims[ClaimKind] = kind

	return c.Issue(subject, claims, ttl)
}
