package jwtx

import (
	"errors"
	"maps"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed    = errors.New("jwtx: malformed token")
	ErrInvalidSig   = errors.New("jwtx: invalid signature")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// Parse verifies the token signature and decodes its claims. Expiry is NOT
// checked here; use IsExpired or Claims.Expired for that so callers can tell
// a forged token apart from a stale one.
//
// Structural problems (wrong segment count, bad base64, bad JSON, missing
// sub/iat/exp) return ErrMalformed. A MAC mismatch or any algorithm other
// than HS256 returns ErrInvalidSig.
func (c *Codec) Parse(token string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	mc := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(token, mc, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return Claims{}, ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return Claims{}, ErrInvalidSig
	default:
		return Claims{}, ErrMalformed
	}

	return claimsFromMap(mc)
}

// IsExpired reports whether token's expiry claim has passed. It never talks
// to storage. Tokens that fail to parse are treated as expired.
func (c *Codec) IsExpired(token string) bool {
	claims, err := c.Parse(token)
	if err != nil {
		return true
	}
	return claims.Expired(c.now())
}

func claimsFromMap(mc jwt.MapClaims) (Claims, error) {
	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return Claims{}, ErrMalformed
	}

	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, ErrMalformed
	}

	iat, err := mc.GetIssuedAt()
	if err != nil || iat == nil {
		return Claims{}, ErrMalformed
	}

	iss, _ := mc.GetIssuer()
	jti, _ := mc[ClaimID].(string)

	extra := maps.Clone(map[string]any(mc))
	for k := range reserved {
		delete(extra, k)
	}

	return Claims{
		Subject:   sub,
		Issuer:    iss,
		ID:        jti,
		IssuedAt:  iat.Time.UTC(),
		ExpiresAt: exp.Time.UTC(),
		Extra:     extra,
	}, nil
}
