package service

import (
	"errors"
	"fmt"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/store"
	"github.com/aussiebroadwan/sessionkeeper/pkg/jwtx"
)

// Token and session failures. Callers match these with errors.Is; the HTTP
// layer maps them to status codes. Only ErrStoreUnavailable is worth a retry.
var (
	ErrMalformedToken   = errors.New("malformed_token")
	ErrSignatureInvalid = errors.New("signature_invalid")
	ErrExpired          = errors.New("token_expired")
	ErrRevoked          = errors.New("token_revoked")
	ErrNotARefreshToken = errors.New("not_a_refresh_token")
	ErrNotAnAccessToken = errors.New("not_an_access_token")
	ErrUserNotFound     = errors.New("user_not_found")
	ErrStoreUnavailable = errors.New("store_unavailable")
	ErrSessionNotFound  = errors.New("session_not_found")
)

// Login and account management failures.
var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrUserInactive       = errors.New("user_inactive")
	ErrUserExists         = errors.New("user_exists")
	ErrWeakPassword       = errors.New("weak_password")
	ErrInvalidResetToken  = errors.New("invalid_reset_token")
)

// tokenKinds lists the sentinels a token check can end in, in the order
// metrics and logs should prefer them.
var tokenKinds = []error{
	ErrMalformedToken,
	ErrSignatureInvalid,
	ErrExpired,
	ErrRevoked,
	ErrNotARefreshToken,
	ErrNotAnAccessToken,
	ErrUserNotFound,
	ErrUserInactive,
	ErrStoreUnavailable,
}

// fromCodec maps a codec failure onto the token taxonomy.
func fromCodec(err error) error {
	if errors.Is(err, jwtx.ErrInvalidSig) {
		return ErrSignatureInvalid
	}
	return ErrMalformedToken
}

// fromStore maps a store failure onto the taxonomy, keeping the cause for
// logs. A record that will not decode can never be honoured, so it reads as
// revoked; everything else is ErrStoreUnavailable.
func fromStore(err error) error {
	switch {
	case err == nil:
		return nil
	case isCorrupt(err):
		return fmt.Errorf("%w: %v", ErrRevoked, err)
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func isCorrupt(err error) bool { return errors.Is(err, store.ErrCorrupt) }

// isNotFound reports a missing record or user.
func isNotFound(err error) bool { return errors.Is(err, store.ErrNotFound) }

// kindLabel names err for metrics: "ok", one of the taxonomy strings, or
// "error".
func kindLabel(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range tokenKinds {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "error"
}
