package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/sessionkeeper/pkg/slogx"
)

// Authenticator resolves a bearer token into an Identity. Implementations
// are expected to consult revocation state, not only the signature.
type Authenticator interface {
	AuthenticateBearer(ctx context.Context, token string) (Identity, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, token string) (Identity, error)

func (f AuthenticatorFunc) AuthenticateBearer(ctx context.Context, token string) (Identity, error) {
	return f(ctx, token)
}

// ErrorWriter renders an authentication failure. The default writes a
// bare RFC 6750 challenge.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if len(authz) < 7 || !strings.EqualFold(authz[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(authz[7:])
	return tok, tok != ""
}

// AuthnMiddleware requires a valid bearer token and stores the resulting
// Identity in the request context. onErr may be nil.
func AuthnMiddleware(a Authenticator, onErr ErrorWriter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			id, err := a.AuthenticateBearer(ctx, raw)
			if err != nil {
				slogx.FromContext(ctx).Info("bearer rejected", "reason", err.Error())
				if onErr != nil {
					onErr(w, r, err)
					return
				}
				writeBearerError(w, "token verification failed")
				return
			}
			id.Token = raw

			ctx = WithIdentity(ctx, id)
			ctx = slogx.With(ctx, "user_id", id.UserID, "session_id", id.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RFC 6750 error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	w.WriteHeader(http.StatusUnauthorized)
}
