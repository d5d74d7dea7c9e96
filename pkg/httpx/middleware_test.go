package httpx_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sessionkeeper/pkg/httpx"
)

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), tag("outer"), tag("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		header string
		want   string
		ok     bool
	}{
		"missing":     {"", "", false},
		"basic":       {"Basic dXNlcjpwdw==", "", false},
		"empty":       {"Bearer   ", "", false},
		"bearer":      {"Bearer abc.def.ghi", "abc.def.ghi", true},
		"lower case":  {"bearer abc", "abc", true},
		"extra space": {"Bearer  abc ", "abc", true},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			got, ok := httpx.BearerToken(req)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

var errBadToken = errors.New("token_revoked")

func fakeAuthenticator() httpx.Authenticator {
	return httpx.AuthenticatorFunc(func(_ context.Context, token string) (httpx.Identity, error) {
		switch token {
		case "alice-token":
			return httpx.Identity{Subject: "u1", UserID: "u1", Username: "alice", Roles: []string{"user"}, SessionID: "s1"}, nil
		case "admin-token":
			return httpx.Identity{Subject: "u2", UserID: "u2", Username: "root", Roles: []string{"user", "admin"}}, nil
		}
		return httpx.Identity{}, errBadToken
	})
}

func TestAuthnMiddleware(t *testing.T) {
	var got httpx.Identity
	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = httpx.IdentityFromContext(r.Context())
		require.Equal(t, got.UserID, r.Context().Value(httpx.CtxKeyUserID))
		w.WriteHeader(http.StatusOK)
	})

	call := func(h http.Handler, authz string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
		if authz != "" {
			req.Header.Set("Authorization", authz)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	h := httpx.AuthnMiddleware(fakeAuthenticator(), nil)(capture)

	t.Run("missing token", func(t *testing.T) {
		rec := call(h, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
	})

	t.Run("rejected token", func(t *testing.T) {
		rec := call(h, "Bearer nope")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("custom error writer", func(t *testing.T) {
		var seen error
		custom := httpx.AuthnMiddleware(fakeAuthenticator(), func(w http.ResponseWriter, _ *http.Request, err error) {
			seen = err
			w.WriteHeader(http.StatusTeapot)
		})(capture)

		rec := call(custom, "Bearer nope")
		require.Equal(t, http.StatusTeapot, rec.Code)
		require.ErrorIs(t, seen, errBadToken)
	})

	t.Run("valid token", func(t *testing.T) {
		rec := call(h, "Bearer alice-token")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "u1", got.UserID)
		require.Equal(t, "s1", got.SessionID)
		require.Equal(t, "alice-token", got.Token)
		require.True(t, got.HasRole("user"))
		require.False(t, got.HasRole("admin"))
	})
}

func TestRoleMiddleware(t *testing.T) {
	authn := httpx.AuthnMiddleware(fakeAuthenticator(), nil)

	call := func(h http.Handler, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	anyAdmin := httpx.Chain(okHandler(), authn, httpx.RequireAnyRole("admin", "auditor"))
	require.Equal(t, http.StatusOK, call(anyAdmin, "admin-token").Code)

	rec := call(anyAdmin, "alice-token")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.JSONEq(t,
		`{"error":"insufficient_role","error_description":"the access token does not carry the required role"}`,
		rec.Body.String())
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), `scope="admin auditor"`)

	allOf := httpx.Chain(okHandler(), authn, httpx.RequireAllRoles("user", "admin"))
	require.Equal(t, http.StatusOK, call(allOf, "admin-token").Code)
	require.Equal(t, http.StatusForbidden, call(allOf, "alice-token").Code)

	// Without authn in front there is no identity at all
	bare := httpx.RequireAnyRole("user")(okHandler())
	rec = httptest.NewRecorder()
	bare.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

type signup struct {
	Username string `json:"username" validate:"required,min=3"`
	Email    string `json:"email" validate:"required,email"`
}

func TestDecodeJSON(t *testing.T) {
	decode := func(body string) (signup, error) {
		var s signup
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		return s, httpx.DecodeJSON(req, &s)
	}

	s, err := decode(`{"username":"alice","email":"alice@example.com"}`)
	require.NoError(t, err)
	require.Equal(t, "alice", s.Username)

	_, err = decode(`{"username":"alice","email":"alice@example.com","admin":true}`)
	require.ErrorIs(t, err, httpx.ErrBadJSON)

	_, err = decode(`{"username":"alice"} {}`)
	require.ErrorIs(t, err, httpx.ErrBadJSON)

	_, err = decode(`[1,2]`)
	require.ErrorIs(t, err, httpx.ErrBadJSON)

	_, err = decode(`{"username":"al","email":"nope"}`)
	var verr *httpx.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, map[string]string{"username": "min", "email": "email"}, verr.Fields)

	// Empty body reaches validation
	_, err = decode(``)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "required", verr.Fields["username"])
}

func TestCORS(t *testing.T) {
	noop := httpx.CORS(nil)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	noop.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	h := httpx.CORS([]string{"https://app.example.com"})(okHandler())

	pre := httptest.NewRequest(http.MethodOptions, "/v1/sessions", nil)
	pre.Header.Set("Origin", "https://app.example.com")
	pre.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	// Browsers send the requested header names lowercased
	pre.Header.Set("Access-Control-Request-Headers", "authorization")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, pre)
	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
