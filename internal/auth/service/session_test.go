package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/domain"
)

func TestValidateRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")

	pair, err := env.sessions.IssueTokenPair(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, "Bearer", pair.TokenType)
	require.Equal(t, int64(900), pair.ExpiresIn)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	require.True(t, env.sessions.ValidateToken(ctx, pair.AccessToken, alice.ID))
	require.True(t, env.sessions.ValidateToken(ctx, pair.RefreshToken, alice.ID))
	require.NoError(t, env.sessions.Validate(ctx, pair.AccessToken, ""))
}

func TestValidateFailureKinds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")

	pair, err := env.sessions.IssueTokenPair(ctx, alice)
	require.NoError(t, err)

	t.Run("malformed", func(t *testing.T) {
		require.ErrorIs(t, env.sessions.Validate(ctx, "not-a-token", alice.ID), ErrMalformedToken)
		require.False(t, env.sessions.ValidateToken(ctx, "", alice.ID))
	})

	t.Run("bad signature", func(t *testing.T) {
		parts := strings.Split(pair.AccessToken, ".")
		other, err := env.sessions.IssueTokenPair(ctx, env.createUser(t, "bob"))
		require.NoError(t, err)
		forged := parts[0] + "." + strings.Split(other.AccessToken, ".")[1] + "." + parts[2]

		require.ErrorIs(t, env.sessions.Validate(ctx, forged, ""), ErrSignatureInvalid)
	})

	t.Run("wrong subject", func(t *testing.T) {
		require.ErrorIs(t, env.sessions.Validate(ctx, pair.AccessToken, "someone-else"), ErrSignatureInvalid)
	})

	t.Run("signed but never stored", func(t *testing.T) {
		stray, err := env.sessions.Codec.Issue(alice.ID, nil, time.Minute)
		require.NoError(t, err)
		require.ErrorIs(t, env.sessions.Validate(ctx, stray, alice.ID), ErrRevoked)
	})
}

func TestRevocationIsSticky(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")

	pair, err := env.sessions.IssueTokenPair(ctx, alice)
	require.NoError(t, err)

	require.NoError(t, env.sessions.RevokeToken(ctx, pair.AccessToken))

	for i := range 5 {
		require.ErrorIs(t, env.sessions.Validate(ctx, pair.AccessToken, alice.ID), ErrRevoked, "attempt %d", i)
		env.advance(time.Minute)
	}

	// Revoking again, or revoking something unknown, is fine
	require.NoError(t, env.sessions.RevokeToken(ctx, pair.AccessToken))
	require.NoError(t, env.sessions.RevokeToken(ctx, "unknown"))

	// The refresh token of the same pair is untouched
	require.True(t, env.sessions.ValidateToken(ctx, pair.RefreshToken, alice.ID))
}

func TestBulkRevokeCompleteness(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	var tokens []string
	for range 5 {
		pair, err := env.sessions.IssueTokenPair(ctx, alice)
		require.NoError(t, err)
		tokens = append(tokens, pair.AccessToken, pair.RefreshToken)
	}
	bobPair, err := env.sessions.IssueTokenPair(ctx, bob)
	require.NoError(t, err)

	n, err := env.sessions.RevokeAllUserTokens(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, len(tokens), n)

	for _, tok := range tokens {
		require.ErrorIs(t, env.sessions.Validate(ctx, tok, alice.ID), ErrRevoked)
	}
	require.True(t, env.sessions.ValidateToken(ctx, bobPair.AccessToken, bob.ID))
}

func TestExpiredIsNotRevoked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")

	tok, err := env.sessions.Codec.Issue(alice.ID, nil, time.Second)
	require.NoError(t, err)

	now := env.clock.Now()
	require.NoError(t, env.sessions.StoreToken(ctx, tok, domain.TokenRecord{
		UserID:     alice.ID,
		Username:   alice.Username,
		IssuedAt:   now,
		ExpiryDate: now.Add(time.Second),
	}, time.Second))
	require.True(t, env.sessions.ValidateToken(ctx, tok, alice.ID))

	env.advance(2 * time.Second)

	require.ErrorIs(t, env.sessions.Validate(ctx, tok, alice.ID), ErrExpired)
}

func TestRefreshConsumesOldToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")

	pair, err := env.sessions.IssueTokenPair(ctx, alice)
	require.NoError(t, err)

	next, err := env.sessions.RefreshTokens(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	_, err = env.sessions.RefreshTokens(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrRevoked)

	require.True(t, env.sessions.ValidateToken(ctx, next.AccessToken, alice.ID))
}

func TestRefreshChainOfFive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")

	pair, err := env.sessions.IssueTokenPair(ctx, alice)
	require.NoError(t, err)

	var spent []string
	for i := range 5 {
		next, err := env.sessions.RefreshTokens(ctx, pair.RefreshToken)
		require.NoError(t, err, "rotation %d", i)

		spent = append(spent, pair.RefreshToken)
		pair = next
	}

	for i, old := range spent {
		require.ErrorIs(t, env.sessions.Validate(ctx, old, alice.ID), ErrRevoked, "refresh token %d", i)
		_, err := env.sessions.RefreshTokens(ctx, old)
		require.ErrorIs(t, err, ErrRevoked)
	}

	require.True(t, env.sessions.ValidateToken(ctx, pair.AccessToken, alice.ID))
}

func TestRefreshConcurrentReplay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")

	pair, err := env.sessions.IssueTokenPair(ctx, alice)
	require.NoError(t, err)

	const callers = 6
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.sessions.RefreshTokens(ctx, pair.RefreshToken)
		}()
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		// Losers see the flipped record; a contended WATCH may give up instead
		if !IsStoreUnavailable(err) {
			require.ErrorIs(t, err, ErrRevoked)
		}
	}
	require.Equal(t, 1, successes)
}

func TestRefreshRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")

	pair, err := env.sessions.IssueTokenPair(ctx, alice)
	require.NoError(t, err)

	t.Run("garbage", func(t *testing.T) {
		_, err := env.sessions.RefreshTokens(ctx, "a.b.c")
		require.ErrorIs(t, err, ErrMalformedToken)
	})

	t.Run("access token", func(t *testing.T) {
		_, err := env.sessions.RefreshTokens(ctx, pair.AccessToken)
		require.ErrorIs(t, err, ErrNotARefreshToken)

		// Rejected before the revoke step
		require.True(t, env.sessions.ValidateToken(ctx, pair.AccessToken, alice.ID))
	})

	t.Run("unknown user", func(t *testing.T) {
		ghost := domain.User{ID: "ghost", Username: "ghost", Roles: []string{"user"}, Active: true}
		p, err := env.sessions.IssueTokenPair(ctx, ghost)
		require.NoError(t, err)

		_, err = env.sessions.RefreshTokens(ctx, p.RefreshToken)
		require.ErrorIs(t, err, ErrUserNotFound)

		// Not consumed
		require.True(t, env.sessions.ValidateToken(ctx, p.RefreshToken, "ghost"))
	})

	t.Run("inactive user", func(t *testing.T) {
		require.NoError(t, env.users.SetActive(ctx, alice.ID, false))
		t.Cleanup(func() { _ = env.users.SetActive(ctx, alice.ID, true) })

		_, err := env.sessions.RefreshTokens(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, ErrUserInactive)
	})

	t.Run("expired", func(t *testing.T) {
		env.advance(testRefreshTTL + time.Second)
		_, err := env.sessions.RefreshTokens(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, ErrExpired)
	})
}

func TestRefreshUntaggedTokenUsesLifetime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")

	store := func(ttl time.Duration) string {
		tok, err := env.sessions.Codec.Issue(alice.ID, map[string]any{"roles": alice.Roles}, ttl)
		require.NoError(t, err)
		now := env.clock.Now()
		require.NoError(t, env.sessions.StoreToken(ctx, tok, domain.TokenRecord{
			UserID: alice.ID, Username: alice.Username, IssuedAt: now, ExpiryDate: now.Add(ttl),
		}, ttl))
		return tok
	}

	shortLived := store(testAccessTTL - time.Second)
	_, err := env.sessions.RefreshTokens(ctx, shortLived)
	require.ErrorIs(t, err, ErrNotARefreshToken)

	longLived := store(testRefreshTTL)
	pair, err := env.sessions.RefreshTokens(ctx, longLived)
	require.NoError(t, err)
	require.True(t, env.sessions.ValidateToken(ctx, pair.AccessToken, alice.ID))
}

func TestRefreshPicksUpNewRoles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := domain.User{ID: "adm", Username: "adm", Email: "adm@example.com", PasswordHash: "x", Roles: []string{"user", "admin"}, Active: true}
	require.NoError(t, env.users.CreateUser(ctx, admin))

	// Token minted while the user only had "user"
	stale := admin
	stale.Roles = []string{"user"}
	pair, err := env.sessions.IssueTokenPair(ctx, stale)
	require.NoError(t, err)

	next, err := env.sessions.RefreshTokens(ctx, pair.RefreshToken)
	require.NoError(t, err)

	p, err := env.sessions.Authenticate(ctx, next.AccessToken)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"user", "admin"}, p.Roles)
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")

	pair, err := env.sessions.IssueTokenPair(ctx, alice)
	require.NoError(t, err)

	p, err := env.sessions.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, alice.ID, p.Subject)
	require.Equal(t, alice.ID, p.UserID)
	require.Equal(t, "alice", p.Username)
	require.True(t, p.HasRole(domain.RoleUser))
	require.False(t, p.HasRole(domain.RoleAdmin))
	require.NotEmpty(t, p.SessionID)

	_, err = env.sessions.Authenticate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrNotAnAccessToken)
}

func TestListActiveSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")

	first, err := env.sessions.IssueTokenPair(ctx, alice)
	require.NoError(t, err)
	env.advance(time.Minute)
	second, err := env.sessions.IssueTokenPair(ctx, alice)
	require.NoError(t, err)

	require.NoError(t, env.sessions.RevokeToken(ctx, first.AccessToken))

	sessions, err := env.sessions.ListActiveSessions(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 3)

	for _, s := range sessions {
		require.Equal(t, domain.RedactedToken, s.TokenID)
		require.False(t, s.Revoked)
		require.NotEmpty(t, s.SessionID)
	}
	require.False(t, sessions[0].IssuedAt.Before(sessions[1].IssuedAt))
	require.True(t, sessions[0].IssuedAt.After(sessions[2].IssuedAt))

	// Raw form still carries the bearer values
	raw, err := env.sessions.GetUserActiveTokens(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, raw, 4)
	var values []string
	for _, r := range raw {
		values = append(values, r.TokenID)
	}
	require.Contains(t, values, second.AccessToken)

	// Access tokens run out after 15 minutes, refresh tokens remain
	env.advance(testAccessTTL + time.Second)
	sessions, err = env.sessions.ListActiveSessions(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	for _, s := range sessions {
		require.Equal(t, domain.TokenKindRefresh, s.Kind)
	}
}

func TestRevokeSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	pair, err := env.sessions.IssueTokenPair(ctx, alice)
	require.NoError(t, err)
	p, err := env.sessions.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)

	// Bob cannot revoke Alice's session
	require.ErrorIs(t, env.sessions.RevokeSession(ctx, bob.ID, p.SessionID), ErrSessionNotFound)

	require.NoError(t, env.sessions.RevokeSession(ctx, alice.ID, p.SessionID))
	require.ErrorIs(t, env.sessions.Validate(ctx, pair.AccessToken, alice.ID), ErrRevoked)
	require.True(t, env.sessions.ValidateToken(ctx, pair.RefreshToken, alice.ID))
}

func TestRevokeAllExceptCurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")

	keep, err := env.sessions.IssueTokenPair(ctx, alice)
	require.NoError(t, err)
	other, err := env.sessions.IssueTokenPair(ctx, alice)
	require.NoError(t, err)

	n, err := env.sessions.RevokeAllExceptCurrent(ctx, alice.ID, keep.AccessToken)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.True(t, env.sessions.ValidateToken(ctx, keep.AccessToken, alice.ID))
	require.ErrorIs(t, env.sessions.Validate(ctx, other.AccessToken, alice.ID), ErrRevoked)
	require.ErrorIs(t, env.sessions.Validate(ctx, other.RefreshToken, alice.ID), ErrRevoked)

	// The current login can still rotate
	rotated, err := env.sessions.RefreshTokens(ctx, keep.RefreshToken)
	require.NoError(t, err)
	require.True(t, env.sessions.ValidateToken(ctx, rotated.AccessToken, alice.ID))
}

func TestIssueTokenPairSharesPairID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")

	first, err := env.sessions.IssueTokenPair(ctx, alice)
	require.NoError(t, err)
	second, err := env.sessions.IssueTokenPair(ctx, alice)
	require.NoError(t, err)

	pairOf := func(token string) string {
		claims, err := env.sessions.Codec.Parse(token)
		require.NoError(t, err)
		rec, err := env.tokens.FindByID(ctx, token)
		require.NoError(t, err)
		require.Equal(t, claims.PairID(), rec.PairID)
		return rec.PairID
	}

	require.NotEmpty(t, pairOf(first.AccessToken))
	require.Equal(t, pairOf(first.AccessToken), pairOf(first.RefreshToken))
	require.NotEqual(t, pairOf(first.AccessToken), pairOf(second.AccessToken))
}

func TestRevokeAllExceptCurrentWithoutPairID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")

	// Tokens stored on their own carry no pair id; only the presented one
	// is spared
	now := env.clock.Now()
	var tokens []string
	for range 2 {
		tok, err := env.sessions.Codec.Issue(alice.ID, nil, time.Hour)
		require.NoError(t, err)
		require.NoError(t, env.sessions.StoreToken(ctx, tok, domain.TokenRecord{
			UserID: alice.ID, IssuedAt: now, ExpiryDate: now.Add(time.Hour),
		}, time.Hour))
		tokens = append(tokens, tok)
	}

	n, err := env.sessions.RevokeAllExceptCurrent(ctx, alice.ID, tokens[0])
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.True(t, env.sessions.ValidateToken(ctx, tokens[0], alice.ID))
}

func TestStoreUnavailable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")

	pair, err := env.sessions.IssueTokenPair(ctx, alice)
	require.NoError(t, err)

	env.mr.Close()

	err = env.sessions.Validate(ctx, pair.AccessToken, alice.ID)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.True(t, IsStoreUnavailable(err))

	_, err = env.sessions.RefreshTokens(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = env.sessions.IssueTokenPair(ctx, alice)
	require.ErrorIs(t, err, ErrStoreUnavailable)

	require.ErrorIs(t, env.sessions.RevokeToken(ctx, pair.AccessToken), ErrStoreUnavailable)

	// Codec failures still win over the store
	require.ErrorIs(t, env.sessions.Validate(ctx, "junk", alice.ID), ErrMalformedToken)
}

func TestCorruptRecordReadsAsRevoked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")

	pair, err := env.sessions.IssueTokenPair(ctx, alice)
	require.NoError(t, err)
	other, err := env.sessions.IssueTokenPair(ctx, alice)
	require.NoError(t, err)

	require.NoError(t, env.mr.Set("token:"+pair.AccessToken, "not cbor"))
	require.NoError(t, env.mr.Set("token:"+pair.RefreshToken, "not cbor"))

	err = env.sessions.Validate(ctx, pair.AccessToken, alice.ID)
	require.ErrorIs(t, err, ErrRevoked)
	require.False(t, IsStoreUnavailable(err))

	_, err = env.sessions.RefreshTokens(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrRevoked)
	require.False(t, IsStoreUnavailable(err))

	require.NoError(t, env.sessions.RevokeToken(ctx, pair.AccessToken))

	// The rest of the user's sessions are unaffected
	sessions, err := env.sessions.ListActiveSessions(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	n, err := env.sessions.RevokeAllUserTokens(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.ErrorIs(t, env.sessions.Validate(ctx, other.AccessToken, alice.ID), ErrRevoked)
}
