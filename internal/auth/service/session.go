package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/domain"
	"github.com/aussiebroadwan/sessionkeeper/internal/auth/store"
	"github.com/aussiebroadwan/sessionkeeper/pkg/cryptox"
	"github.com/aussiebroadwan/sessionkeeper/pkg/idx"
	"github.com/aussiebroadwan/sessionkeeper/pkg/jwtx"
	"github.com/aussiebroadwan/sessionkeeper/pkg/slogx"
)

// UserLookup is the slice of the user directory the session layer needs to
// re-resolve identity during refresh.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
}

// SessionService is the only place codec output and store state are combined
// into an authorization decision.
type SessionService struct {
	Codec  *jwtx.Codec
	Tokens store.Tokens
	Users  UserLookup

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// RevokeGrace keeps a revoked record around when its remaining TTL
	// cannot be read. Zero means store.DefaultRevokeGrace.
	RevokeGrace time.Duration

	Metrics *Metrics
}

func (s *SessionService) now() time.Time { return s.Codec.Now() }

func (s *SessionService) grace() time.Duration {
	if s.RevokeGrace > 0 {
		return s.RevokeGrace
	}
	return store.DefaultRevokeGrace
}

// IssueTokenPair mints an access and a refresh token for user and persists
// both under one pair id. If the second write fails the first token is
// deleted again so a caller never holds half a pair.
func (s *SessionService) IssueTokenPair(ctx context.Context, user domain.User) (domain.TokenPair, error) {
	pairID := idx.New().String()

	access, accessRec, err := s.issue(ctx, user, domain.TokenKindAccess, pairID, s.AccessTTL)
	if err != nil {
		return domain.TokenPair{}, err
	}

	refresh, _, err := s.issue(ctx, user, domain.TokenKindRefresh, pairID, s.RefreshTTL)
	if err != nil {
		if delErr := s.Tokens.DeleteToken(ctx, access, accessRec.UserID); delErr != nil {
			slogx.FromContext(ctx).Warn("failed to discard orphaned access token",
				"user_id", user.ID, "token_fp", cryptox.FingerprintToken(access), "error", delErr)
		}
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.AccessTTL / time.Second),
	}, nil
}

func (s *SessionService) issue(ctx context.Context, user domain.User, kind domain.TokenKind, pairID string, ttl time.Duration) (string, domain.TokenRecord, error) {
	extra := map[string]any{jwtx.ClaimPairID: pairID}
	token, err := s.Codec.IssueClaims(user.ID, user.ID, user.Username, string(kind), user.Roles, extra, ttl)
	if err != nil {
		return "", domain.TokenRecord{}, fmt.Errorf("service: issue %s token: %w", kind, err)
	}

	// Read back what the codec actually stamped so the record and the token
	// agree on iat, exp and jti to the second.
	claims, err := s.Codec.Parse(token)
	if err != nil {
		return "", domain.TokenRecord{}, fmt.Errorf("service: read back %s token: %w", kind, err)
	}

	rec := domain.TokenRecord{
		UserID:     user.ID,
		Username:   user.Username,
		Roles:      slices.Clone(user.Roles),
		IssuedAt:   claims.IssuedAt,
		ExpiryDate: claims.ExpiresAt,
		SessionID:  claims.ID,
		Kind:       kind,
		PairID:     claims.PairID(),
	}
	if err := s.StoreToken(ctx, token, rec, ttl); err != nil {
		return "", domain.TokenRecord{}, err
	}

	s.Metrics.tokenIssued(string(kind))
	return token, rec, nil
}

// StoreToken persists rec keyed by the signed token value.
func (s *SessionService) StoreToken(ctx context.Context, token string, rec domain.TokenRecord, ttl time.Duration) error {
	if err := s.Tokens.SaveToken(ctx, token, rec, ttl); err != nil {
		return fromStore(err)
	}

	slogx.FromContext(ctx).Debug("token stored",
		"user_id", rec.UserID,
		"session_id", rec.SessionID,
		"kind", rec.Kind,
		"token_fp", cryptox.FingerprintToken(token),
	)
	return nil
}

// Validate checks token in one pass: signature and structure, subject,
// expiry, then the store record. It returns nil or exactly one taxonomy
// error. A missing record reports ErrRevoked so callers cannot probe for
// existence. An empty expectedSubject skips the subject check.
func (s *SessionService) Validate(ctx context.Context, token, expectedSubject string) error {
	_, _, err := s.check(ctx, token, expectedSubject)
	return err
}

// ValidateToken is the boolean form of Validate.
func (s *SessionService) ValidateToken(ctx context.Context, token, expectedSubject string) bool {
	return s.Validate(ctx, token, expectedSubject) == nil
}

// Authenticate validates a bearer access token and returns who it speaks
// for. Refresh tokens are refused here.
func (s *SessionService) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	claims, rec, err := s.check(ctx, token, "")
	if err != nil {
		return domain.Principal{}, err
	}
	if rec.Kind == domain.TokenKindRefresh || claims.Kind() == jwtx.KindRefresh {
		return domain.Principal{}, ErrNotAnAccessToken
	}

	return domain.Principal{
		Subject:   claims.Subject,
		UserID:    cmp.Or(claims.UserID(), claims.Subject),
		Username:  claims.Username(),
		Roles:     claims.Roles(),
		SessionID: claims.ID,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

func (s *SessionService) check(ctx context.Context, token, expectedSubject string) (jwtx.Claims, domain.TokenRecord, error) {
	claims, rec, err := s.checkNoMetrics(ctx, token, expectedSubject)
	s.Metrics.validated(err)

	if err != nil {
		slogx.FromContext(ctx).Debug("token rejected",
			"reason", kindLabel(err),
			"token_fp", cryptox.FingerprintToken(token),
		)
	}
	return claims, rec, err
}

func (s *SessionService) checkNoMetrics(ctx context.Context, token, expectedSubject string) (jwtx.Claims, domain.TokenRecord, error) {
	// 1. Signature and structure
	claims, err := s.Codec.Parse(token)
	if err != nil {
		return jwtx.Claims{}, domain.TokenRecord{}, fromCodec(err)
	}

	// 2. Subject
	if expectedSubject != "" && claims.Subject != expectedSubject {
		return jwtx.Claims{}, domain.TokenRecord{}, ErrSignatureInvalid
	}

	// 3. Expiry from the token itself; store TTL may lag by a second
	if claims.Expired(s.now()) {
		return jwtx.Claims{}, domain.TokenRecord{}, ErrExpired
	}

	// 4. Revocation
	rec, err := s.Tokens.FindByID(ctx, token)
	switch {
	case isNotFound(err):
		return jwtx.Claims{}, domain.TokenRecord{}, ErrRevoked
	case isCorrupt(err):
		logCorrupt(ctx, token, claims.Subject, err)
		return jwtx.Claims{}, domain.TokenRecord{}, fromStore(err)
	case err != nil:
		return jwtx.Claims{}, domain.TokenRecord{}, fromStore(err)
	case rec.Revoked:
		return jwtx.Claims{}, domain.TokenRecord{}, ErrRevoked
	}

	return claims, rec, nil
}

// RevokeToken revokes one token by value. Revoking an unknown or already
// revoked token succeeds.
func (s *SessionService) RevokeToken(ctx context.Context, token string) error {
	flipped, err := s.Tokens.RevokeToken(ctx, token, s.grace())
	switch {
	case isCorrupt(err):
		// Already unusable; validation treats it as revoked
		logCorrupt(ctx, token, "", err)
		return nil
	case err != nil:
		return fromStore(err)
	}
	if flipped {
		s.Metrics.revoked("single", 1)
		slogx.FromContext(ctx).Info("token revoked", "token_fp", cryptox.FingerprintToken(token))
	}
	return nil
}

// RevokeAllUserTokens revokes every token userID holds and returns how many
// were flipped. Used for logout everywhere, password changes and
// deactivation.
func (s *SessionService) RevokeAllUserTokens(ctx context.Context, userID string) (int, error) {
	n, err := s.Tokens.RevokeAllUserTokens(ctx, userID)
	s.Metrics.revoked("user", n)
	if err != nil {
		slogx.FromContext(ctx).Error("bulk revoke stopped early",
			"user_id", userID, "revoked", n, "error", err)
		return n, fromStore(err)
	}

	slogx.FromContext(ctx).Info("all user tokens revoked", "user_id", userID, "revoked", n)
	return n, nil
}

// GetUserActiveTokens returns the raw records still present for userID,
// including revoked ones. TokenID holds the bearer value: redact before it
// leaves the process.
func (s *SessionService) GetUserActiveTokens(ctx context.Context, userID string) ([]domain.TokenRecord, error) {
	recs, err := s.Tokens.FindAllByUserID(ctx, userID)
	if err != nil {
		return nil, fromStore(err)
	}
	return recs, nil
}

// ListActiveSessions returns userID's usable tokens, newest first, with the
// token values redacted.
func (s *SessionService) ListActiveSessions(ctx context.Context, userID string) ([]domain.TokenRecord, error) {
	recs, err := s.GetUserActiveTokens(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]domain.TokenRecord, 0, len(recs))
	for _, r := range recs {
		if r.Active(now) {
			out = append(out, r.Redacted())
		}
	}

	slices.SortFunc(out, func(a, b domain.TokenRecord) int {
		if c := b.IssuedAt.Compare(a.IssuedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.SessionID, a.SessionID)
	})
	return out, nil
}

// RevokeSession revokes the token with the given session id, provided it
// belongs to userID.
func (s *SessionService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	recs, err := s.GetUserActiveTokens(ctx, userID)
	if err != nil {
		return err
	}

	for _, r := range recs {
		if r.SessionID == sessionID {
			return s.RevokeToken(ctx, r.TokenID)
		}
	}
	return ErrSessionNotFound
}

// RevokeAllExceptCurrent revokes every token userID holds other than
// current and the refresh token issued alongside it, and returns how many
// were flipped.
func (s *SessionService) RevokeAllExceptCurrent(ctx context.Context, userID, current string) (int, error) {
	recs, err := s.GetUserActiveTokens(ctx, userID)
	if err != nil {
		return 0, err
	}

	var pairID string
	for _, r := range recs {
		if r.TokenID == current {
			pairID = r.PairID
			break
		}
	}

	revoked := 0
	for _, r := range recs {
		if r.TokenID == current || r.Revoked || (pairID != "" && r.PairID == pairID) {
			continue
		}
		flipped, err := s.Tokens.RevokeToken(ctx, r.TokenID, s.grace())
		if err != nil {
			s.Metrics.revoked("user", revoked)
			return revoked, fromStore(err)
		}
		if flipped {
			revoked++
		}
	}

	s.Metrics.revoked("user", revoked)
	slogx.FromContext(ctx).Info("other sessions revoked", "user_id", userID, "revoked", revoked)
	return revoked, nil
}

// RefreshTokens rotates a refresh token: the presented token is revoked and
// a fresh pair is issued. Each refresh token works exactly once; a second
// presentation, including a concurrent one racing the first, fails with
// ErrRevoked.
//
// There is no transaction around revoke-then-issue. If issuing fails after
// the revoke the caller has to log in again.
func (s *SessionService) RefreshTokens(ctx context.Context, refreshToken string) (pair domain.TokenPair, err error) {
	defer func() { s.Metrics.refreshed(err) }()

	l := slogx.FromContext(ctx).With("token_fp", cryptox.FingerprintToken(refreshToken))
	now := s.now()

	// 1. Structure and signature
	claims, err := s.Codec.Parse(refreshToken)
	if err != nil {
		return domain.TokenPair{}, fromCodec(err)
	}

	// 2. Expiry
	if claims.Expired(now) {
		return domain.TokenPair{}, ErrExpired
	}

	// 3. Store record must exist and be live
	rec, err := s.Tokens.FindByID(ctx, refreshToken)
	switch {
	case isNotFound(err):
		return domain.TokenPair{}, ErrRevoked
	case isCorrupt(err):
		logCorrupt(ctx, refreshToken, claims.Subject, err)
		return domain.TokenPair{}, fromStore(err)
	case err != nil:
		return domain.TokenPair{}, fromStore(err)
	case rec.Revoked:
		l.Warn("revoked refresh token presented", "user_id", rec.UserID)
		return domain.TokenPair{}, ErrRevoked
	}

	// 4. Kind: the claim decides when present, remaining lifetime otherwise
	if !s.isRefresh(claims, now) {
		return domain.TokenPair{}, ErrNotARefreshToken
	}

	// 5. Current identity and roles
	user, err := s.Users.GetUserByID(ctx, claims.Subject)
	switch {
	case isNotFound(err):
		return domain.TokenPair{}, ErrUserNotFound
	case err != nil:
		return domain.TokenPair{}, fromStore(err)
	case !user.Active:
		return domain.TokenPair{}, ErrUserInactive
	}

	// 6. Consume the old token; losing this race means someone else rotated
	flipped, err := s.Tokens.RevokeToken(ctx, refreshToken, s.grace())
	if err != nil {
		return domain.TokenPair{}, fromStore(err)
	}
	if !flipped {
		l.Warn("refresh token already consumed", "user_id", user.ID)
		return domain.TokenPair{}, ErrRevoked
	}
	s.Metrics.revoked("rotation", 1)

	// 7. New pair
	pair, err = s.IssueTokenPair(ctx, user)
	if err != nil {
		l.Error("refresh token consumed but new pair not issued", "user_id", user.ID, "error", err)
		return domain.TokenPair{}, err
	}

	// 8. Done
	l.Info("refresh token rotated", slog.String("user_id", user.ID))
	return pair, nil
}

// isRefresh classifies a token. Tokens minted here always carry the kind
// claim; the lifetime heuristic only covers tokens minted without it, and
// it misfires for a refresh token that is within AccessTTL of expiring.
func (s *SessionService) isRefresh(claims jwtx.Claims, now time.Time) bool {
	if kind := claims.Kind(); kind != "" {
		return kind == jwtx.KindRefresh
	}
	return claims.Remaining(now) >= s.AccessTTL
}

func logCorrupt(ctx context.Context, token, subject string, err error) {
	slogx.FromContext(ctx).Error("corrupt token record",
		"user_id", subject,
		"token_fp", cryptox.FingerprintToken(token),
		"error", err,
	)
}

// IsStoreUnavailable reports whether err is worth retrying.
func IsStoreUnavailable(err error) bool { return errors.Is(err, ErrStoreUnavailable) }
