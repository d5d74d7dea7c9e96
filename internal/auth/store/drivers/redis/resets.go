package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/store"
)

func resetKey(token string) string { return "password_reset:" + token }

// SaveResetToken implements store.ResetTokens.
func (s *Store) SaveResetToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	if token == "" || userID == "" {
		return errors.New("redis: reset token and user id are required")
	}
	if ttl <= 0 {
		return fmt.Errorf("redis: reset token ttl must be positive, got %s", ttl)
	}
	return mapErr(s.rdb.Set(ctx, resetKey(token), userID, ttl).Err())
}

// ConsumeResetToken implements store.ResetTokens with GETDEL.
func (s *Store) ConsumeResetToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", store.ErrNotFound
	}

	userID, err := s.rdb.GetDel(ctx, resetKey(token)).Result()
	if err != nil {
		return "", mapErr(err)
	}
	return userID, nil
}
