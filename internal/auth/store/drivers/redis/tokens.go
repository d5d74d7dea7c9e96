package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/domain"
	"github.com/aussiebroadwan/sessionkeeper/internal/auth/store"
)

// SaveToken writes the record and both index entries in one MULTI so the
// global index never references a record that was never written.
func (s *Store) SaveToken(ctx context.Context, tokenID string, rec domain.TokenRecord, ttl time.Duration) error {
	if tokenID == "" || rec.UserID == "" {
		return errors.New("redis: token id and user id are required")
	}
	if ttl <= 0 {
		return fmt.Errorf("redis: ttl must be positive, got %s", ttl)
	}

	rec.TokenID = tokenID
	payload, err := s.encode(rec)
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, tokenKey(tokenID), payload, ttl)
		s.reg.add(ctx, p, rec.UserID, tokenID, ttl)
		return nil
	})
	return mapErr(err)
}

func (s *Store) FindByID(ctx context.Context, tokenID string) (domain.TokenRecord, error) {
	raw, err := s.rdb.Get(ctx, tokenKey(tokenID)).Bytes()
	if err != nil {
		return domain.TokenRecord{}, mapErr(err)
	}
	return s.decode(raw)
}

// FindAllByUserID returns the records still present for userID. Ids whose
// record the backend already expired are dropped from the user's index on
// the way out.
func (s *Store) FindAllByUserID(ctx context.Context, userID string) ([]domain.TokenRecord, error) {
	ids, err := s.reg.members(ctx, s.rdb, userID)
	if err != nil || len(ids) == 0 {
		return nil, err
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = tokenKey(id)
	}

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, mapErr(err)
	}

	recs := make([]domain.TokenRecord, 0, len(vals))
	var stale []string
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		rec, err := s.decode([]byte(raw))
		if err != nil {
			// Undecodable records can never validate; leave them to expire
			continue
		}
		recs = append(recs, rec)
	}

	// Best effort; the sweep catches anything left behind
	_ = s.reg.forgetForUser(ctx, s.rdb, userID, stale)

	return recs, nil
}

func (s *Store) DeleteToken(ctx context.Context, tokenID, userID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, tokenKey(tokenID))
		s.reg.remove(ctx, p, userID, tokenID)
		return nil
	})
	return mapErr(err)
}

func (s *Store) RevokeToken(ctx context.Context, tokenID string, grace time.Duration) (bool, error) {
	if grace <= 0 {
		grace = store.DefaultRevokeGrace
	}

	flipped, err := s.revoke(ctx, tokenID, grace)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return flipped, err
}

func (s *Store) RevokeAllUserTokens(ctx context.Context, userID string) (int, error) {
	ids, err := s.reg.members(ctx, s.rdb, userID)
	if err != nil {
		return 0, err
	}

	revoked := 0
	var stale []string
	for _, id := range ids {
		flipped, err := s.revoke(ctx, id, store.DefaultRevokeGrace)
		switch {
		case errors.Is(err, store.ErrNotFound):
			stale = append(stale, id)
		case errors.Is(err, ErrCorruptRecord):
			// Unusable already; left to expire
		case err != nil:
			return revoked, err
		case flipped:
			revoked++
		}
	}

	_ = s.reg.forgetForUser(ctx, s.rdb, userID, stale)
	return revoked, nil
}

// revoke flips one record with WATCH/GET/PTTL/MULTI SET. A concurrent writer
// aborts the MULTI and the read is retried, so the record is either fully
// rewritten with revoked=true or left untouched. Returns store.ErrNotFound
// when the record is gone and (false, nil) when it was already revoked.
func (s *Store) revoke(ctx context.Context, tokenID string, grace time.Duration) (bool, error) {
	key := tokenKey(tokenID)

	for range maxTxRetries {
		flipped := false

		err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			remaining, err := tx.PTTL(ctx, key).Result()
			if err != nil {
				return err
			}

			rec, err := s.decode(raw)
			if err != nil {
				return err
			}
			if rec.Revoked {
				return nil
			}

			rec.Revoked = true
			payload, err := s.encode(rec)
			if err != nil {
				return err
			}

			// -1 (no expiry) and -2 (vanished) both read as <= 0
			keep := remaining
			if keep <= 0 {
				keep = grace
			}

			_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
				p.Set(ctx, key, payload, keep)
				return nil
			})
			if err == nil {
				flipped = true
			}
			return err
		}, key)

		switch {
		case err == nil:
			return flipped, nil
		case errors.Is(err, goredis.TxFailedErr):
			continue
		case errors.Is(err, goredis.Nil):
			return false, store.ErrNotFound
		case errors.Is(err, ErrCorruptRecord):
			return false, err
		default:
			return false, mapErr(err)
		}
	}

	return false, fmt.Errorf("%w: revoke %s: too much contention", store.ErrUnavailable, redactID(tokenID))
}

// redactID shortens a token id for error text; the id is the bearer value.
func redactID(tokenID string) string {
	if len(tokenID) <= 8 {
		return "***"
	}
	return "..." + tokenID[len(tokenID)-8:]
}
