package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/store"
)

// CleanupExpiredTokens reconciles the indexes with the records actually
// present. An id is pruned only after EXISTS confirms its record is gone;
// records themselves are left to backend TTL.
func (s *Store) CleanupExpiredTokens(ctx context.Context) (store.CleanupStats, error) {
	var stats store.CleanupStats

	ids, err := s.reg.globalMembers(ctx, s.rdb)
	if err != nil {
		return stats, err
	}
	stats.Scanned = len(ids)

	stale, err := s.missing(ctx, ids)
	if err != nil {
		return stats, err
	}
	if len(stale) == 0 {
		return stats, nil
	}

	visited, err := s.reg.prune(ctx, s.rdb, stale)
	stats.UserIndexes = visited
	if err != nil {
		return stats, err
	}
	stats.Pruned = len(stale)

	return stats, nil
}

// missing returns the ids whose token key no longer exists, checking in
// pipelined batches.
func (s *Store) missing(ctx context.Context, ids []string) ([]string, error) {
	var stale []string

	for start := 0; start < len(ids); start += scanBatch {
		batch := ids[start:min(start+scanBatch, len(ids))]

		cmds := make([]*goredis.IntCmd, len(batch))
		_, err := s.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
			for i, id := range batch {
				cmds[i] = p.Exists(ctx, tokenKey(id))
			}
			return nil
		})
		if err != nil {
			return nil, mapErr(err)
		}

		for i, cmd := range cmds {
			if cmd.Val() == 0 {
				stale = append(stale, batch[i])
			}
		}
	}

	return stale, nil
}
