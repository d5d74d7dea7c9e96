package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/store"
)

const (
	globalIndexKey   = "all:tokens"
	userIndexPrefix  = "user:tokens:"
	scanBatch        = 256
	userIndexPattern = userIndexPrefix + "*"
)

// registry owns the index sets: one per user plus the global one. Nothing
// else in the driver touches those keys directly.
type registry struct{}

func (registry) userKey(userID string) string { return userIndexPrefix + userID }

// add queues tokenID into both indexes and pushes the user index expiry out
// to ttl + store.UserIndexSlack. The expiry only ever grows: NX covers a
// freshly created set, GT covers an existing one.
func (r registry) add(ctx context.Context, p goredis.Pipeliner, userID, tokenID string, ttl time.Duration) {
	key := r.userKey(userID)
	keep := ttl + store.UserIndexSlack

	p.SAdd(ctx, key, tokenID)
	p.ExpireNX(ctx, key, keep)
	p.ExpireGT(ctx, key, keep)
	p.SAdd(ctx, globalIndexKey, tokenID)
}

// remove queues tokenID out of both indexes.
func (r registry) remove(ctx context.Context, p goredis.Pipeliner, userID, tokenID string) {
	if userID != "" {
		p.SRem(ctx, r.userKey(userID), tokenID)
	}
	p.SRem(ctx, globalIndexKey, tokenID)
}

// members lists the ids in a user's index.
func (r registry) members(ctx context.Context, c goredis.Cmdable, userID string) ([]string, error) {
	ids, err := c.SMembers(ctx, r.userKey(userID)).Result()
	return ids, mapErr(err)
}

// forgetForUser drops stale ids from one user's index only.
func (r registry) forgetForUser(ctx context.Context, c goredis.Cmdable, userID string, stale []string) error {
	if len(stale) == 0 {
		return nil
	}
	return mapErr(c.SRem(ctx, r.userKey(userID), toAny(stale)...).Err())
}

// globalMembers walks the global index with SSCAN so a large set is never
// pulled in one reply.
func (r registry) globalMembers(ctx context.Context, c goredis.Cmdable) ([]string, error) {
	var ids []string
	iter := c.SScan(ctx, globalIndexKey, 0, "", scanBatch).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val())
	}
	return ids, mapErr(iter.Err())
}

// prune removes stale ids from the global index and then from every user
// index, found with SCAN (never KEYS). It returns how many user indexes it
// visited.
func (r registry) prune(ctx context.Context, c goredis.Cmdable, stale []string) (int, error) {
	if len(stale) == 0 {
		return 0, nil
	}
	members := toAny(stale)

	if err := c.SRem(ctx, globalIndexKey, members...).Err(); err != nil {
		return 0, mapErr(err)
	}

	visited := 0
	iter := c.Scan(ctx, 0, userIndexPattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		if err := c.SRem(ctx, iter.Val(), members...).Err(); err != nil {
			return visited, mapErr(err)
		}
		visited++
	}
	return visited, mapErr(iter.Err())
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
