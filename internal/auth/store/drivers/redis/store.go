package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/domain"
	"github.com/aussiebroadwan/sessionkeeper/internal/auth/store"
)

// Config describes how to reach the shared Redis instance.
type Config struct {
	Addr     string
	Password string
	DB       int

	// DialTimeout bounds connection setup. Zero uses the client default.
	DialTimeout time.Duration
}

// ErrCorruptRecord means a token key held bytes that do not decode.
var ErrCorruptRecord = fmt.Errorf("redis: corrupt token record: %w", store.ErrCorrupt)

// maxTxRetries bounds optimistic WATCH/MULTI retries per record before a
// rewrite is reported as store.ErrUnavailable.
const maxTxRetries = 8

// Store implements store.Tokens and store.ResetTokens on Redis. Safe for concurrent use by many
// goroutines and many processes sharing one Redis.
type Store struct {
	rdb goredis.UniversalClient
	reg registry
	enc cbor.EncMode
	dec cbor.DecMode
}

var (
	_ store.Tokens      = (*Store)(nil)
	_ store.ResetTokens = (*Store)(nil)
)

// Open dials Redis and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	s, err := New(rdb)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	if err := s.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing client. The store takes ownership; Close closes rdb.
func New(rdb goredis.UniversalClient) (*Store, error) {
	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("redis: cbor enc mode: %w", err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("redis: cbor dec mode: %w", err)
	}

	return &Store{rdb: rdb, reg: registry{}, enc: enc, dec: dec}, nil
}

// Ping verifies Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return mapErr(s.rdb.Ping(ctx).Err())
}

func (s *Store) Close() error { return s.rdb.Close() }

func tokenKey(tokenID string) string { return "token:" + tokenID }

func (s *Store) encode(rec domain.TokenRecord) ([]byte, error) {
	b, err := s.enc.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("redis: encode token record: %w", err)
	}
	return b, nil
}

func (s *Store) decode(raw []byte) (domain.TokenRecord, error) {
	var rec domain.TokenRecord
	if err := s.dec.Unmarshal(raw, &rec); err != nil {
		return domain.TokenRecord{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return rec, nil
}

// mapErr translates client errors into store sentinels. Anything other than
// a missing key is an infrastructure failure the caller may retry.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, goredis.Nil):
		return store.ErrNotFound
	default:
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
}
