package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mirror is a shared second-tier store consulted by TTLCache before an
// upstream fetch. Implementations are best-effort; errors are logged by
// the cache and never surfaced to callers.
type Mirror interface {
	Load(ctx context.Context, key string) (payload []byte, fetchedAt time.Time, ok bool, err error)
	Store(ctx context.Context, key string, payload []byte, fetchedAt time.Time, ttl time.Duration) error
}

// RedisMirror stores cache entries in Redis so that several instances can
// share one upstream fetch per window.
type RedisMirror struct {
	rdb    *redis.Client
	prefix string
}

type mirrorRecord struct {
	FetchedAt int64           `json:"fetched_at"`
	Value     json.RawMessage `json:"value"`
}

// NewRedisMirror connects to Redis and verifies the connection.
func NewRedisMirror(ctx context.Context, addr, password string, db int, prefix string) (*RedisMirror, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedisMirrorFromClient(rdb, prefix), nil
}

// NewRedisMirrorFromClient wraps an existing client.
func NewRedisMirrorFromClient(rdb *redis.Client, prefix string) *RedisMirror {
	return &RedisMirror{rdb: rdb, prefix: prefix}
}

// Load returns the stored payload for key. A missing key is reported with
// ok == false and a nil error.
func (m *RedisMirror) Load(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	raw, err := m.rdb.Get(ctx, m.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var rec mirrorRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, time.Time{}, false, fmt.Errorf("decode mirror record %s: %w", key, err)
	}
	return rec.Value, time.Unix(0, rec.FetchedAt), true, nil
}

// Store writes payload under key with the given expiry.
func (m *RedisMirror) Store(ctx context.Context, key string, payload []byte, fetchedAt time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(mirrorRecord{FetchedAt: fetchedAt.UnixNano(), Value: payload})
	if err != nil {
		return fmt.Errorf("encode mirror record %s: %w", key, err)
	}
	if err := m.rdb.Set(ctx, m.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (m *RedisMirror) Close() error {
	return m.rdb.Close()
}
