package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the Redis-backed Store, grounded on the teacher's
// sessions/redishost.Host key-prefix convention. Sessions are JSON blobs
// under a per-id key with a native Redis TTL, so an idle session expires
// on its own without needing this process's Sweep to run -- Sweep here is
// a best-effort no-op scan kept for interface symmetry with MemoryStore.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore builds a RedisStore. client is expected to already be
// configured by the caller (address, TLS, auth).
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "odoomcp:sessions:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (r *RedisStore) key(id string) string { return r.keyPrefix + id }

func (r *RedisStore) Put(ctx context.Context, s Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := r.client.Set(ctx, r.key(s.ID), raw, s.TTL).Err(); err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

func (r *RedisStore) Touch(ctx context.Context, id string, now time.Time) (Session, bool, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("session: redis get: %w", err)
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Session{}, false, fmt.Errorf("session: decode: %w", err)
	}
	if s.expired(now) {
		_ = r.client.Del(ctx, r.key(id)).Err()
		return Session{}, false, nil
	}
	s.LastUsedAt = now
	if err := r.Put(ctx, s); err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

// Sweep is a no-op: Redis's own key TTL already reaps expired sessions.
func (r *RedisStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ Store = (*RedisStore)(nil)
