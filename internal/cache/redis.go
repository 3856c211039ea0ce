package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is the Redis-backed Cache, grounded on the teacher's
// storage/redis.Storage: JSON-encoded values under a key prefix, TTL
// delegated to Redis's own expiry rather than reimplemented client-side.
// Model schema versions live in a separate INCR-able counter key so
// InvalidateModel is a single atomic command instead of a key scan.
type Redis struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedis builds a Redis-backed Cache. client is expected to already be
// configured (address, TLS, auth) by the caller.
func NewRedis(client *redis.Client, keyPrefix string) *Redis {
	if keyPrefix == "" {
		keyPrefix = "odoomcp:cache:"
	}
	return &Redis{client: client, keyPrefix: keyPrefix}
}

func (r *Redis) versionKey(model string) string {
	return r.keyPrefix + "schema_version:" + model
}

func (r *Redis) SchemaVersion(ctx context.Context, model string) (int64, error) {
	val, err := r.client.Get(ctx, r.versionKey(model)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache: get schema version: %w", err)
	}
	v, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cache: parse schema version: %w", err)
	}
	return v, nil
}

func (r *Redis) InvalidateModel(ctx context.Context, model string) error {
	if err := r.client.Incr(ctx, r.versionKey(model)).Err(); err != nil {
		return fmt.Errorf("cache: bump schema version: %w", err)
	}
	return nil
}

type storedValue struct {
	Value any `json:"value"`
}

func (r *Redis) Get(ctx context.Context, key Key) (any, bool, error) {
	version, err := r.SchemaVersion(ctx, key.Model)
	if err != nil {
		return nil, false, err
	}
	storageKey, err := key.hash(version)
	if err != nil {
		return nil, false, err
	}
	raw, err := r.client.Get(ctx, r.keyPrefix+storageKey).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: redis get: %w", err)
	}
	var sv storedValue
	if err := json.Unmarshal([]byte(raw), &sv); err != nil {
		return nil, false, fmt.Errorf("cache: decode cached value: %w", err)
	}
	return sv.Value, true, nil
}

func (r *Redis) Set(ctx context.Context, key Key, value any, ttl time.Duration) error {
	version, err := r.SchemaVersion(ctx, key.Model)
	if err != nil {
		return err
	}
	storageKey, err := key.hash(version)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(storedValue{Value: value})
	if err != nil {
		return fmt.Errorf("cache: encode value: %w", err)
	}
	if err := r.client.Set(ctx, r.keyPrefix+storageKey, raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
