package sessionstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

// RedisStore is the remote-cache Session Store backend. TTL is enforced
// server-side by Redis itself, so CleanupExpired is a no-op: expired keys
// are simply gone by the time ListKeys/Count would see them.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore wires a Session Store backed by a Redis client. Every key
// is namespaced under prefix and written with TTL as its expiration.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(k string) string { return r.prefix + k }

func (r *RedisStore) Get(ctx context.Context, key string) (*coretypes.SessionContext, error) {
	b, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var sc coretypes.SessionContext
	if err := json.Unmarshal(b, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (r *RedisStore) Save(ctx context.Context, s *coretypes.SessionContext) error {
	s.UpdatedAt = time.Now()
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(s.Key), b, r.ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	return n > 0, err
}

func (r *RedisStore) ListKeys(ctx context.Context) ([]string, error) {
	var out []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val()[len(r.prefix):])
	}
	return out, iter.Err()
}

func (r *RedisStore) Count(ctx context.Context) (int, error) {
	keys, err := r.ListKeys(ctx)
	return len(keys), err
}

// CleanupExpired is a no-op: Redis evicts expired keys itself.
func (r *RedisStore) CleanupExpired(ctx context.Context) (int, error) {
	return 0, nil
}
