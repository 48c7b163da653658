package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore is an optional shared backend for the Site Profiler and
// Pattern Tracker, grounded on the teacher's core/redis_client.go
// namespacing convention. Unlike the JSON-file store it is safe to share
// across multiple engine processes (SPEC_FULL.md §3).
type RedisStore struct {
	client    *redis.Client
	namespace string
}

// NewRedisStore dials redisURL and namespaces all keys under namespace
// (e.g. "webagent:profiles", "webagent:patterns").
func NewRedisStore(redisURL, namespace string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("store: parsing redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: connecting to redis: %w", err)
	}

	return &RedisStore{client: client, namespace: namespace}, nil
}

func (s *RedisStore) key(name string) string {
	return fmt.Sprintf("%s:%s", s.namespace, name)
}

// LoadJSON fetches the value stored under name into dst. A missing key
// is treated as "empty" (no error), consistent with the file store.
func (s *RedisStore) LoadJSON(ctx context.Context, name string, dst interface{}) error {
	data, err := s.client.Get(ctx, s.key(name)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return nil // tolerate corruption/unavailability like the file store
	}
	_ = json.Unmarshal(data, dst)
	return nil
}

// SaveJSON stores src under name with no expiry — learning is meant to
// persist indefinitely, matching the file-backed store's semantics.
func (s *RedisStore) SaveJSON(ctx context.Context, name string, src interface{}) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("store: marshaling %s: %w", name, err)
	}
	return s.client.Set(ctx, s.key(name), data, 0).Err()
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
