package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &RedisStore{client: client, namespace: "webagent:test"}
}

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestRedisStoreSaveAndLoadRoundTrip(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	in := sample{Name: "react", Count: 3}
	require.NoError(t, s.SaveJSON(ctx, "profiles", in))

	var out sample
	require.NoError(t, s.LoadJSON(ctx, "profiles", &out))
	assert.Equal(t, in, out)
}

func TestRedisStoreLoadMissingKeyIsEmpty(t *testing.T) {
	s := newTestRedisStore(t)
	var out sample
	require.NoError(t, s.LoadJSON(context.Background(), "does-not-exist", &out))
	assert.Equal(t, sample{}, out)
}

func TestRedisStoreNamespacesKeys(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveJSON(ctx, "patterns", sample{Name: "x"}))

	raw, err := s.client.Get(ctx, "webagent:test:patterns").Result()
	require.NoError(t, err)
	assert.Contains(t, raw, "\"name\":\"x\"")
}
