package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workloadgen/internal/workload"
)

func newTestBackend(t *testing.T) (*Backend, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)
	b := NewWithClient(redis.NewClient(&redis.Options{Addr: s.Addr()}))
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b, s
}

func TestKeyPrefix(t *testing.T) {
	assert.Equal(t, "db1:users:", KeyPrefix(workload.Target{Namespace: "db1", Name: "users"}))
	assert.Equal(t, "events:", KeyPrefix(workload.Target{Name: "events"}))
}

func TestRedisLifecycle(t *testing.T) {
	ctx := context.Background()
	b, s := newTestBackend(t)
	require.NoError(t, b.Ping(ctx))

	target := workload.Target{Namespace: "db1", Name: "users"}
	id, err := b.Insert(ctx, target, workload.Record{Fields: map[string]any{
		"name":   "alice",
		"age":    30,
		"nested": map[string]any{"x": 1},
	}})
	require.NoError(t, err)

	key := KeyPrefix(target) + id
	assert.True(t, s.Exists(key))
	assert.Equal(t, "alice", s.HGet(key, "name"))
	assert.Equal(t, "30", s.HGet(key, "age"))
	assert.Equal(t, `{"x":1}`, s.HGet(key, "nested"))

	n, err := b.UpdateByID(ctx, target, id, workload.Patch{"status": "archived", "revision": 7})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, "archived", s.HGet(key, "status"))
	assert.Equal(t, "7", s.HGet(key, "revision"))

	n, err = b.DeleteByID(ctx, target, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, s.Exists(key))
}

func TestRedisMissingKeys(t *testing.T) {
	ctx := context.Background()
	b, s := newTestBackend(t)
	target := workload.Target{Namespace: "db1", Name: "users"}

	n, err := b.UpdateByID(ctx, target, "missing", workload.Patch{"status": "active"})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, s.Exists(KeyPrefix(target)+"missing"), "update must not create records")

	n, err = b.DeleteByID(ctx, target, "missing")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisErrorsWhenServerDown(t *testing.T) {
	ctx := context.Background()
	b, s := newTestBackend(t)
	s.Close()
	_, err := b.Insert(ctx, workload.Target{Name: "t"}, workload.Record{Fields: map[string]any{"a": "b"}})
	assert.Error(t, err)
}
