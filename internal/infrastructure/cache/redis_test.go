package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowattr-lab/internal/domain/models"
	"flowattr-lab/pkg/logger"
)

// newTestCache connects to the Redis named by FLOWATTR_TEST_REDIS_ADDR under
// a unique key prefix
func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	addr := os.Getenv("FLOWATTR_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FLOWATTR_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())

	prefix := "flowattr-test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	})
	return NewRedisWithClient(client, prefix, logger.NewNop())
}

func TestKeyPrefix(t *testing.T) {
	c := NewRedisWithClient(redis.NewClient(&redis.Options{}), "flowattr:", logger.NewNop())
	assert.Equal(t, "flowattr:runs:last", c.key(KeyLastRun))
}

func TestRunHistory(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	last, err := c.LastRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	var ids []uuid.UUID
	for i := 0; i < HistoryLength+5; i++ {
		s := models.NewRunSummary(models.Timeframe{})
		s.Edges = i
		s.Complete(nil)
		require.NoError(t, c.SaveRun(ctx, s))
		ids = append(ids, s.ID)
	}

	last, err = c.LastRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, ids[len(ids)-1], last.ID)

	history, err := c.RunHistory(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, history, HistoryLength)
	assert.Equal(t, ids[len(ids)-1], history[0].ID)

	history, err = c.RunHistory(ctx, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, HistoryLength+2, history[2].Edges)
}

func TestTraces(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	var out map[string]int
	found, err := c.GetTrace(ctx, "alice:1:2", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.SetTrace(ctx, "alice:1:2", map[string]int{"chains": 2}))
	found, err = c.GetTrace(ctx, "alice:1:2", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, map[string]int{"chains": 2}, out)
}

func TestLock(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	lock, err := c.AcquireLock(ctx, "attributor", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lock)

	other, err := c.AcquireLock(ctx, "attributor", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, lock.Refresh(ctx))
	require.NoError(t, lock.Release(ctx))
	assert.ErrorIs(t, lock.Refresh(ctx), ErrLockNotHeld)
	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)

	again, err := c.AcquireLock(ctx, "attributor", time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, again)
}

func TestCheckRateLimit(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, _, err := c.CheckRateLimit(ctx, "client", 3, time.Hour)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, remaining, reset, err := c.CheckRateLimit(ctx, "client", 3, time.Hour)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Zero(t, remaining)
	assert.True(t, reset.After(time.Now()))
}
