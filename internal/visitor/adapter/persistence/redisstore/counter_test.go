package redisstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestRedisClient(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:        "localhost:6379",
		DB:          15,
		DialTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available for testing:", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func newTestStore(t *testing.T) *CounterStore {
	client := createTestRedisClient(t)
	prefix := "test-" + uuid.NewString()
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	})
	return NewCounterStore(client, prefix, nil)
}

func TestRedisCounter_AtomicIncrement(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, found, err := s.Read(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	first, err := s.Atomic().Increment(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.Count)
	require.NotNil(t, first.CreatedAt)

	second, err := s.Atomic().Increment(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, second.Count)
	assert.True(t, first.CreatedAt.Equal(*second.CreatedAt))

	rec, found, err := s.Read(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.EqualValues(t, 2, rec.Count)
}

func TestRedisCounter_ConcurrentAtomicIncrementsAllLand(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Atomic().Increment(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, _, err := s.Read(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 20, rec.Count)
}

func TestRedisCounter_FallbackNeverLowers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.client.Set(ctx, s.countKey(), 100, 0).Err())

	rec, err := s.Fallback().Increment(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 101, rec.Count)

	require.NoError(t, s.client.Set(ctx, s.countKey(), 500, 0).Err())
	require.NoError(t, maxSet.Run(ctx, s.client, []string{s.countKey(), s.createdKey()}, 102, "x").Err())

	stored, _, err := s.Read(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 500, stored.Count)
	require.NotNil(t, stored.CreatedAt)
}

func TestRedisCounter_VisitorGate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.FirstVisit(ctx, "v1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.FirstVisit(ctx, "v1", time.Minute)
	require.NoError(t, err)
	assert.False(t, again)
}
