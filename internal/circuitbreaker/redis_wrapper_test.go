package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRedisWrapper_NormalOperations(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	wrapper := NewRedisWrapper(client, "embedding-cache", zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, wrapper.Ping(ctx).Err())
	require.NoError(t, wrapper.Set(ctx, "emb:key", "value", time.Minute).Err())

	got := wrapper.Get(ctx, "emb:key")
	require.NoError(t, got.Err())
	assert.Equal(t, "value", got.Val())

	assert.ErrorIs(t, wrapper.Get(ctx, "emb:missing").Err(), redis.Nil)

	del := wrapper.Del(ctx, "emb:key")
	require.NoError(t, del.Err())
	assert.Equal(t, int64(1), del.Val())
	assert.False(t, wrapper.IsCircuitBreakerOpen())
}

func TestRedisWrapper_CircuitBreakerTriggering(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	addr := s.Addr()
	s.Close()

	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	defer client.Close()

	wrapper := NewRedisWrapper(client, "embedding-cache", zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		assert.Error(t, wrapper.Ping(ctx).Err())
	}
	require.True(t, wrapper.IsCircuitBreakerOpen())
	assert.ErrorIs(t, wrapper.Get(ctx, "emb:any").Err(), ErrCircuitBreakerOpen)
}

func TestRedisWrapper_RedisNilHandling(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	wrapper := NewRedisWrapper(client, "embedding-cache", zaptest.NewLogger(t))
	for i := 0; i < 10; i++ {
		assert.ErrorIs(t, wrapper.Get(context.Background(), "emb:missing").Err(), redis.Nil)
	}
	assert.False(t, wrapper.IsCircuitBreakerOpen())
}
