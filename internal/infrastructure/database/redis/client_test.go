package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ShiftScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShiftScope/pkg/errors"
)

func TestNewClient_Standalone_Success(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err := NewClient(context.Background(), &RedisConfig{Mode: "standalone", Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	require.NotNil(t, client)
	defer client.Close()

	assert.NoError(t, client.GetUnderlyingClient().Ping(context.Background()).Err())
}

func TestNewClient_DefaultsToStandalone(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := &RedisConfig{Addr: mr.Addr()}
	client, err := NewClient(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, "standalone", cfg.Mode)
	assert.Equal(t, 10, cfg.PoolSize)
}

func TestNewClient_ConnectionFailed(t *testing.T) {
	cfg := &RedisConfig{Mode: "standalone", Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond}

	client, err := NewClient(context.Background(), cfg, logging.NewNopLogger())
	assert.Nil(t, client)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCacheError))
}

func TestClient_Operations(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err := NewClient(context.Background(), &RedisConfig{Addr: mr.Addr()}, nil)
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "foo", "bar", time.Minute).Err())
	val, err := client.Get(ctx, "foo").Result()
	assert.NoError(t, err)
	assert.Equal(t, "bar", val)

	ttl, err := client.TTL(ctx, "foo").Result()
	assert.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	exists, err := client.Exists(ctx, "foo").Result()
	assert.NoError(t, err)
	assert.EqualValues(t, 1, exists)

	deleted, err := client.Del(ctx, "foo").Result()
	assert.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}

func TestCache_AgainstMiniredis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err := NewClient(context.Background(), &RedisConfig{Addr: mr.Addr()}, nil)
	require.NoError(t, err)
	defer client.Close()

	cache := NewRedisCache(client, nil, WithPrefix("ss:"), WithDefaultTTL(time.Hour))
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "nmr:prediction:CCO", map[string]int{"signals": 5}, 0))
	assert.True(t, mr.Exists("ss:nmr:prediction:CCO"))

	ttl := mr.TTL("ss:nmr:prediction:CCO")
	assert.InDelta(t, float64(time.Hour), float64(ttl), float64(6*time.Minute))

	var got map[string]int
	require.NoError(t, cache.Get(ctx, "nmr:prediction:CCO", &got))
	assert.Equal(t, 5, got["signals"])

	n, err := cache.DeleteByPrefix(ctx, "nmr:")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestClient_Close(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err := NewClient(context.Background(), &RedisConfig{Addr: mr.Addr()}, nil)
	require.NoError(t, err)

	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())

	assert.Equal(t, ErrClientClosed, client.Get(context.Background(), "foo").Err())
	assert.Equal(t, ErrClientClosed, client.Ping(context.Background()))
}
