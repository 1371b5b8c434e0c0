package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

type summary struct {
	Total int      `json:"total"`
	Names []string `json:"names"`
}

func exerciseCache(t *testing.T, c Cache) {
	ctx := context.Background()
	var got summary
	assert.True(t, errors.Is(c.Get(ctx, "missing", &got), ErrMiss))

	want := summary{Total: 3, Names: []string{"a", "b"}}
	require.NoError(t, c.Set(ctx, "dash", want, time.Minute))
	require.NoError(t, c.Get(ctx, "dash", &got))
	assert.Equal(t, want, got)

	require.NoError(t, c.Delete(ctx, "dash", "never-set"))
	assert.True(t, errors.Is(c.Get(ctx, "dash", &got), ErrMiss))
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	defer c.Close()
	assert.Equal(t, "memory", c.Name())
	exerciseCache(t, c)
}

func TestMemoryCacheExpires(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "short", summary{Total: 1}, 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	var got summary
	assert.True(t, errors.Is(c.Get(ctx, "short", &got), ErrMiss))
}

// redisAddr prefers TEST_REDIS_ADDR and otherwise starts a throwaway
// container.
func redisAddr(t *testing.T) string {
	t.Helper()
	if addr := os.Getenv("TEST_REDIS_ADDR"); addr != "" {
		return addr
	}
	if testing.Short() {
		t.Skip("redis tests need docker or TEST_REDIS_ADDR")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()
	ctr, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)
	addr, err := ctr.Endpoint(ctx, "")
	require.NoError(t, err)
	return addr
}

func TestRedisCache(t *testing.T) {
	addr := redisAddr(t)
	c, err := NewRedisCache(context.Background(), addr, "", 0)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Ping(context.Background()))
	exerciseCache(t, c)
}
