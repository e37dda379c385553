package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs only against a live server, e.g. REDIS_ADDR=localhost:6379.
func TestRedisCache_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()

	c, err := NewRedisCache(ctx, addr, "", 0)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	require.NoError(t, c.Set(ctx, "test:k", []string{"a", "b"}, time.Minute))
	var got []string
	require.NoError(t, c.Get(ctx, "test:k", &got))
	assert.Equal(t, []string{"a", "b"}, got)

	require.NoError(t, c.Delete(ctx, "test:k"))
	assert.ErrorIs(t, c.Get(ctx, "test:k", &got), ErrCacheMiss)
}
