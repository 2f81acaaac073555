package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGetClear(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()

	c.Set("k", "v", 0)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	c.Clear("k")

	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache().(*memoryCache)

	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	c.nowFunc = func() time.Time { return now }

	c.Set("k", 42, time.Minute)

	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)

	_, ok = c.Get("k")
	assert.False(t, ok)

	// Zero TTL never expires.
	c.Set("forever", 1, 0)
	now = now.Add(1000 * time.Hour)

	_, ok = c.Get("forever")
	assert.True(t, ok)
}
