package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithConfig_RequiresABound(t *testing.T) {
	_, err := NewWithConfig(CacheConfig[string, int]{})
	require.Error(t, err)
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c, err := NewWithConfig(CacheConfig[string, int]{
		Capacity: 2,
		OnEvict:  func(key string, _ int) { evicted = append(evicted, key) },
	})
	require.NoError(t, err)

	c.Put("a", 1, 1)
	c.Put("b", 2, 1)

	// touching "a" makes "b" the eviction candidate
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("c", 3, 1)

	_, ok = c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, 2, c.Len())
}

func TestLRUCache_UpdateKeepsSingleEntry(t *testing.T) {
	c, err := NewLRU[string, int](3)
	require.NoError(t, err)

	c.Put("a", 1, 1)
	c.Put("a", 2, 1)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, c.Weight())
}

func TestLRUCache_MaxWeight(t *testing.T) {
	c, err := NewWithConfig(CacheConfig[string, string]{MaxWeight: 10})
	require.NoError(t, err)

	c.Put("small", "x", 3)
	c.Put("medium", "y", 4)
	c.Put("large", "z", 8)

	_, ok := c.Peek("small")
	assert.False(t, ok)
	_, ok = c.Peek("medium")
	assert.False(t, ok)
	_, ok = c.Peek("large")
	assert.True(t, ok)
	assert.Equal(t, 8, c.Weight())
}

func TestLRUCache_TTL(t *testing.T) {
	c, err := NewWithConfig(CacheConfig[string, int]{Capacity: 4, TTL: time.Minute})
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put("k", 1, 1)
	_, ok := c.Get("k")
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRUCache_PeekDoesNotPromote(t *testing.T) {
	c, err := NewLRU[string, int](2)
	require.NoError(t, err)

	c.Put("a", 1, 1)
	c.Put("b", 2, 1)
	_, _ = c.Peek("a")
	c.Put("c", 3, 1)

	_, ok := c.Peek("a")
	assert.False(t, ok, "peek must not refresh recency")
}

func TestLRUCache_Stats(t *testing.T) {
	c, err := NewLRU[string, int](1)
	require.NoError(t, err)

	c.Put("a", 1, 1)
	c.Get("a")
	c.Get("missing")
	c.Put("b", 2, 1)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Evictions)
	assert.Equal(t, 1, stats.Len)

	assert.True(t, c.Remove("b"))
	assert.False(t, c.Remove("b"))
}
