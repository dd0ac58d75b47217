package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryCacheSetGet(t *testing.T) {
	c := NewEntryCache[string](10, time.Minute)
	c.Set("k", "v")

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestEntryCacheMiss(t *testing.T) {
	c := NewEntryCache[int](10, time.Minute)

	_, ok := c.Get("absent")
	assert.False(t, ok)
}

func TestEntryCacheExpiry(t *testing.T) {
	c := NewEntryCache[string](10, time.Minute)
	c.SetWithTTL("k", "v", 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
	// 惰性删除后条目不再占容量
	assert.Equal(t, 0, c.Len())
}

func TestEntryCacheEviction(t *testing.T) {
	c := NewEntryCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("c")
	assert.True(t, ok)
}

func TestEntryCacheStats(t *testing.T) {
	c := NewEntryCache[string](10, time.Minute)
	c.Set("k", "v")

	c.Get("k")
	c.Get("k")
	c.Get("absent")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 0.001)
}

func TestEntryCacheClear(t *testing.T) {
	c := NewEntryCache[string](10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	c.Clear()
	assert.Equal(t, 0, c.Len())
}
