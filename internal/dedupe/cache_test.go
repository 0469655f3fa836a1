package dedupe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordKey struct {
	id        string
	fetchedAt int64
}

func TestCacheSeenDuplicate(t *testing.T) {
	cache := NewCache[recordKey](10, time.Minute)
	key := recordKey{id: "openweathermap", fetchedAt: 1}
	require.False(t, cache.IsSeen(key))
	cache.MarkSeen(key)
	require.True(t, cache.IsSeen(key))
	require.False(t, cache.IsSeen(recordKey{id: "openweathermap", fetchedAt: 2}))
}

func TestCacheTTLExpiry(t *testing.T) {
	cache := NewCache[string](10, time.Minute)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }

	cache.MarkSeen("beta")
	require.True(t, cache.IsSeen("beta"))

	clock = clock.Add(2 * time.Minute)
	require.False(t, cache.IsSeen("beta"))

	cache.MarkSeen("gamma")
	require.Equal(t, 1, cache.Len())
}

func TestCacheCapacityEvictsOldest(t *testing.T) {
	cache := NewCache[string](1, time.Minute)
	cache.MarkSeen("first")
	cache.MarkSeen("second")

	require.False(t, cache.IsSeen("first"))
	require.True(t, cache.IsSeen("second"))
	require.Equal(t, 1, cache.Len())
}

func TestCacheRemarkKeepsLatest(t *testing.T) {
	cache := NewCache[string](2, time.Minute)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }

	cache.MarkSeen("a")
	clock = clock.Add(time.Second)
	cache.MarkSeen("b")
	clock = clock.Add(time.Second)
	cache.MarkSeen("a")
	clock = clock.Add(time.Second)
	cache.MarkSeen("c")

	require.True(t, cache.IsSeen("a"))
	require.True(t, cache.IsSeen("c"))
	require.False(t, cache.IsSeen("b"))
}
