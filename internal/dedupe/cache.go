package dedupe

import (
	"sync"
	"time"
)

type entry[K comparable] struct {
	key K
	ts  time.Time
}

// Cache remembers recently processed keys, bounded by capacity and ttl.
// The worker keys it by record fingerprint and snapshot time so redelivered
// messages are not indexed twice.
type Cache[K comparable] struct {
	mu       sync.Mutex
	items    map[K]time.Time
	order    []entry[K]
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache[K comparable](capacity int, ttl time.Duration) *Cache[K] {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache[K]{
		items:    make(map[K]time.Time, capacity),
		order:    make([]entry[K], 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// IsSeen returns true when the key has already been observed inside the ttl window.
// It does not mark the key as seen; use MarkSeen() to record a key.
func (c *Cache[K]) IsSeen(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ts, ok := c.items[key]; ok {
		if c.now().Sub(ts) <= c.ttl {
			return true
		}
	}
	return false
}

// MarkSeen records that a key has been processed.
func (c *Cache[K]) MarkSeen(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.items[key] = now
	c.order = append(c.order, entry[K]{key: key, ts: now})
	c.compact(now)
}

// Len reports how many keys are currently remembered.
func (c *Cache[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache[K]) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		if ts, ok := c.items[oldest.key]; ok && ts.Equal(oldest.ts) {
			delete(c.items, oldest.key)
		}
	}
}
