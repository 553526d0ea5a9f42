// Package dedupe remembers recently processed document URLs so replayed feed
// messages are not archived or republished twice.
package dedupe

import (
	"strings"
	"sync"
	"time"
)

type entry struct {
	key string
	ts  time.Time
}

// Cache is a bounded, TTL-limited set of URLs in insertion order.
type Cache struct {
	mu       sync.Mutex
	items    map[string]time.Time
	order    []entry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		items:    make(map[string]time.Time, capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Key normalizes a document URL into a cache key.
func Key(url string) string {
	return strings.TrimRight(strings.TrimSpace(url), "/")
}

// Seen reports whether url was recorded inside the ttl window.
func (c *Cache) Seen(url string) bool {
	key := Key(url)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live(key, c.now())
}

// Mark records url as processed.
func (c *Cache) Mark(url string) {
	key := Key(url)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mark(key, c.now())
}

// CheckAndMark records url and reports whether it was already present. Empty
// URLs are never recorded and always report false.
func (c *Cache) CheckAndMark(url string) bool {
	key := Key(url)
	if key == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.live(key, now) {
		return true
	}
	c.mark(key, now)
	return false
}

// Len returns the number of tracked URLs, expired ones included until the
// next write compacts them.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) live(key string, now time.Time) bool {
	ts, ok := c.items[key]
	return ok && now.Sub(ts) <= c.ttl
}

func (c *Cache) mark(key string, now time.Time) {
	c.items[key] = now
	c.order = append(c.order, entry{key: key, ts: now})
	c.compact(now)
}

func (c *Cache) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		if ts, ok := c.items[oldest.key]; ok && ts.Equal(oldest.ts) {
			delete(c.items, oldest.key)
		}
	}
}
