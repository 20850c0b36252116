// Package cache wraps patrickmn/go-cache with user-namespaced keys and
// hit/miss counters, grounded on the TTL-cache usage in
// other_examples/9003ec69_blitzy-public-samples-test-94ilr1's email_service.go
// (cache.New(ttl, ttl*2), cache.DefaultExpiration Set/Get).
package cache

import (
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is the look-aside cache shared by the analyzers (spec.md §4.F
// "Caching"), which the categorization engine flushes per user after a run;
// the search engine does not use it. Keys are namespaced by user so one
// process-wide cache can serve every open Store without cross-user leakage.
type Cache struct {
	c *gocache.Cache

	hits   int64
	misses int64
}

// New builds a cache with defaultTTL as both the default expiration and the
// cleanup-interval basis (2x defaultTTL), matching the ratio the pack
// example uses.
func New(defaultTTL time.Duration) *Cache {
	return &Cache{c: gocache.New(defaultTTL, defaultTTL*2)}
}

func key(userID, k string) string {
	return userID + ":" + k
}

// Get returns the cached value for (userID, k), tracking a hit or miss.
func (c *Cache) Get(userID, k string) (interface{}, bool) {
	v, found := c.c.Get(key(userID, k))
	if found {
		atomic.AddInt64(&c.hits, 1)
	} else {
		atomic.AddInt64(&c.misses, 1)
	}
	return v, found
}

// Set stores a value under the cache's default expiration.
func (c *Cache) Set(userID, k string, v interface{}) {
	c.c.Set(key(userID, k), v, gocache.DefaultExpiration)
}

// SetWithTTL stores a value with an explicit expiration, for entries that
// outlive or expire sooner than the cache default (e.g. an analyzer result
// cached under that analyzer's own TTL).
func (c *Cache) SetWithTTL(userID, k string, v interface{}, ttl time.Duration) {
	c.c.Set(key(userID, k), v, ttl)
}

// InvalidateUser drops every entry namespaced to userID, used after a bulk
// mutation changes emails the cache may be holding stale copies of.
func (c *Cache) InvalidateUser(userID string) {
	prefix := userID + ":"
	for k := range c.c.Items() {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			c.c.Delete(k)
		}
	}
}

// Stats is a point-in-time snapshot of cache effectiveness, surfaced the way
// the pack example exposes "cache_items" from GetMetrics.
type Stats struct {
	Hits      int64
	Misses    int64
	ItemCount int
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		ItemCount: c.c.ItemCount(),
	}
}
