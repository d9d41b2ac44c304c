package ratelimit

import (
	"fmt"

	"github.com/maypok86/otter/v2"
)

// Limiter is the per-rateLimit-value handle: its consumed state lives in
// the external KV (ports.RateLimitKV), keyed by Key(limit, consumerKey);
// this struct just carries the configured limit so callers don't
// recompute it per request.
type Limiter struct {
	Limit int64
}

// LimiterCache caches one Limiter per distinct rateLimit points value,
// capped at 256 entries (spec.md §4.5, §6's "limiter cache is capped at
// 256 unique limit values"). Backed by otter/v2's MaximumSize bound: once
// the cap is reached, otter's own size-based policy picks the entry to
// evict, and that order is not strict least-recently-used. Entries have no
// TTL and the key space (int rate limits) is small, unlike the
// TTL+prefix-invalidation cache in domain/cache which otter's API doesn't
// cover.
type LimiterCache struct {
	cache *otter.Cache[int64, *Limiter]
}

// DefaultLimiterCacheSize is the cap mandated by spec.md §4.5/§6.
const DefaultLimiterCacheSize = 256

// NewLimiterCache creates a cache capped at maxSize limiters.
func NewLimiterCache(maxSize int) (*LimiterCache, error) {
	if maxSize <= 0 {
		maxSize = DefaultLimiterCacheSize
	}
	c, err := otter.New[int64, *Limiter](&otter.Options[int64, *Limiter]{
		MaximumSize: maxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("ratelimit: create limiter cache: %w", err)
	}
	return &LimiterCache{cache: c}, nil
}

// Get returns the cached Limiter for rateLimit, creating and caching one
// if absent.
func (c *LimiterCache) Get(rateLimit int64) *Limiter {
	if l, ok := c.cache.GetIfPresent(rateLimit); ok {
		return l
	}
	l := &Limiter{Limit: rateLimit}
	c.cache.Set(rateLimit, l)
	return l
}

// Len reports the current number of cached limiters (for testing).
func (c *LimiterCache) Len() int {
	return c.cache.EstimatedSize()
}
