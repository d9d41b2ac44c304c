// Package cache implements the bounded, TTL-based, prefix-invalidatable
// in-process map used by the response cache (C4), config resolver cache
// (C8), and secret cache (C11). Each of those caches needs eviction and
// invalidation semantics (drop-expired-first, then drop-oldest-insertion;
// prefix-scoped invalidate) more exact than a generic LRU library exposes,
// so this is a small hand-rolled structure rather than a third-party cache
// — see DESIGN.md for why github.com/maypok86/otter/v2 (used elsewhere in
// this repo for the bounded rate-limiter-instance cache) doesn't fit here.
package cache

import (
	"sync"
	"time"
)

// entry is the internal bookkeeping wrapper around a cached value.
type entry[V any] struct {
	value     V
	expiresAt time.Time
	insertSeq uint64
}

// Cache is a generic bounded, TTL-based map safe for concurrent use.
type Cache[V any] struct {
	mu       sync.Mutex
	data     map[string]entry[V]
	maxSize  int
	seq      uint64
	nowFn    func() time.Time
}

// New builds a Cache capped at maxSize entries.
func New[V any](maxSize int) *Cache[V] {
	return &Cache[V]{
		data:    make(map[string]entry[V]),
		maxSize: maxSize,
		nowFn:   time.Now,
	}
}

// Get returns the cached value iff present and not expired; an expired
// entry is deleted as a side effect, never returned.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok {
		return zero, false
	}
	if c.nowFn().After(e.expiresAt) {
		delete(c.data, key)
		return zero, false
	}
	return e.value, true
}

// Set inserts or overwrites key with the given TTL, evicting expired
// entries first and then the oldest-inserted entry if still over capacity.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.data[key] = entry[V]{
		value:     value,
		expiresAt: c.nowFn().Add(ttl),
		insertSeq: c.seq,
	}
	c.evictLocked()
}

// evictLocked must be called with c.mu held. It drops expired entries
// first; if still over capacity, drops the oldest-inserted entries.
func (c *Cache[V]) evictLocked() {
	if len(c.data) <= c.maxSize {
		return
	}

	now := c.nowFn()
	for k, e := range c.data {
		if now.After(e.expiresAt) {
			delete(c.data, k)
		}
	}
	if len(c.data) <= c.maxSize {
		return
	}

	for len(c.data) > c.maxSize {
		var oldestKey string
		var oldestSeq uint64 = ^uint64(0)
		for k, e := range c.data {
			if e.insertSeq < oldestSeq {
				oldestSeq = e.insertSeq
				oldestKey = k
			}
		}
		delete(c.data, oldestKey)
	}
}

// InvalidatePrefix removes every key beginning with prefix.
func (c *Cache[V]) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.data, k)
		}
	}
}

// Len returns the current entry count (for tests).
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// SetClock overrides the time source (for tests).
func (c *Cache[V]) SetClock(fn func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nowFn = fn
}

// Entry is the value stored by the response cache (C4).
type Entry struct {
	Body      []byte
	Status    int
	Headers   map[string][]string
	ExpiresAt time.Time
}

// ConfigEntry is the value stored by the config resolver cache (C8); Found
// distinguishes a cached "no such connector/endpoint" negative result from
// an absent cache entry.
type ConfigEntry[T any] struct {
	Value T
	Found bool
}
