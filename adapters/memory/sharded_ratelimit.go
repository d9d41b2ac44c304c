package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/svcgate/gateway/ports"
)

// counterEntry is one counter's current value and its expiry.
type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// counterShard is a single shard of a sharded counter store.
type counterShard struct {
	mu    sync.Mutex
	state map[string]counterEntry
}

// ShardedCounterStore is an in-process fallback implementation of
// ports.RateLimitKV/ports.QuotaKV, used when kv.mode is "memory" instead
// of a distributed valkey instance. Sharded by FNV-1a hash of the key to
// reduce lock contention under high throughput, mirroring the teacher's
// sharded rate-limit store.
type ShardedCounterStore struct {
	shards    []*counterShard
	numShards int
	cleanup   *time.Ticker
	done      chan struct{}
}

// ShardedCounterConfig configures the sharded counter store.
type ShardedCounterConfig struct {
	NumShards       int           // default 32
	CleanupInterval time.Duration // default 5m
}

// NewShardedCounterStore creates a new sharded in-memory counter store.
func NewShardedCounterStore(cfg ShardedCounterConfig) *ShardedCounterStore {
	if cfg.NumShards <= 0 {
		cfg.NumShards = 32
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}

	s := &ShardedCounterStore{
		shards:    make([]*counterShard, cfg.NumShards),
		numShards: cfg.NumShards,
		done:      make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &counterShard{state: make(map[string]counterEntry)}
	}

	s.cleanup = time.NewTicker(cfg.CleanupInterval)
	go s.cleanupLoop()

	return s
}

func (s *ShardedCounterStore) getShard(key string) *counterShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(s.numShards)]
}

// Incr implements ports.RateLimitKV and ports.QuotaKV: it increments the
// counter at key, setting ttl only when the key is created (first write or
// after the previous entry expired), and returns the new count.
func (s *ShardedCounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	shard := s.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	now := time.Now()
	entry, ok := shard.state[key]
	if !ok || (!entry.expiresAt.IsZero() && now.After(entry.expiresAt)) {
		entry = counterEntry{count: 0, expiresAt: now.Add(ttl)}
	}
	entry.count++
	shard.state[key] = entry
	return entry.count, nil
}

// Get implements ports.QuotaKV's read without incrementing.
func (s *ShardedCounterStore) Get(ctx context.Context, key string) (int64, error) {
	shard := s.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.state[key]
	if !ok {
		return 0, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		return 0, nil
	}
	return entry.count, nil
}

func (s *ShardedCounterStore) cleanupLoop() {
	for {
		select {
		case <-s.cleanup.C:
			s.doCleanup()
		case <-s.done:
			return
		}
	}
}

func (s *ShardedCounterStore) doCleanup() {
	now := time.Now()
	for _, shard := range s.shards {
		shard.mu.Lock()
		for key, entry := range shard.state {
			if !entry.expiresAt.IsZero() && entry.expiresAt.Before(now) {
				delete(shard.state, key)
			}
		}
		shard.mu.Unlock()
	}
}

// Close stops the cleanup goroutine.
func (s *ShardedCounterStore) Close() error {
	close(s.done)
	s.cleanup.Stop()
	return nil
}

// Clear removes all state (for testing).
func (s *ShardedCounterStore) Clear() {
	for _, shard := range s.shards {
		shard.mu.Lock()
		shard.state = make(map[string]counterEntry)
		shard.mu.Unlock()
	}
}

// Len returns the total number of entries across all shards (for testing).
func (s *ShardedCounterStore) Len() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		total += len(shard.state)
		shard.mu.Unlock()
	}
	return total
}

var (
	_ ports.RateLimitKV = (*ShardedCounterStore)(nil)
	_ ports.QuotaKV     = (*ShardedCounterStore)(nil)
)
