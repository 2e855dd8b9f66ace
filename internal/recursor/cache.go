package recursor

import (
	"hash/fnv"
	"sync"
	"time"
)

// shardCount mirrors the sharded cache shape the authoritative path also
// uses (internal/cache), generalized here to a generic value type so the
// same structure serves both the NS-delegation cache and the response cache.
const shardCount = 256

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

type cacheShard[V any] struct {
	mu    sync.RWMutex
	items map[string]cacheEntry[V]
}

// boundedCache is a sharded, size-capped, TTL-expiring cache. Sharding
// reduces lock contention under concurrent request load; the size cap
// enforces ns_cache_size/response_cache_size by evicting an arbitrary entry
// from the target shard once that shard is full, which bounds memory
// without the bookkeeping cost of a strict global LRU.
type boundedCache[V any] struct {
	shards     [shardCount]*cacheShard[V]
	perShardCap int
}

func newBoundedCache[V any](maxSize int) *boundedCache[V] {
	c := &boundedCache[V]{perShardCap: maxSize/shardCount + 1}
	for i := range c.shards {
		c.shards[i] = &cacheShard[V]{items: make(map[string]cacheEntry[V])}
	}
	go c.cleanupLoop()
	return c
}

func (c *boundedCache[V]) shardFor(key string) *cacheShard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%shardCount]
}

func (c *boundedCache[V]) Get(key string) (V, bool) {
	shard := c.shardFor(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	item, ok := shard.items[key]
	if !ok || time.Now().After(item.expiresAt) {
		var zero V
		return zero, false
	}
	return item.value, true
}

func (c *boundedCache[V]) Set(key string, value V, ttl time.Duration) {
	shard := c.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if len(shard.items) >= c.perShardCap {
		for k := range shard.items {
			delete(shard.items, k)
			break
		}
	}
	shard.items[key] = cacheEntry[V]{value: value, expiresAt: time.Now().Add(ttl)}
}

func (c *boundedCache[V]) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		c.cleanup()
	}
}

func (c *boundedCache[V]) cleanup() {
	now := time.Now()
	for _, shard := range c.shards {
		shard.mu.Lock()
		for k, v := range shard.items {
			if now.After(v.expiresAt) {
				delete(shard.items, k)
			}
		}
		shard.mu.Unlock()
	}
}
