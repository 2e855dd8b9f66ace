package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// InvalidationChannel is the pub/sub channel every node in a fleet
// subscribes to so a dynamic update on one node evicts the stale answer
// on all the others. Ported from the teacher's redis.go.
const InvalidationChannel = "dnscore:invalidation"

// RedisCache is the cross-node layer behind ResponseCache: a shared L2
// cache plus an invalidation broadcast, backed by go-redis/v9 the way the
// teacher's RedisCache is.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to a Redis instance at addr.
func NewRedisCache(addr, password string, db int) *RedisCache {
	return &RedisCache{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, "dns:"+key).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

func (r *RedisCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	r.client.Set(ctx, "dns:"+key, data, ttl)
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Invalidate publishes an invalidation event for (name, qtype) to every
// node subscribed on InvalidationChannel.
func (r *RedisCache) Invalidate(ctx context.Context, key string) error {
	return r.client.Publish(ctx, InvalidationChannel, key).Err()
}

// Subscribe returns a channel of invalidation keys published by any node
// (including this one). Callers evict the key from their local
// ResponseCache on receipt.
func (r *RedisCache) Subscribe(ctx context.Context) <-chan *redis.Message {
	return r.client.Subscribe(ctx, InvalidationChannel).Channel()
}

// Close releases the underlying connection pool.
func (r *RedisCache) Close() error { return r.client.Close() }

// Key builds the conventional cache key for a (name, qtype) pair, shared
// by ResponseCache and RedisCache callers so both layers agree on a key.
func Key(name string, qtype uint16) string {
	return fmt.Sprintf("%s:%d", name, qtype)
}
