package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return NewRedisCache(mr.Addr(), "", 0), mr
}

func TestRedisCache_SetThenGet(t *testing.T) {
	r, _ := newTestRedisCache(t)
	ctx := context.Background()

	r.Set(ctx, "example.com.:1", []byte("answer"), time.Minute)
	data, ok := r.Get(ctx, "example.com.:1")
	require.True(t, ok)
	assert.Equal(t, []byte("answer"), data)
}

func TestRedisCache_GetMissingKey(t *testing.T) {
	r, _ := newTestRedisCache(t)
	_, ok := r.Get(context.Background(), "nope")
	assert.False(t, ok)
}

func TestRedisCache_Ping(t *testing.T) {
	r, _ := newTestRedisCache(t)
	assert.NoError(t, r.Ping(context.Background()))
}

func TestRedisCache_InvalidateBroadcastsToSubscribers(t *testing.T) {
	r, _ := newTestRedisCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := r.Subscribe(ctx)
	time.Sleep(20 * time.Millisecond) // let the subscription register with miniredis

	require.NoError(t, r.Invalidate(ctx, "example.com.:1"))

	select {
	case msg := <-ch:
		assert.Equal(t, "example.com.:1", msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for invalidation message")
	}
}
