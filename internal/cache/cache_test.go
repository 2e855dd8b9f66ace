package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseCache_SetThenGet(t *testing.T) {
	c := New()
	defer c.Close()

	c.Set("www.example.com.:1", []byte("answer"), time.Minute)
	data, ok := c.Get("www.example.com.:1")
	require.True(t, ok)
	assert.Equal(t, []byte("answer"), data)
}

func TestResponseCache_ExpiredEntryIsAbsent(t *testing.T) {
	c := New()
	defer c.Close()

	c.Set("k", []byte("v"), -time.Second)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestResponseCache_MissingKey(t *testing.T) {
	c := New()
	defer c.Close()

	_, ok := c.Get("nope")
	assert.False(t, ok)
}

func TestResponseCache_DeleteRemovesEntry(t *testing.T) {
	c := New()
	defer c.Close()

	c.Set("k", []byte("v"), time.Minute)
	c.Delete("k")
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestResponseCache_FlushClearsEverything(t *testing.T) {
	c := New()
	defer c.Close()

	for i := 0; i < 50; i++ {
		c.Set(string(rune('a'+i%26))+string(rune(i)), []byte("v"), time.Minute)
	}
	c.Flush()
	for i := 0; i < 50; i++ {
		_, ok := c.Get(string(rune('a'+i%26)) + string(rune(i)))
		assert.False(t, ok)
	}
}

func TestResponseCache_CleanupRemovesExpiredOnly(t *testing.T) {
	c := New()
	defer c.Close()

	c.Set("expired", []byte("v"), -time.Second)
	c.Set("fresh", []byte("v"), time.Minute)
	c.cleanup()

	_, expiredOK := c.Get("expired")
	_, freshOK := c.Get("fresh")
	assert.False(t, expiredOK)
	assert.True(t, freshOK)
}

func TestKey_FormatsNameAndType(t *testing.T) {
	assert.Equal(t, "www.example.com.:1", Key("www.example.com.", 1))
}
