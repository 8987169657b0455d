package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisCache(rdb, DefaultPrefix), mr
}

func TestRedisCache_RoundTripWithPrefix(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, "k", map[string]int{"n": 1}, time.Minute))
	assert.True(t, mr.Exists("voxaura:k"))

	var got map[string]int
	hit, err := c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, got["n"])

	require.NoError(t, c.Del(ctx, "k"))
	hit, err = c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisCache_CorruptEntryIsMiss(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("voxaura:bad", "{not json"))

	var v map[string]any
	hit, err := c.GetJSON(context.Background(), "bad", &v)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.False(t, mr.Exists("voxaura:bad"))
}

func TestRedisCache_TTL(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, c.SetJSON(context.Background(), "t", 1, time.Minute))
	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("voxaura:t"))
}

func TestAudioCache(t *testing.T) {
	c, _ := newTestCache(t)
	ac := NewAudioCache(c, time.Hour)
	ctx := context.Background()

	_, hit, err := ac.Get(ctx, "en-US-sarah", "hello")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, ac.Put(ctx, "en-US-sarah", "hello", AudioEntry{Encoded: "QUJD", Format: "mp3", Backend: "murf"}))

	e, hit, err := ac.Get(ctx, "en-US-sarah", "hello")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "QUJD", e.Encoded)

	_, hit, _ = ac.Get(ctx, "en-US-davis", "hello")
	assert.False(t, hit)
	assert.NotEqual(t, AudioKey("a", "b|c"), AudioKey("a|b", "c"))
}
