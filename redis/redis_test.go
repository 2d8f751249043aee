package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Allowed bool `json:"allowed"`
}

func setupCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCache(client), mr
}

func TestCache_SetGet(t *testing.T) {
	cache, mr := setupCache(t)
	ctx := context.Background()

	var got entry
	found, err := cache.Get(ctx, "access:u1:p1", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, "access:u1:p1", entry{Allowed: true}, time.Minute))
	found, err = cache.Get(ctx, "access:u1:p1", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, got.Allowed)

	mr.FastForward(2 * time.Minute)
	found, err = cache.Get(ctx, "access:u1:p1", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_Delete(t *testing.T) {
	cache, mr := setupCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a", entry{Allowed: true}, time.Minute))
	require.NoError(t, cache.Set(ctx, "b", entry{Allowed: true}, time.Minute))
	require.NoError(t, cache.Delete(ctx, "a", "b"))

	assert.False(t, mr.Exists("a"))
	assert.False(t, mr.Exists("b"))
}

func TestCache_Versions(t *testing.T) {
	cache, _ := setupCache(t)
	ctx := context.Background()

	assert.Equal(t, int64(0), cache.GetVersion(ctx, "project:p1:version"))
	require.NoError(t, cache.IncrementVersion(ctx, "project:p1:version"))
	require.NoError(t, cache.IncrementVersion(ctx, "project:p1:version"))
	assert.Equal(t, int64(2), cache.GetVersion(ctx, "project:p1:version"))
	assert.Equal(t, int64(0), cache.GetVersion(ctx, "project:p2:version"))
}

func TestCache_WithoutClient(t *testing.T) {
	ctx := context.Background()
	for _, cache := range []*Cache{nil, NewCache(nil)} {
		found, err := cache.Get(ctx, "k", &entry{})
		assert.NoError(t, err)
		assert.False(t, found)
		assert.NoError(t, cache.Set(ctx, "k", entry{}, time.Second))
		assert.NoError(t, cache.Delete(ctx, "k"))
		assert.Zero(t, cache.GetVersion(ctx, "k:version"))
		assert.NoError(t, cache.IncrementVersion(ctx, "k:version"))
	}
}

func TestConnect(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := Connect(context.Background(), mr.Addr(), zerolog.Nop())
	require.NotNil(t, client)
	client.Close()

	mr.Close()
	assert.Nil(t, Connect(context.Background(), mr.Addr(), zerolog.Nop()))
}
