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

func TestRedisCacheGetSetMulti(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c := NewRedisCache(rdb, "tweet:", time.Minute)
	ctx := context.Background()

	require.NoError(t, c.SetMulti(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")}))

	got, err := c.GetMulti(ctx, []string{"a", "missing", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": []byte("1"), "b": []byte("2")}, got)
	assert.True(t, mr.Exists("tweet:a"))

	mr.FastForward(2 * time.Minute)
	got, err = c.GetMulti(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNopNeverHits(t *testing.T) {
	var c Cache = Nop{}
	require.NoError(t, c.SetMulti(context.Background(), map[string][]byte{"a": nil}))
	got, err := c.GetMulti(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Empty(t, got)
}
