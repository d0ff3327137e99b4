package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisCache struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache caches values under prefix+key with the given TTL.
func NewRedisCache(rdb redis.UniversalClient, prefix string, ttl time.Duration) Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *redisCache) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	vals, err := c.rdb.MGet(ctx, full...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if str, ok := v.(string); ok {
			out[keys[i]] = []byte(str)
		}
	}
	return out, nil
}

func (c *redisCache) SetMulti(ctx context.Context, items map[string][]byte) error {
	if len(items) == 0 {
		return nil
	}
	pipe := c.rdb.Pipeline()
	for k, v := range items {
		pipe.Set(ctx, c.prefix+k, v, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
