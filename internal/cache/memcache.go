package cache

import (
	"context"
	"errors"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

type memcacheCache struct {
	client *memcache.Client
	prefix string
	ttl    int32
}

// NewMemcacheCache caches values on the given memcached servers.
func NewMemcacheCache(addrs []string, prefix string, ttl time.Duration) Cache {
	client := memcache.New(addrs...)
	client.MaxIdleConns = 100
	return NewMemcacheClientCache(client, prefix, ttl)
}

func NewMemcacheClientCache(client *memcache.Client, prefix string, ttl time.Duration) Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &memcacheCache{client: client, prefix: prefix, ttl: int32(ttl / time.Second)}
}

// memcache keys may not contain spaces or control characters; tweet ids and
// usernames never do.
func (c *memcacheCache) GetMulti(_ context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	items, err := c.client.GetMulti(full)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if it, ok := items[c.prefix+k]; ok {
			out[k] = it.Value
		}
	}
	return out, nil
}

func (c *memcacheCache) SetMulti(_ context.Context, items map[string][]byte) error {
	var errs []error
	for k, v := range items {
		if err := c.client.Set(&memcache.Item{Key: c.prefix + k, Value: v, Expiration: c.ttl}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
