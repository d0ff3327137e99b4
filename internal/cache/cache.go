// Package cache holds read-through caches for immutable records.
package cache

import (
	"context"
	"time"
)

// Cache is a byte cache addressed by string key. Misses are simply absent
// from GetMulti's result.
type Cache interface {
	GetMulti(ctx context.Context, keys []string) (map[string][]byte, error)
	SetMulti(ctx context.Context, items map[string][]byte) error
}

// Nop never hits and drops every write.
type Nop struct{}

func (Nop) GetMulti(context.Context, []string) (map[string][]byte, error) {
	return map[string][]byte{}, nil
}

func (Nop) SetMulti(context.Context, map[string][]byte) error { return nil }

const defaultTTL = 10 * time.Minute
