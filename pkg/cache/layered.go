package cache

import (
	"context"
	"time"
)

// LayeredCache fronts a shared store with a short-lived local copy. Writes go
// to the shared store first; the local tier only ever holds what it saw.
type LayeredCache struct {
	local      *MemoryCache
	shared     Service
	promoteTTL time.Duration
}

func NewLayeredCache(shared Service, opts ...LayeredOption) *LayeredCache {
	cfg := LayeredConfig{MemoryMaxSize: 1000, PromoteTTL: time.Minute}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &LayeredCache{
		local:      NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		shared:     shared,
		promoteTTL: cfg.PromoteTTL,
	}
}

func (c *LayeredCache) localTTL(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < c.promoteTTL {
		return ttl
	}
	return c.promoteTTL
}

func (c *LayeredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := c.shared.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	_ = c.local.Set(ctx, key, value, c.localTTL(ttl))
	return nil
}

func (c *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.local.Get(ctx, key, dest) == nil {
		return nil
	}
	if err := c.shared.Get(ctx, key, dest); err != nil {
		return err
	}
	_ = c.local.Set(ctx, key, dest, c.promoteTTL)
	return nil
}

func (c *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = c.local.Delete(ctx, keys...)
	return c.shared.Delete(ctx, keys...)
}

// TryLock and Unlock go straight to the shared store.
func (c *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.shared.TryLock(ctx, key, ttl)
}

func (c *LayeredCache) Unlock(ctx context.Context, key string) error {
	return c.shared.Unlock(ctx, key)
}
