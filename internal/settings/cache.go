package settings

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const cachePrefix = "settings:"

// CachedStore wraps a Store with Redis based caching. Configuration values
// change rarely; a short TTL keeps commission percentages fresh enough.
type CachedStore struct {
	inner  Store
	client *redis.Client
	ttl    time.Duration
}

// NewCachedStore instantiates the caching decorator.
func NewCachedStore(inner Store, client *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{inner: inner, client: client, ttl: ttl}
}

// GetValue loads a cached value or populates it from the inner store.
func (c *CachedStore) GetValue(ctx context.Context, key string) (decimal.Decimal, error) {
	if c.client == nil {
		return c.inner.GetValue(ctx, key)
	}

	cacheKey := cachePrefix + key
	raw, err := c.client.Get(ctx, cacheKey).Result()
	if err == nil {
		if value, perr := decimal.NewFromString(raw); perr == nil {
			return value, nil
		}
	} else if err != redis.Nil {
		return decimal.Zero, fmt.Errorf("settings: cache get %s: %w", key, err)
	}

	value, err := c.inner.GetValue(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}

	if err := c.client.Set(ctx, cacheKey, value.String(), c.ttl).Err(); err != nil {
		return decimal.Zero, fmt.Errorf("settings: cache set %s: %w", key, err)
	}
	return value, nil
}

// Invalidate drops a cached key after a configuration update.
func (c *CachedStore) Invalidate(ctx context.Context, key string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cachePrefix+key).Err()
}
