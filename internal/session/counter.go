package session

import (
	"context"
	"time"

	"github.com/fintrack/fintrack/internal/domain"
	"github.com/fintrack/fintrack/pkg/cache"
)

const countKey = "active"

// CachedCounter wraps a store so repeated scrapes within ttl reuse the last count
type CachedCounter struct {
	domain.SessionStore
	cache *cache.Cache[int]
	ttl   time.Duration
}

// WithCountCache caches CountActive results for ttl. Create and Revoke drop the cached value.
func WithCountCache(store domain.SessionStore, ttl time.Duration) *CachedCounter {
	return &CachedCounter{SessionStore: store, cache: cache.New[int](), ttl: ttl}
}

func (c *CachedCounter) Create(ctx context.Context, userID int64, ttl time.Duration) (string, error) {
	id, err := c.SessionStore.Create(ctx, userID, ttl)
	if err == nil {
		c.cache.Delete(countKey)
	}
	return id, err
}

func (c *CachedCounter) Revoke(ctx context.Context, sessionID string) error {
	err := c.SessionStore.Revoke(ctx, sessionID)
	if err == nil {
		c.cache.Delete(countKey)
	}
	return err
}

func (c *CachedCounter) CountActive(ctx context.Context) (int, error) {
	return c.cache.GetOrLoad(countKey, c.ttl, func() (int, error) {
		return c.SessionStore.CountActive(ctx)
	})
}
