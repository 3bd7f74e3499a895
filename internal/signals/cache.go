package signals

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/signalfield/signalfield/internal/domain"
	"github.com/signalfield/signalfield/internal/pkg/ctxlog"
)

const listingCacheKey = "signals:active"

// DefaultCacheTTL bounds staleness of cached listings under polling load.
const DefaultCacheTTL = 3 * time.Second

// CachedStore decorates a Store with a short-TTL Redis cache of the
// unfiltered visible-signals listing. Listing is the hot path: clients poll
// it at high frequency, and proximity filtering is applied by the caller
// after retrieval, so one center-agnostic cache entry serves everyone.
//
// Cache failures degrade to the underlying store and are never surfaced.
type CachedStore struct {
	Store
	client *redis.Client
	ttl    time.Duration
}

// NewCachedStore wraps a store with a Redis listing cache.
func NewCachedStore(store Store, client *redis.Client, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{Store: store, client: client, ttl: ttl}
}

// Insert writes through and invalidates the listing.
func (c *CachedStore) Insert(ctx context.Context, signal *domain.Signal) error {
	if err := c.Store.Insert(ctx, signal); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// SetActive writes through and invalidates the listing.
func (c *CachedStore) SetActive(ctx context.Context, id string, active bool) error {
	if err := c.Store.SetActive(ctx, id, active); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// Delete writes through and invalidates the listing.
func (c *CachedStore) Delete(ctx context.Context, id string) error {
	if err := c.Store.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// ListActive serves from cache when possible. Cached entries are re-checked
// against the visibility predicate so a signal expiring mid-TTL never leaks.
func (c *CachedStore) ListActive(ctx context.Context, now time.Time) ([]*domain.Signal, error) {
	if cached, ok := c.getCached(ctx, now); ok {
		return cached, nil
	}

	listed, err := c.Store.ListActive(ctx, now)
	if err != nil {
		return nil, err
	}
	c.setCached(ctx, listed)
	return listed, nil
}

func (c *CachedStore) getCached(ctx context.Context, now time.Time) ([]*domain.Signal, bool) {
	raw, err := c.client.Get(ctx, listingCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			ctxlog.FromContext(ctx).Warn("listing cache read failed", "error", err)
		}
		return nil, false
	}

	var cached []*domain.Signal
	if err := json.Unmarshal(raw, &cached); err != nil {
		ctxlog.FromContext(ctx).Warn("listing cache entry malformed, dropping", "error", err)
		c.invalidate(ctx)
		return nil, false
	}

	visible := make([]*domain.Signal, 0, len(cached))
	for _, sig := range cached {
		if sig.VisibleAt(now) {
			visible = append(visible, sig)
		}
	}
	return visible, true
}

func (c *CachedStore) setCached(ctx context.Context, listed []*domain.Signal) {
	raw, err := json.Marshal(listed)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, listingCacheKey, raw, c.ttl).Err(); err != nil {
		ctxlog.FromContext(ctx).Warn("listing cache write failed", "error", err)
	}
}

func (c *CachedStore) invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, listingCacheKey).Err(); err != nil {
		ctxlog.FromContext(ctx).Warn("listing cache invalidation failed", "error", err)
	}
}
