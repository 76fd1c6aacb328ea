// Package rediscache caches the product catalog in Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/roseila-storefront/internal/domain/product"
)

const (
	// CatalogKey holds the JSON-encoded product list.
	CatalogKey = "storefront:catalog:v1"
	// DefaultTTL bounds how stale a cached catalog can get when an
	// invalidation is lost.
	DefaultTTL = 5 * time.Minute
)

var _ product.AdminRepository = (*CachedCatalog)(nil)

// CachedCatalog is a read-through cache in front of a product repository.
// Writes go to the repository and drop the cached list. A Redis outage
// degrades to direct repository reads.
type CachedCatalog struct {
	src product.AdminRepository
	rdb redis.UniversalClient
	ttl time.Duration
	lg  *zap.Logger
}

// NewCachedCatalog wraps src.
func NewCachedCatalog(src product.AdminRepository, rdb redis.UniversalClient, ttl time.Duration, lg *zap.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &CachedCatalog{src: src, rdb: rdb, ttl: ttl, lg: lg}
}

// NewClient connects to Redis at url (redis://host:port/db) and pings it.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis url")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return rdb, nil
}

// List returns the cached catalog, filling the cache on a miss.
func (c *CachedCatalog) List(ctx context.Context) ([]product.Product, error) {
	raw, err := c.rdb.Get(ctx, CatalogKey).Bytes()
	switch {
	case err == nil:
		var products []product.Product
		decodeErr := json.Unmarshal(raw, &products)
		if decodeErr == nil {
			return products, nil
		}
		c.lg.Warn("Discarding corrupt cached catalog", zap.Error(decodeErr))
	case errors.Is(err, redis.Nil):
	default:
		c.lg.Warn("Catalog cache read failed", zap.Error(err))
	}

	products, err := c.src.List(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, products)
	return products, nil
}

// GetByID reads through to the repository.
func (c *CachedCatalog) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return c.src.GetByID(ctx, id)
}

// GetByIDs reads through to the repository.
func (c *CachedCatalog) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	return c.src.GetByIDs(ctx, ids)
}

// Create adds a product and drops the cached list.
func (c *CachedCatalog) Create(ctx context.Context, p *product.Product) error {
	if err := c.src.Create(ctx, p); err != nil {
		return err
	}
	c.invalidateAfterWrite(ctx, p.ID)
	return nil
}

// Update changes a product and drops the cached list.
func (c *CachedCatalog) Update(ctx context.Context, p *product.Product) error {
	if err := c.src.Update(ctx, p); err != nil {
		return err
	}
	c.invalidateAfterWrite(ctx, p.ID)
	return nil
}

// Delete removes a product and drops the cached list.
func (c *CachedCatalog) Delete(ctx context.Context, id string) error {
	if err := c.src.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidateAfterWrite(ctx, id)
	return nil
}

// Invalidate drops the cached list.
func (c *CachedCatalog) Invalidate(ctx context.Context) error {
	if err := c.rdb.Del(ctx, CatalogKey).Err(); err != nil {
		return errors.Wrap(err, "invalidating catalog cache")
	}
	return nil
}

// invalidateAfterWrite drops the cached list once the repository write has
// been committed. A failure only leaves the list stale until the TTL expires.
func (c *CachedCatalog) invalidateAfterWrite(ctx context.Context, productID string) {
	if err := c.Invalidate(ctx); err != nil {
		c.lg.Warn("Catalog cache invalidation failed",
			zap.String("product_id", productID),
			zap.Duration("stale_for_at_most", c.ttl),
			zap.Error(err),
		)
	}
}

func (c *CachedCatalog) store(ctx context.Context, products []product.Product) {
	raw, err := json.Marshal(products)
	if err != nil {
		c.lg.Warn("Encode catalog for cache failed", zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, CatalogKey, raw, c.ttl).Err(); err != nil {
		c.lg.Warn("Catalog cache write failed", zap.Error(err))
	}
}
