// Package rediscache puts a Redis read-through cache in front of the catalog.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/order-pricing/internal/domain/product"
)

const (
	keyPrefix = "pricing:product:"
	listKey   = "pricing:products"
)

var _ product.Repository = (*ProductCache)(nil)

// ProductCache serves catalog reads from Redis and falls back to the wrapped
// repository on a miss. Redis failures are logged and treated as misses.
type ProductCache struct {
	next   product.Repository
	client redis.UniversalClient
	ttl    time.Duration
}

// NewProductCache wraps next with a cache that keeps entries for ttl.
func NewProductCache(next product.Repository, client redis.UniversalClient, ttl time.Duration) *ProductCache {
	return &ProductCache{next: next, client: client, ttl: ttl}
}

type cachedProduct struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	InStock     bool            `json:"inStock"`
}

func toCached(p product.Product) cachedProduct {
	return cachedProduct(p)
}

func (c cachedProduct) product() product.Product {
	return product.Product(c)
}

func (c *ProductCache) List(ctx context.Context) ([]product.Product, error) {
	data, err := c.client.Get(ctx, listKey).Bytes()
	if err == nil {
		var cached []cachedProduct
		if err := json.Unmarshal(data, &cached); err == nil {
			out := make([]product.Product, len(cached))
			for i, cp := range cached {
				out[i] = cp.product()
			}
			return out, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		zctx.From(ctx).Warn("Product cache read failed", zap.Error(err))
	}

	list, err := c.next.List(ctx)
	if err != nil {
		return nil, err
	}
	cached := make([]cachedProduct, len(list))
	for i, p := range list {
		cached[i] = toCached(p)
	}
	c.store(ctx, listKey, cached)
	return list, nil
}

func (c *ProductCache) GetByID(ctx context.Context, id string) (*product.Product, error) {
	found, err := c.GetByIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, product.ErrNotFound
	}
	return &found[0], nil
}

// GetByIDs resolves all ids with one MGET and loads the misses from the
// wrapped repository in one call.
func (c *ProductCache) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}

	hits := make(map[string]product.Product, len(ids))
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		zctx.From(ctx).Warn("Product cache read failed", zap.Error(err))
	}
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var cp cachedProduct
		if err := json.Unmarshal([]byte(s), &cp); err != nil {
			continue
		}
		hits[cp.ID] = cp.product()
	}

	var missing []string
	for _, id := range ids {
		if _, ok := hits[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		loaded, err := c.next.GetByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, p := range loaded {
			hits[p.ID] = p
			c.store(ctx, keyPrefix+p.ID, toCached(p))
		}
	}

	out := make([]product.Product, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, id := range ids {
		p, ok := hits[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// Invalidate drops cached entries for ids and the cached listing.
func (c *ProductCache) Invalidate(ctx context.Context, ids ...string) error {
	keys := make([]string, 0, len(ids)+1)
	keys = append(keys, listKey)
	for _, id := range ids {
		keys = append(keys, keyPrefix+id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "invalidate products")
	}
	return nil
}

func (c *ProductCache) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		zctx.From(ctx).Warn("Product cache write failed", zap.String("key", key), zap.Error(err))
	}
}
