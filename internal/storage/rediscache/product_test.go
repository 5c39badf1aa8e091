package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-pricing/internal/domain/product"
)

type countingRepo struct {
	products map[string]product.Product
	listed   int
	fetched  [][]string
	err      error
}

func (r *countingRepo) List(_ context.Context) ([]product.Product, error) {
	r.listed++
	if r.err != nil {
		return nil, r.err
	}
	out := make([]product.Product, 0, len(r.products))
	for _, id := range []string{"a", "b"} {
		if p, ok := r.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *countingRepo) GetByID(context.Context, string) (*product.Product, error) {
	return nil, errors.New("not used")
}

func (r *countingRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	r.fetched = append(r.fetched, ids)
	if r.err != nil {
		return nil, r.err
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func newCache(t *testing.T) (*ProductCache, *countingRepo, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &countingRepo{products: map[string]product.Product{
		"a": {ID: "a", Name: "Alpha", Category: "books", Price: decimal.RequireFromString("12.50"), InStock: true},
		"b": {ID: "b", Name: "Beta", Category: "toys", Price: decimal.RequireFromString("3.00")},
	}}
	return NewProductCache(repo, client, time.Minute), repo, mr
}

func TestProductCache_GetByIDs(t *testing.T) {
	ctx := context.Background()
	cache, repo, mr := newCache(t)

	got, err := cache.GetByIDs(ctx, []string{"a", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alpha", got[0].Name)
	assert.True(t, mr.Exists(keyPrefix+"a"))
	assert.False(t, mr.Exists(keyPrefix+"missing"))

	got, err = cache.GetByIDs(ctx, []string{"b", "a"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "12.5", got[1].Price.String())
	assert.True(t, got[1].InStock)

	// Second call only loaded the miss.
	require.Len(t, repo.fetched, 2)
	assert.Equal(t, []string{"b"}, repo.fetched[1])

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(keyPrefix+"a"))
}

func TestProductCache_GetByID(t *testing.T) {
	ctx := context.Background()
	cache, _, _ := newCache(t)

	p, err := cache.GetByID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "Beta", p.Name)

	_, err = cache.GetByID(ctx, "zzz")
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestProductCache_ListAndInvalidate(t *testing.T) {
	ctx := context.Background()
	cache, repo, _ := newCache(t)

	for range 3 {
		list, err := cache.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
	}
	assert.Equal(t, 1, repo.listed)

	require.NoError(t, cache.Invalidate(ctx, "a"))
	_, err := cache.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listed)
}

func TestProductCache_RedisDown(t *testing.T) {
	ctx := context.Background()
	_, repo, _ := newCache(t)
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewProductCache(repo, client, time.Minute)

	got, err := cache.GetByIDs(ctx, []string{"a"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, repo.fetched, 1)
}

func TestProductCache_RepoError(t *testing.T) {
	ctx := context.Background()
	cache, repo, _ := newCache(t)
	repo.err = errors.New("db down")

	_, err := cache.GetByIDs(ctx, []string{"a"})
	require.Error(t, err)
	_, err = cache.List(ctx)
	require.Error(t, err)
}
