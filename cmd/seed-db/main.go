package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/order-pricing/internal/domain/product"
	"github.com/xenking/order-pricing/internal/seed"
	"github.com/xenking/order-pricing/internal/storage/postgres"
	"github.com/xenking/order-pricing/internal/storage/rediscache"
)

func main() {
	var (
		databaseURL string
		redisURL    string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&redisURL, "redis-url", "", "Redis URL whose catalog cache is cleared after seeding (or REDIS_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		return run(ctx, lg, databaseURL, redisURL)
	})
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, redisURL string) error {
	lg.Info("Running migrations")
	if err := postgres.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	products := postgres.NewProductRepository(pool)
	stats, err := seed.Load(ctx, products, postgres.NewDiscountRepository(pool), time.Now())
	if err != nil {
		return errors.Wrap(err, "seed")
	}
	lg.Info("Seed completed",
		zap.Int("products", stats.Products),
		zap.Int("discounts", stats.Discounts),
		zap.Int("skipped", stats.Skipped),
	)

	if redisURL == "" {
		return nil
	}
	return invalidateCatalog(ctx, lg, products, redisURL)
}

// invalidateCatalog drops cached catalog entries so running API instances
// pick up the new prices.
func invalidateCatalog(ctx context.Context, lg *zap.Logger, products product.Repository, redisURL string) error {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(opts)
	defer func() { _ = rdb.Close() }()

	list, err := products.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list products")
	}
	ids := make([]string, len(list))
	for i, p := range list {
		ids[i] = p.ID
	}
	if err := rediscache.NewProductCache(products, rdb, 0).Invalidate(ctx, ids...); err != nil {
		return err
	}
	lg.Info("Catalog cache invalidated", zap.Int("products", len(ids)))
	return nil
}
