package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	limitermemory "github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/order-pricing/internal/domain/discount"
	"github.com/xenking/order-pricing/internal/domain/order"
	"github.com/xenking/order-pricing/internal/domain/product"
	"github.com/xenking/order-pricing/internal/handler"
	"github.com/xenking/order-pricing/internal/seed"
	"github.com/xenking/order-pricing/internal/storage/memory"
	"github.com/xenking/order-pricing/internal/storage/postgres"
	"github.com/xenking/order-pricing/internal/storage/rediscache"
	"github.com/xenking/order-pricing/pkg/health"
	"github.com/xenking/order-pricing/pkg/httpmiddleware"
)

// stores is the set of repositories the API runs on.
type stores struct {
	products      product.Repository
	productWriter product.Writer
	discounts     discount.Repository
	orders        order.Repository
	close         func()
}

// server is the fully wired HTTP surface.
type server struct {
	handler http.Handler
	monitor *health.Monitor
	close   func()
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.String("store", cfg.Store))

	srv, err := build(ctx, lg, m.TracerProvider(), m.MeterProvider(), cfg)
	if err != nil {
		return err
	}
	defer srv.close()

	srv.monitor.Start(ctx, 10*time.Second)
	srv.monitor.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           srv.handler,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		srv.monitor.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		srv.monitor.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// build opens the stores, seeds them when asked, and assembles the router.
// The returned monitor is not started.
func build(ctx context.Context, lg *zap.Logger, tp trace.TracerProvider, mp metric.MeterProvider, cfg *Config) (_ *server, rerr error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	defer func() {
		if rerr != nil {
			closeAll()
		}
	}()

	monitor := health.New()
	monitor.Add(health.Liveness, "goroutines", time.Second, health.Goroutines(10000))

	st, err := openStores(ctx, cfg, monitor)
	if err != nil {
		return nil, err
	}
	closers = append(closers, st.close)

	if cfg.Seed || cfg.Store == StoreMemory {
		stats, err := seed.Load(ctx, st.productWriter, st.discounts, time.Now())
		if err != nil {
			return nil, errors.Wrap(err, "seed")
		}
		lg.Info("Seeded sample data",
			zap.Int("products", stats.Products),
			zap.Int("discounts", stats.Discounts),
			zap.Int("skipped", stats.Skipped),
		)
	}

	var limiterStore limiter.Store = limitermemory.NewStore()
	if cfg.RedisURL != "" {
		rdb, err := openRedis(cfg.RedisURL, tp, mp)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { _ = rdb.Close() })
		monitor.Add(health.Readiness, "redis", 2*time.Second, health.Redis(rdb))

		st.products = rediscache.NewProductCache(st.products, rdb, cfg.CatalogCacheTTL)
		if limiterStore, err = limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{
			Prefix: "pricing:ratelimit",
		}); err != nil {
			return nil, errors.Wrap(err, "create rate limit store")
		}
	}

	orderService, err := order.NewService(st.products, st.discounts, st.orders, tp, mp)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}
	h := handler.New(st.products, orderService, discount.NewManager(st.discounts))

	r := chi.NewRouter()
	r.Use(
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.LogRequests(),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
	)
	r.Get("/livez", monitor.ServeLive)
	r.Get("/readyz", monitor.ServeReady)
	r.Get("/health", monitor.ServeReport)
	r.Group(func(r chi.Router) {
		r.Use(httpmiddleware.RateLimit(limiterStore, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}))
		h.Routes(r)
	})

	return &server{
		handler: otelhttp.NewHandler(r, "pricing-api",
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithMeterProvider(mp),
		),
		monitor: monitor,
		close:   closeAll,
	}, nil
}

func openStores(ctx context.Context, cfg *Config, monitor *health.Monitor) (*stores, error) {
	if cfg.Store == StoreMemory {
		products := memory.NewProductStore()
		return &stores{
			products:      products,
			productWriter: products,
			discounts:     memory.NewDiscountStore(),
			orders:        memory.NewOrderStore(),
			close:         func() {},
		}, nil
	}

	if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	monitor.Add(health.Readiness, "postgres", 5*time.Second, health.Ping(pool))

	products := postgres.NewProductRepository(pool)
	return &stores{
		products:      products,
		productWriter: products,
		discounts:     postgres.NewDiscountRepository(pool),
		orders:        postgres.NewOrderRepository(pool),
		close:         pool.Close,
	}, nil
}

func openRedis(url string, tp trace.TracerProvider, mp metric.MeterProvider) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(rdb, redisotel.WithTracerProvider(tp)); err != nil {
		return nil, errors.Wrap(err, "instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(rdb, redisotel.WithMeterProvider(mp)); err != nil {
		return nil, errors.Wrap(err, "instrument redis metrics")
	}
	return rdb, nil
}
