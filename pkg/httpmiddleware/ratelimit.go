package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/ulule/limiter/v3"
	mhttp "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"go.uber.org/zap"
)

// RateLimitConfig configures the per-client request budget.
type RateLimitConfig struct {
	// Max is the number of requests allowed per Window.
	Max    int64
	Window time.Duration
}

// RateLimit enforces cfg per client IP using store, which may be shared
// between instances (Redis) or process local (memory). Responses carry the
// X-RateLimit-* headers; rejected requests get a 429 JSON body.
func RateLimit(store limiter.Store, cfg RateLimitConfig) Middleware {
	l := limiter.New(store, limiter.Rate{Period: cfg.Window, Limit: cfg.Max},
		limiter.WithTrustForwardHeader(true),
	)
	mw := mhttp.NewMiddleware(l,
		mhttp.WithLimitReachedHandler(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		}),
		mhttp.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			zctx.From(r.Context()).Error("Rate limiter failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}),
	)
	return mw.Handler
}
