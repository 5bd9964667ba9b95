package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	memory "github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/smartinvite/backend/pkg/response"
)

const rateLimitPrefix = "ratelimit:public"

// RateLimit limits requests per client IP. formatted uses limiter's "<limit>-<period>" syntax
// (e.g. "30-M"). Counters live in Redis when rdb is non-nil so every instance shares them;
// otherwise they are kept in process memory.
func RateLimit(formatted string, rdb *redis.Client, logger *zap.Logger) (gin.HandlerFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", formatted, err)
	}

	var store limiter.Store
	if rdb != nil {
		store, err = sredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: rateLimitPrefix, MaxRetry: 3})
		if err != nil {
			return nil, fmt.Errorf("redis limiter store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: rateLimitPrefix, CleanUpInterval: limiter.DefaultCleanUpInterval})
	}

	instance := limiter.New(store, rate)
	return ginlimiter.NewMiddleware(instance,
		ginlimiter.WithLimitReachedHandler(func(c *gin.Context) {
			response.TooManyRequests(c, "too many requests, try again later")
		}),
		ginlimiter.WithErrorHandler(func(c *gin.Context, err error) {
			// Fails open when the counter store is unavailable.
			logger.Warn("rate limiter store error", zap.Error(err))
			c.Next()
		}),
	), nil
}
