package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/user-auth-service/internal/dto"
	"go.uber.org/zap"
)

// RateLimiter is satisfied by service.RateLimiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
	Remaining(ctx context.Context, key string) (int, error)
	Limit() int
}

// RateLimitMiddleware rejects requests over the limit with 429. When the
// limiter backend fails the request is let through and the failure logged.
// A nil limiter disables the middleware.
func RateLimitMiddleware(limiter RateLimiter, keyFunc func(*gin.Context) string, logger *zap.Logger) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := keyFunc(c)

		allowed, retryAfter, err := limiter.Allow(ctx, key)
		if err != nil {
			logger.Warn("Rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))

		if !allowed {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", retryAfterSeconds(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.ErrorResponse{
				Error:   "Too Many Requests",
				Message: "Rate limit exceeded",
			})
			return
		}

		if remaining, err := limiter.Remaining(ctx, key); err == nil {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}

		c.Next()
	}
}

// RouteAndIPKey limits each client address separately per route.
func RouteAndIPKey(c *gin.Context) string {
	return c.FullPath() + ":" + c.ClientIP()
}
