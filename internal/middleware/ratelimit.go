package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/response"
)

// RateLimiter is a fixed-window limiter keyed by tenant and user, shared by
// all server instances through Redis.
type RateLimiter struct {
	rdb    *redis.Client
	scope  string
	rate   int
	window time.Duration
	log    zerolog.Logger
}

// NewRateLimiter creates a RateLimiter (e.g., 10 submits per minute).
func NewRateLimiter(rdb *redis.Client, scope string, rate int, window time.Duration, log zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:    rdb,
		scope:  scope,
		rate:   rate,
		window: window,
		log:    log.With().Str("component", "rate_limiter").Str("scope", scope).Logger(),
	}
}

// Allow counts one call for the user and reports whether it fits the window.
// When it does not, retryAfter is the time until the window resets.
func (rl *RateLimiter) Allow(ctx context.Context, tenantID string, userID int) (allowed bool, remaining int, retryAfter time.Duration, err error) {
	if rl.rate <= 0 {
		return true, 0, 0, nil
	}

	now := time.Now()
	bucket := now.UnixNano() / int64(rl.window)
	key := config.CacheKey.RateLimitKey(tenantID, userID, rl.scope, bucket)

	pipe := rl.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, 0, err
	}

	count := int(incr.Val())
	if count > rl.rate {
		reset := time.Unix(0, (bucket+1)*int64(rl.window))
		return false, 0, reset.Sub(now), nil
	}
	return true, rl.rate - count, 0, nil
}

// Middleware must run after RequireJWT. Redis failures let the request through.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil || rl.rate <= 0 {
			c.Next()
			return
		}

		allowed, remaining, retryAfter, err := rl.Allow(c.Request.Context(), claims.TenantID, claims.UserID)
		if err != nil {
			rl.log.Warn().Err(err).Msg("Rate limiter unavailable")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.rate))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}
