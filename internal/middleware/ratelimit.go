// ratelimit.go provides Gin middleware that enforces per-client rate limits
// backed by Redis, returning 429 responses when the configured
// requests-per-minute threshold is exceeded.
//
// Limits are counted in Redis (GCRA via redis_rate) so they hold across
// replicas: a client hammering three instances behind a load balancer is
// still bounded by one shared budget.
package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RateLimiter wraps a redis_rate limiter with a fixed per-minute budget
type RateLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

// NewRateLimiter creates a rate limiter allowing requestsPerMinute per client key
func NewRateLimiter(rdb *redis.Client, requestsPerMinute int) *RateLimiter {
	return &RateLimiter{
		limiter: redis_rate.NewLimiter(rdb),
		limit:   redis_rate.PerMinute(requestsPerMinute),
	}
}

// RateLimitMiddleware creates a Gin middleware that rate limits requests.
//
// Redis outages fail open: the limiter exists to curb abusive clients, and
// refusing all traffic because the limiter's backing store is down would turn
// a Redis incident into a platform outage. The failure is logged so it is
// visible, not silent.
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := getRateLimitKey(c)

		res, err := rl.limiter.Allow(c.Request.Context(), key, rl.limit)
		if err != nil {
			slog.Warn("Rate limiter unavailable, allowing request", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.limit.Rate))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if res.Allowed == 0 {
			retryAfter := int(res.RetryAfter.Seconds() + 0.5)
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}

// getRateLimitKey determines the key to use for rate limiting.
// Priority: user_id > IP address. Rate limiting runs before auth, so the
// user_id path only applies when an upstream middleware already resolved
// identity; unauthenticated traffic is keyed by client IP.
func getRateLimitKey(c *gin.Context) string {
	if id := CallerID(c); id != "" {
		return "user:" + id
	}

	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
