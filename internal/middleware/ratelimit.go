package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Counter increments key and returns the new count. The key expires
// window after its first increment.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter is a fixed-window counter on INCR + EXPIRE.
type RedisCounter struct {
	rdb *redis.Client
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		if err := r.rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return count, nil
}

type RateLimiter struct {
	counter Counter
	prefix  string
	limit   int
	window  time.Duration
	logger  *zap.Logger
}

func NewRateLimiter(counter Counter, prefix string, limit int, window time.Duration, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{counter: counter, prefix: prefix, limit: limit, window: window, logger: logger}
}

// MiddlewareByKey limits requests per key. A counter failure lets the
// request through so a Redis outage does not take guest chat down.
func (r *RateLimiter) MiddlewareByKey(keyFunc func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if r == nil || r.counter == nil || r.limit <= 0 {
			c.Next()
			return
		}

		key := fmt.Sprintf("%s:%s", r.prefix, keyFunc(c))
		count, err := r.counter.Incr(c.Request.Context(), key, r.window)
		if err != nil {
			r.logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		remaining := max(int64(r.limit)-count, 0)
		c.Header("X-RateLimit-Limit", strconv.Itoa(r.limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if count > int64(r.limit) {
			c.Header("Retry-After", strconv.Itoa(int(r.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// GuestKey limits per guest session, falling back to the client IP for
// requests that carry none.
func GuestKey(c *gin.Context) string {
	if id := GetGuestSessionID(c); id != "" {
		return "session:" + id
	}
	return "ip:" + c.ClientIP()
}
