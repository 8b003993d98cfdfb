package middleware

import (
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/stemdeck/api/pkg/response"
)

// RateLimiter is a fixed-window counter in Redis. A nil limiter or a Redis
// outage lets every request through.
type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	if redisClient == nil {
		return nil
	}
	return &RateLimiter{redis: redisClient}
}

// Limit counts requests per user, or per client IP before authentication.
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rl == nil || maxRequests <= 0 {
			return c.Next()
		}
		subject := GetUserID(c)
		if subject == "" {
			subject = "ip:" + c.IP()
		}

		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, subject)
		ctx := c.UserContext()

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			log.WithError(err).WithField("key", key).Warn("rate limiter unavailable")
			return c.Next()
		}
		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		if count > int64(maxRequests) {
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%d", int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))
		return c.Next()
	}
}

// ConvertLimit caps conversion submissions per hour.
func (rl *RateLimiter) ConvertLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("convert", maxPerHour, time.Hour)
}

// AuthLimit caps register and login attempts per minute.
func (rl *RateLimiter) AuthLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("auth", maxPerMin, time.Minute)
}
