package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimitMiddleware limits board queries per client IP using shared
// Redis counters, so the limit holds across instances. rdb may be nil
// (no Redis configured), in which case requests pass through.
func RateLimitMiddleware(rdb *redis.Client, perSecond int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rdb == nil || perSecond <= 0 {
			return c.Next()
		}

		ctx := context.Background()
		now := time.Now()
		key := fmt.Sprintf("rl:ip:%s:%d", c.IP(), now.Unix())

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			// degrade open when the counter store is unreachable
			return c.Next()
		}
		rdb.Expire(ctx, key, 2*time.Second)

		if count > int64(perSecond) {
			c.Set("X-RateLimit-Limit-Second", strconv.Itoa(perSecond))
			c.Set("X-RateLimit-Remaining-Second", "0")
			c.Set("Retry-After", "1")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "too many requests",
				"code":        "RATE_LIMITED",
				"retry_after": 1,
			})
		}

		remaining := int64(perSecond) - count
		c.Set("X-RateLimit-Limit-Second", strconv.Itoa(perSecond))
		c.Set("X-RateLimit-Remaining-Second", strconv.FormatInt(remaining, 10))
		return c.Next()
	}
}
