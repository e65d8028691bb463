package middleware

import (
	"math"
	"strconv"

	"campaign_worker/pkg/ratelimit"

	"github.com/gofiber/fiber/v2"
)

// RateLimit throttles by client IP. A nil limiter disables it.
func RateLimit(limiter ratelimit.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if limiter == nil {
			return c.Next()
		}

		ok, retryAfter := limiter.Allow(c.UserContext(), c.IP())
		if ok {
			return c.Next()
		}

		secs := int(math.Ceil(retryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
		return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
	}
}
