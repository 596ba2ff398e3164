package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	loginRatePrefix   = "rl:login:"
	loginRateWindow   = time.Minute
	defaultLoginQuota = 5
)

// LoginRateLimit caps login attempts per email in a fixed one minute window,
// falling back to the client IP when the body carries no email. Without
// Redis, or when Redis fails, requests are let through.
func LoginRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = defaultLoginQuota
	}
	retryAfter := strconv.Itoa(int(loginRateWindow.Seconds()))

	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		var req struct {
			Email string `json:"email"`
		}
		_ = c.BodyParser(&req)
		subject := strings.ToLower(strings.TrimSpace(req.Email))
		if subject == "" {
			subject = c.IP()
		}
		key := loginRatePrefix + subject

		count, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next()
		}
		if count == 1 {
			cache.Expire(c.UserContext(), key, loginRateWindow)
		}
		if count > int64(maxPerMin) {
			c.Set(fiber.HeaderRetryAfter, retryAfter)
			return fiber.NewError(fiber.StatusTooManyRequests, "too many login attempts, try again later")
		}
		return c.Next()
	}
}
