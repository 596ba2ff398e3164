package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRateLimitedApp(t *testing.T, quota int) (*fiber.App, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	app := fiber.New()
	app.Post("/login", LoginRateLimit(cache, quota), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app, mr
}

func attemptLogin(t *testing.T, app *fiber.App, email string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(`{"email":"`+email+`"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestLoginRateLimitBlocksAfterQuota(t *testing.T) {
	app, mr := newRateLimitedApp(t, 2)

	assert.Equal(t, fiber.StatusOK, attemptLogin(t, app, "a@x.com"))
	assert.Equal(t, fiber.StatusOK, attemptLogin(t, app, "A@x.com"))
	assert.Equal(t, fiber.StatusTooManyRequests, attemptLogin(t, app, "a@x.com"))

	// Other accounts are unaffected.
	assert.Equal(t, fiber.StatusOK, attemptLogin(t, app, "b@x.com"))
	assert.True(t, mr.TTL(loginRatePrefix+"a@x.com") > 0)
}

func TestLoginRateLimitWindowResets(t *testing.T) {
	app, mr := newRateLimitedApp(t, 1)

	assert.Equal(t, fiber.StatusOK, attemptLogin(t, app, "a@x.com"))
	assert.Equal(t, fiber.StatusTooManyRequests, attemptLogin(t, app, "a@x.com"))

	mr.FastForward(loginRateWindow)
	assert.Equal(t, fiber.StatusOK, attemptLogin(t, app, "a@x.com"))
}
