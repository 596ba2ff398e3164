package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/metlabs/metlabs_back/internal/apperr"
	"github.com/metlabs/metlabs_back/internal/auth"
)

const (
	UserIDLocal = "user_id"
	EmailLocal  = "email"
)

// TokenResolver turns a bearer token into the caller's identity.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (auth.Identity, error)
}

// Auth authenticates the request from the auth_token cookie or the
// Authorization bearer header, in that order.
func Auth(resolver TokenResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Cookies(auth.CookieName)
		if token == "" {
			token = bearerToken(c.Get(fiber.HeaderAuthorization))
		}
		if token == "" {
			return apperr.InvalidToken(nil)
		}

		id, err := resolver.Resolve(c.UserContext(), token)
		if err != nil {
			return err
		}

		c.Locals(UserIDLocal, id.UserID)
		c.Locals(EmailLocal, id.Email)
		return c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
