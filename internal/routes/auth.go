package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/metlabs/metlabs_back/internal/auth"
	"github.com/metlabs/metlabs_back/internal/identity"
)

// RegisterAuthRoutes wires authentication, registration and password recovery.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, ids *identity.Handler, requireAuth, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
	group.Post("/register", ids.Register)
	group.Post("/forgot-password", ids.ForgotPassword)
	group.Post("/reset-password", ids.ResetPassword)
	group.Post("/logout", requireAuth, h.Logout)
}
