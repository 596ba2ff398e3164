package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/metlabs/metlabs_back/internal/wallet"
)

// RegisterWalletRoutes wires wallet binding and lookup.
func RegisterWalletRoutes(r fiber.Router, requireAuth fiber.Handler, h *wallet.Handler) {
	r.Post("/wallet", requireAuth, h.Create)
	r.Get("/wallet", requireAuth, h.Get)
	r.Get("/wallet/:userId", requireAuth, h.Get)
}
