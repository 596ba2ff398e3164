package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/metlabs/metlabs_back/internal/funding"
)

// RegisterFundingRoutes wires deposit and withdrawal endpoints. Idempotency
// runs after authentication so keys are scoped to the caller.
func RegisterFundingRoutes(r fiber.Router, requireAuth, idempotent fiber.Handler, h *funding.Handler) {
	if idempotent == nil {
		r.Post("/wallet/deposit", requireAuth, h.Deposit)
		r.Post("/wallet/withdraw", requireAuth, h.Withdraw)
		return
	}
	r.Post("/wallet/deposit", requireAuth, idempotent, h.Deposit)
	r.Post("/wallet/withdraw", requireAuth, idempotent, h.Withdraw)
}
