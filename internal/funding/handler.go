package funding

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/metlabs/metlabs_back/internal/apperr"
)

// Handler exposes HTTP endpoints for deposits and withdrawals.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Deposit increments the caller's ledger balance.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	return h.run(c, h.service.Deposit)
}

// Withdraw decrements the caller's ledger balance.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	return h.run(c, h.service.Withdraw)
}

func (h *Handler) run(c *fiber.Ctx, op func(ctx context.Context, userID string) (Result, error)) error {
	var req Request
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperr.Validation("invalid request body")
		}
	}
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return apperr.InvalidToken(nil)
	}
	if req.UserID != "" && req.UserID != uid {
		return apperr.Forbidden("cannot act on behalf of another user")
	}

	result, err := op(c.UserContext(), uid)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(Response{Message: result.Message, TransactionHash: result.TransactionHash})
}
