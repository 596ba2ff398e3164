package wallet

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/metlabs/metlabs_back/internal/apperr"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type bindRequest struct {
	UserID  string `json:"userId"`
	Address string `json:"address"`
}

// View is the public wallet representation.
type View struct {
	Address string    `json:"address"`
	User    OwnerView `json:"user"`
	Balance *string   `json:"balance,omitempty"`
}

type OwnerView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// NewView projects a binding onto its public fields.
func NewView(b Binding) View {
	v := View{
		Address: b.Wallet.Address,
		User:    OwnerView{ID: b.Owner.ID, Name: b.Owner.Name, Email: b.Owner.Email},
	}
	if b.Wallet.Balance.Valid {
		amount := b.Wallet.Balance.Amount.String()
		v.Balance = &amount
	}
	return v
}

// BindForCaller binds the address in the body to the authenticated user.
func (h *Handler) BindForCaller(c *fiber.Ctx) error {
	if _, err := h.bind(c); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"ok": true})
}

// Create binds a wallet and answers 201.
func (h *Handler) Create(c *fiber.Ctx) error {
	if _, err := h.bind(c); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"ok": true})
}

func (h *Handler) bind(c *fiber.Ctx) (Binding, error) {
	var req bindRequest
	if err := c.BodyParser(&req); err != nil {
		return Binding{}, apperr.Validation("invalid request body")
	}
	uid, err := callerFor(c, req.UserID)
	if err != nil {
		return Binding{}, err
	}
	return h.service.Bind(c.UserContext(), uid, req.Address)
}

// Get returns the wallet bound to the user in the path, or to the caller
// when the path carries no user.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, err := callerFor(c, c.Params("userId"))
	if err != nil {
		return err
	}
	binding, err := h.service.Resolve(c.UserContext(), uid)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(NewView(binding))
}

// callerFor returns the authenticated user id, rejecting requests that name
// a different user.
func callerFor(c *fiber.Ctx, requested string) (string, error) {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return "", apperr.InvalidToken(nil)
	}
	if requested != "" && requested != uid {
		return "", apperr.Forbidden("cannot act on behalf of another user")
	}
	return uid, nil
}
