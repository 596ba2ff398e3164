package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/metlabs/metlabs_back/internal/apperr"
	"github.com/metlabs/metlabs_back/internal/identity"
	"github.com/metlabs/metlabs_back/internal/middleware"
	"github.com/metlabs/metlabs_back/internal/wallet"
)

type walletKey struct {
	PublicKey string `json:"public_key"`
}

type userProfile struct {
	identity.UserView
	Wallet []walletKey `json:"wallet"`
}

// RegisterUserRoutes exposes the caller's profile and the wallet bind endpoint.
// /user/jwt is registered before /user/:id so it is not captured as an id.
func RegisterUserRoutes(r fiber.Router, requireAuth fiber.Handler, users *identity.Service, wallets *wallet.Service, h *wallet.Handler) {
	group := r.Group("/user")
	group.Post("/wallet", requireAuth, h.BindForCaller)

	group.Get("/jwt", requireAuth, func(c *fiber.Ctx) error {
		uid, _ := c.Locals(middleware.UserIDLocal).(string)
		return profileResponse(c, users, wallets, uid)
	})

	group.Get("/:id", requireAuth, func(c *fiber.Ctx) error {
		uid, _ := c.Locals(middleware.UserIDLocal).(string)
		if c.Params("id") != uid {
			return apperr.Forbidden("cannot read another user's profile")
		}
		return profileResponse(c, users, wallets, uid)
	})
}

func profileResponse(c *fiber.Ctx, users *identity.Service, wallets *wallet.Service, uid string) error {
	if uid == "" {
		return apperr.InvalidToken(nil)
	}
	user, err := users.Get(c.UserContext(), uid)
	if err != nil {
		return err
	}

	profile := userProfile{UserView: identity.NewUserView(user), Wallet: []walletKey{}}
	binding, err := wallets.Resolve(c.UserContext(), uid)
	switch {
	case err == nil:
		profile.Wallet = append(profile.Wallet, walletKey{PublicKey: binding.Wallet.Address})
	case !apperr.Is(err, apperr.KindNotFound):
		return err
	}
	return c.Status(http.StatusOK).JSON(profile)
}
