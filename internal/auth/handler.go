package auth

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/metlabs/metlabs_back/internal/apperr"
)

// CookieName is the cookie that carries the access token for browser clients.
const CookieName = "auth_token"

// Handler exposes auth endpoints.
type Handler struct {
	svc          *Service
	secureCookie bool
}

func NewHandler(svc *Service, secureCookie bool) *Handler {
	return &Handler{svc: svc, secureCookie: secureCookie}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message   string   `json:"message"`
	Token     string   `json:"token"`
	ExpiresIn int64    `json:"expires_in"`
	User      userInfo `json:"user"`
}

type userInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Login validates credentials, sets the session cookie and returns the token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	res, err := h.svc.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Value:    res.Token,
		Path:     "/",
		Expires:  time.Now().Add(res.ExpiresIn),
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.Status(http.StatusOK).JSON(loginResponse{
		Message:   "Login successful",
		Token:     res.Token,
		ExpiresIn: int64(res.ExpiresIn.Seconds()),
		User:      userInfo{ID: res.User.UserID, Email: res.User.Email},
	})
}

// Logout invalidates the caller's session token and clears the cookie.
func (h *Handler) Logout(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return apperr.InvalidToken(nil)
	}
	if err := h.svc.Logout(c.UserContext(), uid); err != nil {
		return err
	}
	c.ClearCookie(CookieName)
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}
