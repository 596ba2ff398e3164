package identity

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/metlabs/metlabs_back/internal/apperr"
)

const birthDateLayout = "2006-01-02"

// Handler exposes identity endpoints.
type Handler struct {
	service  *Service
	recovery *Recovery
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service, recovery *Recovery) *Handler {
	return &Handler{service: service, recovery: recovery}
}

type registerRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Phone       string `json:"phone"`
	Nationality string `json:"nationality"`
	Sex         string `json:"sex"`
	BirthDate   string `json:"birth_date"`
}

// UserView is the public representation of a user. It never carries the
// password hash or session token.
type UserView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Nationality string `json:"nationality"`
	Sex         string `json:"sex"`
	BirthDate   string `json:"birth_date"`
	CreatedAt   string `json:"created_at"`
}

// NewUserView projects a user onto its public fields.
func NewUserView(u User) UserView {
	return UserView{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Phone:       u.Phone,
		Nationality: u.Nationality,
		Sex:         u.Sex,
		BirthDate:   u.BirthDate.Format(birthDateLayout),
		CreatedAt:   u.CreatedAt.Format(time.RFC3339),
	}
}

// Register handles user onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	birth, err := parseBirthDate(req.BirthDate)
	if err != nil {
		return err
	}
	user, err := h.service.Register(c.UserContext(), Profile{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		Nationality: req.Nationality,
		Sex:         req.Sex,
		BirthDate:   birth,
	}, req.Password)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "User registered successfully",
		"user":    NewUserView(user),
	})
}

// ForgotPassword starts password recovery. The response does not reveal
// whether the email is registered.
func (h *Handler) ForgotPassword(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if err := h.recovery.RequestPasswordReset(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "If the email is registered, a reset link has been sent"})
}

// ResetPassword redeems a reset token.
func (h *Handler) ResetPassword(c *fiber.Ctx) error {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if err := h.recovery.ResetPassword(c.UserContext(), req.Token, req.Password); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Password updated successfully"})
}

func parseBirthDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, apperr.Validation("birth_date is required")
	}
	for _, layout := range []string{birthDateLayout, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperr.Validation("birth_date must be YYYY-MM-DD")
}
