package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Profile is the public view of a user.
type Profile struct {
	UserID        string    `json:"user_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone,omitempty"`
	ProfileImage  string    `json:"profile_image,omitempty"`
	AccountNumber string    `json:"account_number,omitempty"`
	BankName      string    `json:"bank_name,omitempty"`
	IsAdmin       bool      `json:"is_admin"`
	CreatedAt     time.Time `json:"created_at"`
}

func ProfileOf(u User) Profile {
	return Profile{
		UserID:        u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Phone:         u.Phone,
		ProfileImage:  u.ProfileImage,
		AccountNumber: u.AccountNumber,
		BankName:      u.BankName,
		IsAdmin:       u.IsAdmin,
		CreatedAt:     u.CreatedAt,
	}
}

// Me returns the authenticated user's profile.
func (h *Handler) Me(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	user, err := h.service.Get(c.UserContext(), userID)
	if err != nil {
		return MapError(err)
	}
	return c.JSON(ProfileOf(user))
}

// Lookup returns any user's profile by account number. Admin only.
func (h *Handler) Lookup(c *fiber.Ctx) error {
	user, err := h.service.FindByAccountNumber(c.UserContext(), c.Params("accountNumber"))
	if err != nil {
		return MapError(err)
	}
	return c.JSON(ProfileOf(user))
}

// MapError converts identity errors to HTTP errors.
func MapError(err error) error {
	switch {
	case errors.Is(err, ErrEmailExists):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrUserNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidInput):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrProvisioning):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	default:
		return err
	}
}
