package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/paywave/paywave/internal/identity"
	"github.com/paywave/paywave/internal/ledger"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func callerOf(c *fiber.Ctx) Caller {
	uid, _ := c.Locals("user_id").(string)
	admin, _ := c.Locals("is_admin").(bool)
	return Caller{UserID: uid, IsAdmin: admin}
}

// Balance returns the wallet balance. Admins may pass ?account_number=.
func (h *Handler) Balance(c *fiber.Ctx) error {
	balance, err := h.service.Balance(c.UserContext(), callerOf(c), c.Query("account_number"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(balance)
}

// Transactions returns the wallet history, newest first.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	entries, err := h.service.History(c.UserContext(), callerOf(c), c.Query("account_number"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"transactions": entries, "count": len(entries)})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrForbidden):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, identity.ErrUserNotFound), errors.Is(err, ledger.ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, "wallet not found")
	default:
		return err
	}
}
