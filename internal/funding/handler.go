package funding

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/paywave/paywave/internal/gateway"
	"github.com/paywave/paywave/internal/identity"
	"github.com/paywave/paywave/internal/ledger"
)

// Handler exposes HTTP endpoints for deposits.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Checkout starts a provider checkout for the caller.
func (h *Handler) Checkout(c *fiber.Ctx) error {
	var req CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	uid, _ := c.Locals("user_id").(string)

	result, err := h.service.InitiateCheckout(c.UserContext(), CheckoutInput{UserID: uid, Amount: req.Amount})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(CheckoutResponse{
		Reference:        result.Reference,
		AuthorizationURL: result.AuthorizationURL,
		Provider:         result.Provider,
		Amount:           result.Amount,
	})
}

// Verify credits a completed checkout payment.
func (h *Handler) Verify(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	result, err := h.service.VerifyDeposit(c.UserContext(), uid, c.Params("reference"))
	if err != nil {
		return mapError(err)
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	return c.Status(status).JSON(DepositResponse{
		TransactionID: result.TransactionID,
		Reference:     result.Reference,
		Status:        result.Status,
		Amount:        result.Amount,
		WalletBalance: result.WalletBalance,
		Provider:      result.Provider,
	})
}

func mapError(err error) error {
	var gwErr *gateway.Error
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ErrInvalidInput):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrPaymentNotCompleted), errors.Is(err, ErrAmountMismatch):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrUserNotFound), errors.Is(err, ledger.ErrAccountNotFound), errors.Is(err, ledger.ErrTransactionNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, gateway.ErrUnknownGateway), errors.Is(err, gateway.ErrUnsupported):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &gwErr):
		return fiber.NewError(http.StatusBadGateway, gwErr.Error())
	default:
		return err
	}
}
