package transfer

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/paywave/paywave/internal/gateway"
	"github.com/paywave/paywave/internal/identity"
	"github.com/paywave/paywave/internal/ledger"
)

// Handler exposes transfer endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	BankCode      string          `json:"bank_code"`
	AccountNumber string          `json:"account_number"`
	AccountName   string          `json:"account_name"`
	Narration     string          `json:"narration"`
	Reference     string          `json:"reference"`
	Provider      string          `json:"provider"`
}

// Create sends money from the caller's wallet to a bank account.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	uid, _ := c.Locals("user_id").(string)

	res, err := h.service.Transfer(c.UserContext(), Request{
		UserID:        uid,
		Amount:        req.Amount,
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
		Narration:     req.Narration,
		Reference:     req.Reference,
		Provider:      req.Provider,
	})
	if err != nil {
		return MapError(err)
	}

	status := http.StatusCreated
	if res.Status == ledger.StatusPending {
		status = http.StatusAccepted
	}
	return c.Status(status).JSON(res)
}

// Verify re-checks a transfer with its provider.
func (h *Handler) Verify(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	res, err := h.service.Verify(c.UserContext(), uid, c.Params("reference"))
	if err != nil {
		return MapError(err)
	}
	return c.JSON(res)
}

// Banks lists the destination banks of a provider (?provider=, default gateway otherwise).
func (h *Handler) Banks(c *fiber.Ctx) error {
	banks, err := h.service.ListBanks(c.UserContext(), c.Query("provider"))
	if err != nil {
		return MapError(err)
	}
	return c.JSON(fiber.Map{"banks": banks})
}

// MapError converts transfer, ledger and gateway errors to HTTP errors.
func MapError(err error) error {
	var gwErr *gateway.Error
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, "insufficient funds")
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNoVirtualAccount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, gateway.ErrUnknownGateway), errors.Is(err, gateway.ErrUnsupported):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		return fiber.NewError(http.StatusConflict, "duplicate transaction reference")
	case errors.Is(err, ledger.ErrTransactionNotFound), errors.Is(err, identity.ErrUserNotFound), errors.Is(err, ledger.ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.As(err, &gwErr):
		return fiber.NewError(http.StatusBadGateway, gwErr.Error())
	default:
		return err
	}
}
