package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/paywave/paywave/internal/gateway"
	"github.com/paywave/paywave/internal/identity"
	"github.com/paywave/paywave/internal/ledger"
	"github.com/paywave/paywave/internal/logging"
	"github.com/paywave/paywave/internal/notification"
	"github.com/paywave/paywave/internal/validation"
)

var (
	// ErrPaymentNotCompleted is returned when the provider has not marked the payment as paid.
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrInvalidInput        = errors.New("invalid deposit request")
	// ErrAmountMismatch is returned when the provider reports less than the checkout amount.
	ErrAmountMismatch = errors.New("paid amount does not match checkout")
)

const referencePrefix = "DEP_"

// Service tops wallets up through a provider-hosted checkout.
type Service struct {
	gateways *gateway.Registry
	provider string
	ledger   ledger.Ledger
	users    identity.Repository
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService builds a deposit service that uses provider for checkout and verification.
// An empty provider selects the registry default.
func NewService(gateways *gateway.Registry, provider string, led ledger.Ledger, users identity.Repository, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{
		gateways: gateways,
		provider: provider,
		ledger:   led,
		users:    users,
		notifier: notifier,
		logger:   logging.Component(logger, "funding"),
	}
}

// CheckoutInput captures a deposit request.
type CheckoutInput struct {
	UserID string          `validate:"required"`
	Amount decimal.Decimal `validate:"gt=0"`
}

// CheckoutResult is returned to the client to complete payment with the provider.
type CheckoutResult struct {
	Reference        string
	AuthorizationURL string
	Provider         string
	Amount           decimal.Decimal
}

// DepositResult represents the ledger outcome of a verified deposit.
type DepositResult struct {
	TransactionID string
	Reference     string
	Status        string
	Amount        decimal.Decimal
	WalletBalance decimal.Decimal
	Provider      string
	// Duplicate is set when the deposit had already been credited.
	Duplicate bool
}

// InitiateCheckout opens a provider checkout for the caller.
func (s *Service) InitiateCheckout(ctx context.Context, input CheckoutInput) (CheckoutResult, error) {
	if !input.Amount.IsPositive() {
		return CheckoutResult{}, ledger.ErrInvalidAmount
	}
	if err := validation.Struct(input); err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	user, err := s.users.FindByID(ctx, input.UserID)
	if err != nil {
		return CheckoutResult{}, err
	}
	initiator, err := s.gateways.Checkout(s.provider)
	if err != nil {
		return CheckoutResult{}, err
	}

	reference := referencePrefix + ulid.Make().String()
	checkout, err := initiator.InitializeCheckout(ctx, user.Email, input.Amount, reference)
	if err != nil {
		return CheckoutResult{}, err
	}
	if checkout.Reference == "" {
		checkout.Reference = reference
	}

	// The pending deposit binds the reference to this user; only they can claim it.
	if _, err := s.ledger.Credit(ctx, ledger.Posting{
		UserID:    user.ID,
		Kind:      ledger.KindDeposit,
		Amount:    input.Amount,
		Reference: checkout.Reference,
		Status:    ledger.StatusPending,
		Provider:  s.providerName(),
		Method:    "checkout",
		Narration: "Wallet top-up",
	}); err != nil {
		return CheckoutResult{}, err
	}
	s.logger.Info("checkout initiated", slog.String("user_id", user.ID), slog.String("reference", checkout.Reference))
	return CheckoutResult{
		Reference:        checkout.Reference,
		AuthorizationURL: checkout.AuthorizationURL,
		Provider:         s.providerName(),
		Amount:           input.Amount,
	}, nil
}

// VerifyDeposit confirms one of the caller's checkouts with the provider and credits
// it once. References opened by other users are reported as not found.
func (s *Service) VerifyDeposit(ctx context.Context, userID, reference string) (DepositResult, error) {
	if reference == "" {
		return DepositResult{}, fmt.Errorf("%w: reference is required", ErrInvalidInput)
	}
	pending, err := s.ledger.FindByReference(ctx, reference)
	if err != nil {
		return DepositResult{}, err
	}
	if pending.UserID != userID || pending.Kind != ledger.KindDeposit {
		return DepositResult{}, ledger.ErrTransactionNotFound
	}
	if pending.Status != ledger.StatusPending {
		balance, err := s.ledger.Balance(ctx, userID)
		if err != nil {
			return DepositResult{}, err
		}
		return depositResult(ledger.Result{Transaction: pending, Balance: balance}, true), nil
	}

	verifier, err := s.gateways.Verifier(s.provider)
	if err != nil {
		return DepositResult{}, err
	}
	payment, err := verifier.VerifyTransaction(ctx, reference)
	if err != nil {
		return DepositResult{}, err
	}
	if payment.Status != gateway.PaymentPaid || !payment.AmountPaid.IsPositive() {
		return DepositResult{}, ErrPaymentNotCompleted
	}
	if payment.AmountPaid.LessThan(pending.Amount) {
		s.logger.Warn("deposit underpaid", slog.String("reference", reference),
			slog.String("expected", pending.Amount.String()), slog.String("paid", payment.AmountPaid.String()))
		return DepositResult{}, ErrAmountMismatch
	}

	res, err := s.ledger.Settle(ctx, reference, ledger.StatusSuccess)
	if errors.Is(err, ledger.ErrAlreadySettled) {
		// Settled concurrently, e.g. by the provider webhook.
		return depositResult(res, true), nil
	}
	if err != nil {
		return DepositResult{}, err
	}
	s.logger.Info("deposit credited", slog.String("user_id", userID), slog.String("reference", reference), slog.String("amount", pending.Amount.String()))
	notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
		Kind:        notification.KindDepositReceived,
		Destination: userID,
		Body:        "Your wallet has been funded",
		Reference:   reference,
		Amount:      pending.Amount,
	})
	return depositResult(res, false), nil
}

func depositResult(r ledger.Result, duplicate bool) DepositResult {
	return DepositResult{
		TransactionID: r.Transaction.ID,
		Reference:     r.Transaction.Reference,
		Status:        r.Transaction.Status,
		Amount:        r.Transaction.Amount,
		WalletBalance: r.Balance,
		Provider:      r.Transaction.Provider,
		Duplicate:     duplicate,
	}
}

func (s *Service) providerName() string {
	if gw, err := s.gateways.Get(s.provider); err == nil {
		return gw.Name()
	}
	return s.provider
}
