package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

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
	// ErrNoVirtualAccount is returned when the sender was never provisioned.
	ErrNoVirtualAccount = errors.New("user has no virtual account")
	ErrInvalidInput     = errors.New("invalid transfer request")
)

const referencePrefix = "TRANSFER_"

// Request describes an outbound bank transfer.
type Request struct {
	UserID        string          `validate:"required"`
	Amount        decimal.Decimal `validate:"gt=0"`
	BankCode      string          `validate:"required,numeric_string"`
	AccountNumber string          `validate:"required,numeric_string,len=10"`
	AccountName   string
	Narration     string `validate:"max=100"`
	// Reference is optional; one is generated when empty.
	Reference string `validate:"omitempty,max=64"`
	// Provider selects the gateway; empty means the registry default.
	Provider string
}

// Result is the state of a transfer after orchestration.
type Result struct {
	Reference         string          `json:"reference"`
	Status            string          `json:"status"`
	Amount            decimal.Decimal `json:"amount"`
	Balance           decimal.Decimal `json:"balance"`
	Provider          string          `json:"provider"`
	ProviderReference string          `json:"provider_reference,omitempty"`
}

// ReconcileSummary reports what a pending sweep did.
type ReconcileSummary struct {
	Checked int
	Settled int
	Errors  int
}

// Service orchestrates outbound transfers: it reserves funds in the ledger,
// disburses through a gateway and settles the reservation with the outcome.
type Service struct {
	gateways   *gateway.Registry
	ledger     ledger.Ledger
	users      identity.Repository
	notifier   notification.Notifier
	logger     *slog.Logger
	sweepAfter time.Duration
	now        func() time.Time
}

func NewService(gateways *gateway.Registry, led ledger.Ledger, users identity.Repository, notifier notification.Notifier, sweepAfter time.Duration, logger *slog.Logger) *Service {
	if sweepAfter <= 0 {
		sweepAfter = 10 * time.Minute
	}
	return &Service{
		gateways:   gateways,
		ledger:     led,
		users:      users,
		notifier:   notifier,
		logger:     logging.Component(logger, "transfer"),
		sweepAfter: sweepAfter,
		now:        time.Now,
	}
}

// Transfer debits the sender and pays out to an external bank account. Funds are
// reserved before the provider is called and refunded when the payout fails.
func (s *Service) Transfer(ctx context.Context, req Request) (Result, error) {
	if !req.Amount.IsPositive() {
		return Result{}, ledger.ErrInvalidAmount
	}
	if err := validation.Struct(req); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	sender, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		return Result{}, err
	}
	if !sender.HasAccount() {
		return Result{}, ErrNoVirtualAccount
	}

	gw, err := s.gateways.Get(req.Provider)
	if err != nil {
		return Result{}, err
	}
	recipient, err := gw.CreateRecipient(ctx, req.BankCode, req.AccountNumber, req.AccountName)
	if err != nil {
		return Result{}, err
	}

	reference := req.Reference
	if reference == "" {
		reference = referencePrefix + ulid.Make().String()
	}
	reserved, err := s.ledger.Debit(ctx, ledger.Posting{
		UserID:              sender.ID,
		Kind:                ledger.KindTransfer,
		Amount:              req.Amount,
		Reference:           reference,
		Status:              ledger.StatusPending,
		Provider:            gw.Name(),
		CounterpartyBank:    req.BankCode,
		CounterpartyAccount: req.AccountNumber,
		Narration:           req.Narration,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateTransaction) {
			return resultOf(reserved), err
		}
		return Result{}, err
	}

	log := s.logger.With(slog.String("user_id", sender.ID), slog.String("reference", reference), slog.String("provider", gw.Name()))

	out, err := gw.Disburse(ctx, gateway.DisburseRequest{
		Amount:        req.Amount,
		Reference:     reference,
		Narration:     req.Narration,
		Recipient:     recipient,
		SourceAccount: sender.AccountNumber,
	})
	if err == nil && out.Status == gateway.StatusFailed {
		err = &gateway.Error{Provider: gw.Name(), Op: "disburse", Message: "transfer failed"}
	}
	if err != nil {
		settled, settleErr := s.ledger.Settle(context.WithoutCancel(ctx), reference, ledger.StatusFailed)
		if settleErr != nil {
			log.Error("refund after failed disbursement", slog.Any("error", settleErr))
			return Result{}, errors.Join(err, settleErr)
		}
		log.Warn("disbursement failed, funds refunded", slog.Any("error", err))
		s.notify(ctx, notification.KindTransferFailed, settled.Transaction, "Transfer failed and was refunded")
		return resultOf(settled), err
	}

	res := resultOf(reserved)
	res.ProviderReference = out.ProviderReference
	if out.Status == gateway.StatusSuccess {
		settled, err := s.ledger.Settle(ctx, reference, ledger.StatusSuccess)
		if err != nil {
			return Result{}, err
		}
		res = resultOf(settled)
		res.ProviderReference = out.ProviderReference
		s.notify(ctx, notification.KindTransferCompleted, settled.Transaction, "Transfer completed")
	} else {
		s.notify(ctx, notification.KindTransferPending, reserved.Transaction, "Transfer is processing")
	}
	log.Info("transfer processed", slog.String("status", res.Status), slog.String("amount", req.Amount.String()))
	return res, nil
}

// Verify re-queries the provider for one of the caller's transfers and settles it
// when the provider reports a final status.
func (s *Service) Verify(ctx context.Context, userID, reference string) (Result, error) {
	tx, err := s.ledger.FindByReference(ctx, reference)
	if err != nil {
		return Result{}, err
	}
	if tx.UserID != userID || tx.Kind != ledger.KindTransfer {
		return Result{}, ledger.ErrTransactionNotFound
	}
	if tx.Status != ledger.StatusPending {
		return s.current(ctx, tx)
	}
	return s.reconcile(ctx, tx)
}

// ReconcilePending verifies every transfer left pending for longer than the sweep
// threshold. Individual failures are logged and do not stop the sweep.
func (s *Service) ReconcilePending(ctx context.Context) (ReconcileSummary, error) {
	pending, err := s.ledger.Pending(ctx, ledger.KindTransfer, s.now().Add(-s.sweepAfter))
	if err != nil {
		return ReconcileSummary{}, err
	}
	var summary ReconcileSummary
	for _, tx := range pending {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Checked++
		res, err := s.reconcile(ctx, tx)
		if err != nil {
			summary.Errors++
			s.logger.Warn("reconcile pending transfer", slog.String("reference", tx.Reference), slog.Any("error", err))
			continue
		}
		if res.Status != ledger.StatusPending {
			summary.Settled++
		}
	}
	return summary, nil
}

// ListBanks returns the banks supported by provider, or by the default gateway.
func (s *Service) ListBanks(ctx context.Context, provider string) ([]gateway.Bank, error) {
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, err
	}
	return gw.ListBanks(ctx)
}

func (s *Service) reconcile(ctx context.Context, tx ledger.Transaction) (Result, error) {
	gw, err := s.gateways.Get(tx.Provider)
	if err != nil {
		return Result{}, err
	}
	out, err := gw.VerifyTransfer(ctx, tx.Reference)
	if err != nil {
		return Result{}, err
	}

	var status, kind, body string
	switch out.Status {
	case gateway.StatusSuccess:
		status, kind, body = ledger.StatusSuccess, notification.KindTransferCompleted, "Transfer completed"
	case gateway.StatusFailed:
		status, kind, body = ledger.StatusFailed, notification.KindTransferFailed, "Transfer failed and was refunded"
	default:
		res, err := s.current(ctx, tx)
		res.ProviderReference = out.ProviderReference
		return res, err
	}

	settled, err := s.ledger.Settle(ctx, tx.Reference, status)
	if errors.Is(err, ledger.ErrAlreadySettled) {
		// A webhook got there first.
		return resultOf(settled), nil
	}
	if err != nil {
		return Result{}, err
	}
	s.logger.Info("transfer settled", slog.String("reference", tx.Reference), slog.String("status", status))
	s.notify(ctx, kind, settled.Transaction, body)
	res := resultOf(settled)
	res.ProviderReference = out.ProviderReference
	return res, nil
}

func (s *Service) current(ctx context.Context, tx ledger.Transaction) (Result, error) {
	balance, err := s.ledger.Balance(ctx, tx.UserID)
	if err != nil {
		return Result{}, err
	}
	return resultOf(ledger.Result{Transaction: tx, Balance: balance}), nil
}

func (s *Service) notify(ctx context.Context, kind string, tx ledger.Transaction, body string) {
	notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
		Kind:        kind,
		Destination: tx.UserID,
		Body:        body,
		Reference:   tx.Reference,
		Amount:      tx.Amount,
	})
}

func resultOf(r ledger.Result) Result {
	return Result{
		Reference: r.Transaction.Reference,
		Status:    r.Transaction.Status,
		Amount:    r.Transaction.Amount,
		Balance:   r.Balance,
		Provider:  r.Transaction.Provider,
	}
}
