package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paywave/paywave/internal/gateway"
	"github.com/paywave/paywave/internal/identity"
	"github.com/paywave/paywave/internal/ledger"
	"github.com/paywave/paywave/internal/logging"
	"github.com/paywave/paywave/internal/notification"
)

var (
	// ErrUnknownAccount is returned when the event names an account no user owns.
	ErrUnknownAccount = errors.New("no user for account")
	// ErrReferenceConflict is returned when the reference belongs to a different
	// kind of transaction or another user.
	ErrReferenceConflict = errors.New("reference conflicts with an existing transaction")
	// ErrBalanceUpdate wraps ledger failures while applying an event.
	ErrBalanceUpdate = errors.New("failed to update balance")
)

const (
	MessageDeposit   = "Deposit recorded"
	MessageTransfer  = "Transfer recorded"
	MessageReversal  = "Transfer reversed"
	MessageDuplicate = "Duplicate event ignored"
	MessageUnhandled = "Unhandled event type"
)

// Outcome labels recorded in metrics.
const (
	OutcomeDeposit   = "deposit"
	OutcomeTransfer  = "transfer"
	OutcomeReversal  = "reversal"
	OutcomeDuplicate = "duplicate"
	OutcomeUnhandled = "unhandled"
)

// Result is the reconciler's answer to one event.
type Result struct {
	Message     string
	Outcome     string
	Transaction *ledger.Transaction
}

func unhandled() Result { return Result{Message: MessageUnhandled, Outcome: OutcomeUnhandled} }

func duplicate(tx ledger.Transaction) Result {
	return Result{Message: MessageDuplicate, Outcome: OutcomeDuplicate, Transaction: &tx}
}

// Reconciler applies provider events to the ledger exactly once per reference.
type Reconciler struct {
	ledger   ledger.Ledger
	users    identity.Repository
	notifier notification.Notifier
	logger   *slog.Logger
}

func NewReconciler(led ledger.Ledger, users identity.Repository, notifier notification.Notifier, logger *slog.Logger) *Reconciler {
	return &Reconciler{ledger: led, users: users, notifier: notifier, logger: logging.Component(logger, "webhook")}
}

// Process applies ev. Replays of an already applied reference are acknowledged
// without touching balances. Events without a recognised type, including an empty
// one, are acknowledged as unhandled.
func (r *Reconciler) Process(ctx context.Context, provider string, ev Event) (Result, error) {
	switch ev.EventType {
	case EventSuccessfulTransaction:
		if !strings.EqualFold(ev.PaymentStatus, gateway.PaymentPaid) {
			return unhandled(), nil
		}
		return r.deposit(ctx, provider, ev)
	case EventTransferSuccess:
		return r.transferSucceeded(ctx, provider, ev)
	case EventTransferFailed:
		return r.transferFailed(ctx, ev)
	default:
		return unhandled(), nil
	}
}

func (r *Reconciler) deposit(ctx context.Context, provider string, ev Event) (Result, error) {
	reference, err := ev.depositReference()
	if err != nil {
		return Result{}, err
	}
	amount, err := ev.amount()
	if err != nil {
		return Result{}, err
	}
	if ev.DestinationAccountNumber == "" {
		return Result{}, fmt.Errorf("%w: destinationAccountNumber is required", ErrInvalidPayload)
	}
	user, err := r.owner(ctx, ev.DestinationAccountNumber)
	if err != nil {
		return Result{}, err
	}

	res, err := r.ledger.Credit(ctx, ledger.Posting{
		UserID:              user.ID,
		Kind:                ledger.KindDeposit,
		Amount:              amount,
		Reference:           reference,
		Provider:            provider,
		Method:              strings.ToLower(ev.PaymentMethod),
		CounterpartyAccount: ev.SourceAccountNumber,
		Narration:           "Deposit",
	})
	if errors.Is(err, ledger.ErrDuplicateTransaction) {
		existing := res.Transaction
		if existing.Kind != ledger.KindDeposit || existing.UserID != user.ID {
			return Result{}, ErrReferenceConflict
		}
		if existing.Status == ledger.StatusPending {
			// A checkout opened by this user and paid into their account.
			return r.settle(ctx, existing, ledger.StatusSuccess)
		}
		return duplicate(existing), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrBalanceUpdate, err)
	}

	r.logger.Info("deposit recorded",
		slog.String("user_id", user.ID),
		slog.String("reference", reference),
		slog.String("amount", amount.String()),
		slog.String("balance", res.Balance.String()),
	)
	r.notify(ctx, notification.KindDepositReceived, res.Transaction, "Your wallet has been funded")
	return Result{Message: MessageDeposit, Outcome: OutcomeDeposit, Transaction: &res.Transaction}, nil
}

func (r *Reconciler) transferSucceeded(ctx context.Context, provider string, ev Event) (Result, error) {
	if _, err := ev.reference(); err != nil {
		return Result{}, err
	}
	existing, err := r.ledger.FindByReference(ctx, ev.TransactionReference)
	switch {
	case err == nil:
		if err := r.checkTransfer(ctx, existing, ev.SourceAccountNumber); err != nil {
			return Result{}, err
		}
		if existing.Status != ledger.StatusPending {
			return duplicate(existing), nil
		}
		return r.settle(ctx, existing, ledger.StatusSuccess)
	case !errors.Is(err, ledger.ErrTransactionNotFound):
		return Result{}, fmt.Errorf("%w: %w", ErrBalanceUpdate, err)
	}

	// A transfer this service did not initiate, e.g. from the provider dashboard.
	amount, err := ev.amount()
	if err != nil {
		return Result{}, err
	}
	if ev.SourceAccountNumber == "" {
		return Result{}, fmt.Errorf("%w: sourceAccountNumber is required", ErrInvalidPayload)
	}
	sender, err := r.owner(ctx, ev.SourceAccountNumber)
	if err != nil {
		return Result{}, err
	}
	res, err := r.ledger.Debit(ctx, ledger.Posting{
		UserID:              sender.ID,
		Kind:                ledger.KindTransfer,
		Amount:              amount,
		Reference:           ev.TransactionReference,
		Status:              ledger.StatusSuccess,
		Provider:            provider,
		Method:              strings.ToLower(ev.PaymentMethod),
		CounterpartyAccount: ev.DestinationAccountNumber,
		Narration:           "Transfer",
	})
	if errors.Is(err, ledger.ErrDuplicateTransaction) {
		return duplicate(res.Transaction), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrBalanceUpdate, err)
	}
	r.logger.Info("transfer recorded", slog.String("user_id", sender.ID), slog.String("reference", ev.TransactionReference))
	r.notify(ctx, notification.KindTransferCompleted, res.Transaction, "Transfer completed")
	return Result{Message: MessageTransfer, Outcome: OutcomeTransfer, Transaction: &res.Transaction}, nil
}

func (r *Reconciler) transferFailed(ctx context.Context, ev Event) (Result, error) {
	if _, err := ev.reference(); err != nil {
		return Result{}, err
	}
	existing, err := r.ledger.FindByReference(ctx, ev.TransactionReference)
	if errors.Is(err, ledger.ErrTransactionNotFound) {
		return unhandled(), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrBalanceUpdate, err)
	}
	if err := r.checkTransfer(ctx, existing, ev.SourceAccountNumber); err != nil {
		return Result{}, err
	}
	if existing.Status != ledger.StatusPending {
		return duplicate(existing), nil
	}
	return r.settle(ctx, existing, ledger.StatusFailed)
}

func (r *Reconciler) settle(ctx context.Context, tx ledger.Transaction, status string) (Result, error) {
	res, err := r.ledger.Settle(ctx, tx.Reference, status)
	if errors.Is(err, ledger.ErrAlreadySettled) {
		return duplicate(res.Transaction), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrBalanceUpdate, err)
	}
	if tx.Kind == ledger.KindDeposit {
		r.logger.Info("deposit settled", slog.String("user_id", tx.UserID), slog.String("reference", tx.Reference))
		r.notify(ctx, notification.KindDepositReceived, res.Transaction, "Your wallet has been funded")
		return Result{Message: MessageDeposit, Outcome: OutcomeDeposit, Transaction: &res.Transaction}, nil
	}
	r.logger.Info("transfer settled", slog.String("user_id", tx.UserID), slog.String("reference", tx.Reference), slog.String("status", status))
	if status == ledger.StatusFailed {
		r.notify(ctx, notification.KindTransferFailed, res.Transaction, "Transfer failed and was refunded")
		return Result{Message: MessageReversal, Outcome: OutcomeReversal, Transaction: &res.Transaction}, nil
	}
	r.notify(ctx, notification.KindTransferCompleted, res.Transaction, "Transfer completed")
	return Result{Message: MessageTransfer, Outcome: OutcomeTransfer, Transaction: &res.Transaction}, nil
}

// checkTransfer rejects events whose reference points at a deposit or at another
// user's transfer.
func (r *Reconciler) checkTransfer(ctx context.Context, tx ledger.Transaction, sourceAccount string) error {
	if tx.Kind != ledger.KindTransfer {
		return ErrReferenceConflict
	}
	if sourceAccount == "" {
		return nil
	}
	sender, err := r.owner(ctx, sourceAccount)
	if err != nil {
		return err
	}
	if sender.ID != tx.UserID {
		return ErrReferenceConflict
	}
	return nil
}

func (r *Reconciler) owner(ctx context.Context, accountNumber string) (identity.User, error) {
	user, err := r.users.FindByAccountNumber(ctx, accountNumber)
	if errors.Is(err, identity.ErrUserNotFound) {
		r.logger.Warn("no user for account", slog.String("account_number", accountNumber))
		return identity.User{}, fmt.Errorf("%w %s", ErrUnknownAccount, accountNumber)
	}
	if err != nil {
		return identity.User{}, fmt.Errorf("%w: %w", ErrBalanceUpdate, err)
	}
	return user, nil
}

func (r *Reconciler) notify(ctx context.Context, kind string, tx ledger.Transaction, body string) {
	notification.Deliver(ctx, r.notifier, r.logger, notification.Message{
		Kind:        kind,
		Destination: tx.UserID,
		Body:        body,
		Reference:   tx.Reference,
		Amount:      tx.Amount,
	})
}
