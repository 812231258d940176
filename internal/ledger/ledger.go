package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds occurs when the wallet lacks available balance to cover a debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransaction indicates the reference was already applied; the caller
	// receives the stored transaction and must treat the operation as a no-op.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrInvalidAmount rejects zero or negative postings and amounts finer than kobo.
	ErrInvalidAmount = errors.New("amount must be positive with at most two decimal places")

	// ErrAccountNotFound is returned when no wallet exists for the user.
	ErrAccountNotFound = errors.New("wallet account not found")

	// ErrTransactionNotFound is returned when no transaction carries the reference.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrAlreadySettled is returned when settling a transaction that is no longer pending.
	ErrAlreadySettled = errors.New("transaction already settled")

	// ErrMissingReference rejects postings without an idempotency key.
	ErrMissingReference = errors.New("reference is required")

	// ErrInvalidStatus rejects settlement to anything other than success or failed.
	ErrInvalidStatus = errors.New("invalid settlement status")
)

const (
	KindDeposit  = "deposit"
	KindTransfer = "transfer"

	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Transaction is an append-only wallet movement. Only Status (and UpdatedAt) change
// after creation, when a pending transaction is settled.
type Transaction struct {
	ID                  string
	UserID              string
	Kind                string
	Amount              decimal.Decimal
	Status              string
	Reference           string
	Provider            string
	Method              string
	CounterpartyBank    string
	CounterpartyAccount string
	Narration           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Posting describes a balance mutation and the transaction recorded with it.
type Posting struct {
	UserID              string
	Kind                string
	Amount              decimal.Decimal
	Reference           string
	// Status defaults to success. A pending debit reserves funds until Settle; a
	// pending credit records the expected deposit and moves no money until it is
	// settled as success.
	Status              string
	Provider            string
	Method              string
	CounterpartyBank    string
	CounterpartyAccount string
	Narration           string
}

// Result captures the outcome of a ledger posting.
type Result struct {
	Transaction Transaction
	Balance     decimal.Decimal
}

// Ledger defines the contract implemented by ledger backends (e.g. Postgres).
//
// Every mutating call applies the balance change and the transaction record as one
// atomic unit and is idempotent on Posting.Reference.
type Ledger interface {
	EnsureAccount(ctx context.Context, userID string) error
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	Credit(ctx context.Context, p Posting) (Result, error)
	Debit(ctx context.Context, p Posting) (Result, error)
	Settle(ctx context.Context, reference, status string) (Result, error)
	FindByReference(ctx context.Context, reference string) (Transaction, error)
	Transactions(ctx context.Context, userID string) ([]Transaction, error)
	Pending(ctx context.Context, kind string, olderThan time.Time) ([]Transaction, error)
}

func (p Posting) validate() error {
	if !p.Amount.IsPositive() || !p.Amount.Equal(p.Amount.Truncate(2)) {
		return ErrInvalidAmount
	}
	if p.Status != "" && p.Status != StatusPending && p.Status != StatusSuccess {
		return ErrInvalidStatus
	}
	if p.Reference == "" {
		return ErrMissingReference
	}
	if p.UserID == "" {
		return ErrAccountNotFound
	}
	return nil
}

func (p Posting) withKind(kind string) Posting {
	if p.Kind == "" {
		p.Kind = kind
	}
	return p
}

func (p Posting) status() string {
	if p.Status == "" {
		return StatusSuccess
	}
	return p.Status
}

// credits reports whether settling txn as success moves money into the wallet.
// Deposits are credits and transfers are debits.
func credits(txn Transaction) bool {
	return txn.Kind == KindDeposit
}

func validSettlement(status string) bool {
	return status == StatusSuccess || status == StatusFailed
}
