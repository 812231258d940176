// Package gateway adapts external payment providers (Monnify, Paystack) to the small
// set of capabilities the wallet needs: provisioning virtual accounts, paying out to
// bank accounts, verifying payments and starting card checkouts.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Normalised disbursement states.
const (
	StatusSuccess = "success"
	StatusPending = "pending"
	StatusFailed  = "failed"
)

// PaymentPaid is the normalised status of a completed inbound payment.
const PaymentPaid = "PAID"

var (
	ErrUnknownGateway = errors.New("unknown payment gateway")
	ErrUnsupported    = errors.New("operation not supported by payment gateway")
)

type Recipient struct {
	BankCode      string
	AccountNumber string
	Name          string
	// Code is the provider-side recipient handle, when the provider issues one.
	Code string
}

type DisburseRequest struct {
	Amount        decimal.Decimal
	Reference     string
	Narration     string
	Recipient     Recipient
	SourceAccount string
}

type Disbursement struct {
	Status            string
	Reference         string
	ProviderReference string
	Amount            decimal.Decimal
}

type Bank struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type ReservedAccountRequest struct {
	Reference string
	Name      string
	Email     string
	BVN       string
}

type ReservedAccount struct {
	AccountNumber string
	BankName      string
}

type Payment struct {
	Status        string
	Reference     string
	AmountPaid    decimal.Decimal
	AccountNumber string
}

type Checkout struct {
	AuthorizationURL string
	Reference        string
}

// Gateway moves money out of the platform to bank accounts.
type Gateway interface {
	Name() string
	CreateRecipient(ctx context.Context, bankCode, accountNumber, name string) (Recipient, error)
	Disburse(ctx context.Context, req DisburseRequest) (Disbursement, error)
	VerifyTransfer(ctx context.Context, reference string) (Disbursement, error)
	ListBanks(ctx context.Context) ([]Bank, error)
}

// AccountProvisioner issues dedicated virtual accounts for users.
type AccountProvisioner interface {
	CreateReservedAccount(ctx context.Context, req ReservedAccountRequest) (ReservedAccount, error)
}

// PaymentVerifier looks up the state of an inbound payment.
type PaymentVerifier interface {
	VerifyTransaction(ctx context.Context, reference string) (Payment, error)
}

// CheckoutInitiator starts a hosted payment page for wallet top-ups.
type CheckoutInitiator interface {
	InitializeCheckout(ctx context.Context, email string, amount decimal.Decimal, reference string) (Checkout, error)
}

// Error describes a failed provider call: transport failures, non-2xx responses and
// unparseable bodies all surface as *Error.
type Error struct {
	Provider   string
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }
