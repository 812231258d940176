package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Static simulates a provider in-process. It is used in development mode and as a
// controllable fake in tests.
type Static struct {
	name string

	mu             sync.Mutex
	disburseStatus string
	failures       map[string]error
	accountSeq     int
	transfers      map[string]Disbursement
	payments       map[string]Payment
	banks          []Bank
}

func NewStatic(name string) *Static {
	if name == "" {
		name = "static"
	}
	return &Static{
		name:           name,
		disburseStatus: StatusSuccess,
		failures:       make(map[string]error),
		transfers:      make(map[string]Disbursement),
		payments:       make(map[string]Payment),
		banks: []Bank{
			{Name: "Access Bank", Code: "044"},
			{Name: "Guaranty Trust Bank", Code: "058"},
			{Name: "Wema Bank", Code: "035"},
			{Name: "Zenith Bank", Code: "057"},
		},
	}
}

func (s *Static) Name() string { return s.name }

// SetDisburseStatus controls the status reported by subsequent disbursements.
func (s *Static) SetDisburseStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disburseStatus = status
}

// FailOn makes every call to op return err until cleared with a nil err.
func (s *Static) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// SetTransferStatus overrides what VerifyTransfer reports for reference.
func (s *Static) SetTransferStatus(reference, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.transfers[reference]
	d.Reference = reference
	d.ProviderReference = reference
	d.Status = status
	s.transfers[reference] = d
}

// RecordPayment registers an inbound payment for VerifyTransaction.
func (s *Static) RecordPayment(p Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.Reference] = p
}

func (s *Static) failure(op string) error {
	if err, ok := s.failures[op]; ok {
		return &Error{Provider: s.name, Op: op, Message: err.Error(), Err: err}
	}
	return nil
}

func (s *Static) CreateRecipient(_ context.Context, bankCode, accountNumber, name string) (Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("create_recipient"); err != nil {
		return Recipient{}, err
	}
	return Recipient{BankCode: bankCode, AccountNumber: accountNumber, Name: name, Code: "RCP_" + accountNumber}, nil
}

func (s *Static) Disburse(_ context.Context, req DisburseRequest) (Disbursement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("disburse"); err != nil {
		return Disbursement{}, err
	}
	d := Disbursement{Status: s.disburseStatus, Reference: req.Reference, ProviderReference: "STATIC_" + req.Reference, Amount: req.Amount}
	s.transfers[req.Reference] = d
	return d, nil
}

func (s *Static) VerifyTransfer(_ context.Context, reference string) (Disbursement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("verify_transfer"); err != nil {
		return Disbursement{}, err
	}
	d, ok := s.transfers[reference]
	if !ok {
		return Disbursement{}, &Error{Provider: s.name, Op: "verify_transfer", StatusCode: 404, Message: "transfer not found"}
	}
	return d, nil
}

func (s *Static) ListBanks(context.Context) ([]Bank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("list_banks"); err != nil {
		return nil, err
	}
	return append([]Bank(nil), s.banks...), nil
}

func (s *Static) CreateReservedAccount(_ context.Context, req ReservedAccountRequest) (ReservedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("create_reserved_account"); err != nil {
		return ReservedAccount{}, err
	}
	s.accountSeq++
	return ReservedAccount{AccountNumber: fmt.Sprintf("50%08d", s.accountSeq), BankName: "Wema Bank"}, nil
}

func (s *Static) VerifyTransaction(_ context.Context, reference string) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("verify_transaction"); err != nil {
		return Payment{}, err
	}
	p, ok := s.payments[reference]
	if !ok {
		return Payment{Status: "PENDING", Reference: reference}, nil
	}
	return p, nil
}

func (s *Static) InitializeCheckout(_ context.Context, _ string, amount decimal.Decimal, reference string) (Checkout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("initialize_checkout"); err != nil {
		return Checkout{}, err
	}
	s.payments[reference] = Payment{Status: "PENDING", Reference: reference, AmountPaid: amount}
	return Checkout{AuthorizationURL: "https://checkout.local/pay/" + reference, Reference: reference}, nil
}
