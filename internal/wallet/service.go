package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/paywave/paywave/internal/identity"
	"github.com/paywave/paywave/internal/ledger"
)

// ErrForbidden is returned when a non-admin asks for someone else's wallet.
var ErrForbidden = errors.New("not allowed to view this wallet")

// Caller identifies who is asking.
type Caller struct {
	UserID  string
	IsAdmin bool
}

// Service answers wallet queries from the ledger.
type Service struct {
	users  identity.Repository
	ledger ledger.Ledger
	now    func() time.Time
}

// NewService builds a wallet service instance.
func NewService(users identity.Repository, led ledger.Ledger) *Service {
	return &Service{users: users, ledger: led, now: time.Now}
}

// Balance returns the caller's balance, or the balance of accountNumber for admins.
func (s *Service) Balance(ctx context.Context, caller Caller, accountNumber string) (Balance, error) {
	user, err := s.resolve(ctx, caller, accountNumber)
	if err != nil {
		return Balance{}, err
	}
	amount, err := s.ledger.Balance(ctx, user.ID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		UserID:        user.ID,
		AccountNumber: user.AccountNumber,
		BankName:      user.BankName,
		Amount:        amount,
		AsOf:          s.now().UTC(),
	}, nil
}

// History lists transactions newest first, with the same access rule as Balance.
func (s *Service) History(ctx context.Context, caller Caller, accountNumber string) ([]Entry, error) {
	user, err := s.resolve(ctx, caller, accountNumber)
	if err != nil {
		return nil, err
	}
	txs, err := s.ledger.Transactions(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(txs))
	for _, tx := range txs {
		entries = append(entries, entryOf(tx))
	}
	return entries, nil
}

func (s *Service) resolve(ctx context.Context, caller Caller, accountNumber string) (identity.User, error) {
	if accountNumber == "" {
		return s.users.FindByID(ctx, caller.UserID)
	}
	if !caller.IsAdmin {
		self, err := s.users.FindByID(ctx, caller.UserID)
		if err != nil {
			return identity.User{}, err
		}
		if self.AccountNumber != accountNumber {
			return identity.User{}, ErrForbidden
		}
		return self, nil
	}
	return s.users.FindByAccountNumber(ctx, accountNumber)
}
