package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type inMemoryLedger struct {
	mu           sync.RWMutex
	balances     map[string]decimal.Decimal
	transactions map[string]*Transaction
	byUser       map[string][]*Transaction
	now          func() time.Time
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests and
// local development.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		balances:     make(map[string]decimal.Decimal),
		transactions: make(map[string]*Transaction),
		byUser:       make(map[string][]*Transaction),
		now:          time.Now,
	}
}

func (l *inMemoryLedger) EnsureAccount(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.balances[userID]; !exists {
		l.balances[userID] = decimal.Zero
	}
	return nil
}

func (l *inMemoryLedger) Balance(_ context.Context, userID string) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance, exists := l.balances[userID]
	if !exists {
		return decimal.Zero, ErrAccountNotFound
	}
	return balance, nil
}

func (l *inMemoryLedger) Credit(_ context.Context, p Posting) (Result, error) {
	p = p.withKind(KindDeposit)
	if err := p.validate(); err != nil {
		return Result{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.transactions[p.Reference]; ok {
		return Result{Transaction: *existing, Balance: l.balances[existing.UserID]}, ErrDuplicateTransaction
	}
	balance, ok := l.balances[p.UserID]
	if !ok {
		return Result{}, ErrAccountNotFound
	}

	status := p.status()
	if status == StatusSuccess {
		balance = balance.Add(p.Amount)
		l.balances[p.UserID] = balance
	}
	txn := l.record(p, status)
	return Result{Transaction: *txn, Balance: balance}, nil
}

func (l *inMemoryLedger) Debit(_ context.Context, p Posting) (Result, error) {
	p = p.withKind(KindTransfer)
	if err := p.validate(); err != nil {
		return Result{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.transactions[p.Reference]; ok {
		return Result{Transaction: *existing, Balance: l.balances[existing.UserID]}, ErrDuplicateTransaction
	}
	balance, ok := l.balances[p.UserID]
	if !ok {
		return Result{}, ErrAccountNotFound
	}
	if balance.LessThan(p.Amount) {
		return Result{Balance: balance}, ErrInsufficientFunds
	}

	balance = balance.Sub(p.Amount)
	l.balances[p.UserID] = balance
	txn := l.record(p, p.status())
	return Result{Transaction: *txn, Balance: balance}, nil
}

func (l *inMemoryLedger) Settle(_ context.Context, reference, status string) (Result, error) {
	if !validSettlement(status) {
		return Result{}, ErrInvalidStatus
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	txn, ok := l.transactions[reference]
	if !ok {
		return Result{}, ErrTransactionNotFound
	}
	if txn.Status != StatusPending {
		return Result{Transaction: *txn, Balance: l.balances[txn.UserID]}, ErrAlreadySettled
	}

	switch {
	case credits(*txn) && status == StatusSuccess:
		l.balances[txn.UserID] = l.balances[txn.UserID].Add(txn.Amount)
	case !credits(*txn) && status == StatusFailed:
		l.balances[txn.UserID] = l.balances[txn.UserID].Add(txn.Amount)
	}
	txn.Status = status
	txn.UpdatedAt = l.now()
	return Result{Transaction: *txn, Balance: l.balances[txn.UserID]}, nil
}

func (l *inMemoryLedger) FindByReference(_ context.Context, reference string) (Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	txn, ok := l.transactions[reference]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return *txn, nil
}

func (l *inMemoryLedger) Transactions(_ context.Context, userID string) ([]Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.balances[userID]; !ok {
		return nil, ErrAccountNotFound
	}
	list := l.byUser[userID]
	out := make([]Transaction, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, *list[i])
	}
	return out, nil
}

func (l *inMemoryLedger) Pending(_ context.Context, kind string, olderThan time.Time) ([]Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Transaction
	for _, txn := range l.transactions {
		if txn.Status == StatusPending && txn.Kind == kind && txn.CreatedAt.Before(olderThan) {
			out = append(out, *txn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// record must be called with l.mu held.
func (l *inMemoryLedger) record(p Posting, status string) *Transaction {
	now := l.now()
	txn := &Transaction{
		ID:                  uuid.NewString(),
		UserID:              p.UserID,
		Kind:                p.Kind,
		Amount:              p.Amount,
		Status:              status,
		Reference:           p.Reference,
		Provider:            p.Provider,
		Method:              p.Method,
		CounterpartyBank:    p.CounterpartyBank,
		CounterpartyAccount: p.CounterpartyAccount,
		Narration:           p.Narration,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	l.transactions[p.Reference] = txn
	l.byUser[p.UserID] = append(l.byUser[p.UserID], txn)
	return txn
}
