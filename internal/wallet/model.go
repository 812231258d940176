package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/paywave/paywave/internal/ledger"
)

// Balance is a point-in-time wallet balance.
type Balance struct {
	UserID        string          `json:"user_id"`
	AccountNumber string          `json:"account_number"`
	BankName      string          `json:"bank_name,omitempty"`
	Amount        decimal.Decimal `json:"balance"`
	AsOf          time.Time       `json:"timestamp"`
}

// Entry is the API view of a ledger transaction.
type Entry struct {
	ID                  string          `json:"id"`
	Kind                string          `json:"type"`
	Amount              decimal.Decimal `json:"amount"`
	Status              string          `json:"status"`
	Reference           string          `json:"reference"`
	Provider            string          `json:"provider,omitempty"`
	Method              string          `json:"method,omitempty"`
	CounterpartyBank    string          `json:"counterparty_bank,omitempty"`
	CounterpartyAccount string          `json:"counterparty_account,omitempty"`
	Narration           string          `json:"narration,omitempty"`
	CreatedAt           time.Time       `json:"timestamp"`
}

func entryOf(tx ledger.Transaction) Entry {
	return Entry{
		ID:                  tx.ID,
		Kind:                tx.Kind,
		Amount:              tx.Amount,
		Status:              tx.Status,
		Reference:           tx.Reference,
		Provider:            tx.Provider,
		Method:              tx.Method,
		CounterpartyBank:    tx.CounterpartyBank,
		CounterpartyAccount: tx.CounterpartyAccount,
		Narration:           tx.Narration,
		CreatedAt:           tx.CreatedAt,
	}
}
