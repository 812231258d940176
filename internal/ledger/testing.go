package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// SeedBalance is a helper for tests to set an initial balance on the in-memory ledger.
func SeedBalance(l Ledger, userID string, amount decimal.Decimal) {
	if inst, ok := l.(*instrumented); ok {
		l = inst.Ledger
	}
	mem, ok := l.(*inMemoryLedger)
	if !ok {
		return
	}
	_ = mem.EnsureAccount(context.Background(), userID)
	mem.mu.Lock()
	mem.balances[userID] = amount
	mem.mu.Unlock()
}
