package ledger

import (
	"context"
	"errors"

	"github.com/paywave/paywave/internal/metrics"
)

type instrumented struct {
	Ledger
	metrics *metrics.Metrics
}

// WithMetrics counts postings and settlements of next. Duplicate replays are counted
// as successful no-ops.
func WithMetrics(next Ledger, m *metrics.Metrics) Ledger {
	if m == nil {
		return next
	}
	return &instrumented{Ledger: next, metrics: m}
}

func (l *instrumented) Credit(ctx context.Context, p Posting) (Result, error) {
	res, err := l.Ledger.Credit(ctx, p)
	l.metrics.LedgerPosting("credit", countable(err))
	return res, err
}

func (l *instrumented) Debit(ctx context.Context, p Posting) (Result, error) {
	res, err := l.Ledger.Debit(ctx, p)
	l.metrics.LedgerPosting("debit", countable(err))
	return res, err
}

func (l *instrumented) Settle(ctx context.Context, reference, status string) (Result, error) {
	res, err := l.Ledger.Settle(ctx, reference, status)
	l.metrics.LedgerPosting("settle_"+status, countable(err))
	return res, err
}

func countable(err error) error {
	if errors.Is(err, ErrDuplicateTransaction) || errors.Is(err, ErrAlreadySettled) {
		return nil
	}
	return err
}
