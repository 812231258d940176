package notification

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
)

const (
	KindTransferCompleted = "transfer.completed"
	KindTransferPending   = "transfer.pending"
	KindTransferFailed    = "transfer.failed"
	KindDepositReceived   = "deposit.received"
)

// Message describes a notification payload.
type Message struct {
	Kind        string          `json:"kind"`
	Destination string          `json:"destination"`
	Body        string          `json:"body"`
	Reference   string          `json:"reference,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("reference", message.Reference),
		slog.String("amount", message.Amount.StringFixed(2)),
		slog.String("body", message.Body),
	)
	return nil
}

// Deliver sends message and logs a failure instead of returning it. Notifications
// never fail the ledger operation that produced them.
func Deliver(ctx context.Context, n Notifier, logger *slog.Logger, message Message) {
	if n == nil {
		return
	}
	if err := n.Send(ctx, message); err != nil && logger != nil {
		logger.Warn("notification delivery failed",
			slog.String("kind", message.Kind),
			slog.String("reference", message.Reference),
			slog.Any("error", err),
		)
	}
}
