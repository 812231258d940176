package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	EventSuccessfulTransaction = "SUCCESSFUL_TRANSACTION"
	EventTransferSuccess       = "TRANSFER_SUCCESS"
	EventTransferFailed        = "TRANSFER_FAILED"
)

// ErrInvalidPayload covers malformed JSON, bad amounts and missing required keys.
var ErrInvalidPayload = errors.New("invalid webhook payload")

// Event is a provider notification in its normalised form.
type Event struct {
	EventType                string              `json:"eventType"`
	TransactionReference     string              `json:"transactionReference"`
	PaymentStatus            string              `json:"paymentStatus"`
	AmountPaid               decimal.NullDecimal `json:"amountPaid"`
	DestinationAccountNumber string              `json:"destinationAccountNumber"`
	SourceAccountNumber      string              `json:"sourceAccountNumber"`
	PaymentMethod            string              `json:"paymentMethod"`

	// digest identifies the raw payload for deposits that carry no reference.
	digest string
}

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string              `json:"reference"`
		Amount    decimal.NullDecimal `json:"amount"`
		Status    string              `json:"status"`
	} `json:"data"`
}

var paystackEventTypes = map[string]string{
	"transfer.success":  EventTransferSuccess,
	"transfer.failed":   EventTransferFailed,
	"transfer.reversed": EventTransferFailed,
}

// Decode parses a provider payload into an Event. Monnify posts the flat form
// directly; Paystack transfer events are translated. Which fields are required
// depends on the event type and is checked when the event is processed.
func Decode(provider string, body []byte) (Event, error) {
	var ev Event
	switch provider {
	case "paystack":
		var p paystackEvent
		if err := json.Unmarshal(body, &p); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		ev.EventType = p.Event
		if mapped, ok := paystackEventTypes[p.Event]; ok {
			ev.EventType = mapped
		}
		ev.TransactionReference = p.Data.Reference
		ev.PaymentStatus = strings.ToUpper(p.Data.Status)
		if p.Data.Amount.Valid {
			ev.AmountPaid = decimal.NewNullDecimal(p.Data.Amount.Decimal.Shift(-2))
		}
	default:
		if err := json.Unmarshal(body, &ev); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	ev.EventType = strings.TrimSpace(ev.EventType)
	ev.TransactionReference = strings.TrimSpace(ev.TransactionReference)
	sum := sha256.Sum256(body)
	ev.digest = hex.EncodeToString(sum[:16])
	return ev, nil
}

// reference returns the transaction reference, or an error when it is missing.
func (ev Event) reference() (string, error) {
	if ev.TransactionReference == "" {
		return "", fmt.Errorf("%w: transactionReference is required", ErrInvalidPayload)
	}
	return ev.TransactionReference, nil
}

// depositReference falls back to a digest of the payload when the provider sent no
// reference, so a redelivered payload still maps to one ledger entry.
func (ev Event) depositReference() (string, error) {
	if ev.TransactionReference != "" {
		return ev.TransactionReference, nil
	}
	if ev.digest == "" {
		return "", fmt.Errorf("%w: transactionReference is required", ErrInvalidPayload)
	}
	return "WH_" + ev.digest, nil
}

func (ev Event) amount() (decimal.Decimal, error) {
	if !ev.AmountPaid.Valid {
		return decimal.Decimal{}, fmt.Errorf("%w: amountPaid is required", ErrInvalidPayload)
	}
	if !ev.AmountPaid.Decimal.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: amountPaid must be positive", ErrInvalidPayload)
	}
	if !ev.AmountPaid.Decimal.Equal(ev.AmountPaid.Decimal.Truncate(2)) {
		return decimal.Decimal{}, fmt.Errorf("%w: amountPaid has more than two decimal places", ErrInvalidPayload)
	}
	return ev.AmountPaid.Decimal, nil
}
