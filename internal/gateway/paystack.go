package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paywave/paywave/internal/metrics"
)

const (
	paystackName     = "paystack"
	paystackCurrency = "NGN"
)

type PaystackConfig struct {
	BaseURL    string
	SecretKey  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

// Paystack pays out through recipient codes and collects deposits through hosted
// checkouts. Amounts cross the wire in kobo.
type Paystack struct {
	api       apiClient
	secretKey string
}

func NewPaystack(cfg PaystackConfig) *Paystack {
	return &Paystack{
		api:       newAPIClient(paystackName, cfg.BaseURL, cfg.Timeout, cfg.HTTPClient, cfg.Metrics),
		secretKey: cfg.SecretKey,
	}
}

func (p *Paystack) Name() string { return paystackName }

type paystackEnvelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func (e paystackEnvelope[T]) check(op string) error {
	if !e.Status {
		return &Error{Provider: paystackName, Op: op, Message: e.Message}
	}
	return nil
}

func (p *Paystack) call(ctx context.Context, op, method, path string, body, out any) error {
	bearer := func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+p.secretKey) }
	return p.api.do(ctx, op, method, path, bearer, body, out)
}

func (p *Paystack) CreateRecipient(ctx context.Context, bankCode, accountNumber, name string) (Recipient, error) {
	const op = "create_recipient"
	if name == "" {
		name = "Customer"
	}
	payload := map[string]any{
		"type":           "nuban",
		"name":           name,
		"account_number": accountNumber,
		"bank_code":      bankCode,
		"currency":       paystackCurrency,
	}
	var resp paystackEnvelope[struct {
		RecipientCode string `json:"recipient_code"`
	}]
	if err := p.call(ctx, op, http.MethodPost, "/transferrecipient", payload, &resp); err != nil {
		return Recipient{}, err
	}
	if err := resp.check(op); err != nil {
		return Recipient{}, err
	}
	if err := requireField(paystackName, op, "recipient_code", resp.Data.RecipientCode); err != nil {
		return Recipient{}, err
	}
	return Recipient{BankCode: bankCode, AccountNumber: accountNumber, Name: name, Code: resp.Data.RecipientCode}, nil
}

type paystackTransfer struct {
	Reference    string `json:"reference"`
	TransferCode string `json:"transfer_code"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
}

func (t paystackTransfer) normalise() Disbursement {
	return Disbursement{
		Status:            paystackTransferStatus(t.Status),
		Reference:         t.Reference,
		ProviderReference: t.TransferCode,
		Amount:            fromMinorUnits(t.Amount),
	}
}

func (p *Paystack) Disburse(ctx context.Context, req DisburseRequest) (Disbursement, error) {
	const op = "disburse"
	if req.Recipient.Code == "" {
		return Disbursement{}, &Error{Provider: paystackName, Op: op, Message: "recipient code is required"}
	}
	payload := map[string]any{
		"source":    "balance",
		"amount":    toMinorUnits(req.Amount),
		"recipient": req.Recipient.Code,
		"reason":    req.Narration,
		"reference": req.Reference,
	}
	var resp paystackEnvelope[paystackTransfer]
	if err := p.call(ctx, op, http.MethodPost, "/transfer", payload, &resp); err != nil {
		return Disbursement{}, err
	}
	if err := resp.check(op); err != nil {
		return Disbursement{}, err
	}
	out := resp.Data.normalise()
	if out.Reference == "" {
		out.Reference = req.Reference
	}
	return out, nil
}

func (p *Paystack) VerifyTransfer(ctx context.Context, reference string) (Disbursement, error) {
	const op = "verify_transfer"
	var resp paystackEnvelope[paystackTransfer]
	if err := p.call(ctx, op, http.MethodGet, "/transfer/verify/"+url.PathEscape(reference), nil, &resp); err != nil {
		return Disbursement{}, err
	}
	if err := resp.check(op); err != nil {
		return Disbursement{}, err
	}
	out := resp.Data.normalise()
	if out.Reference == "" {
		out.Reference = reference
	}
	return out, nil
}

func (p *Paystack) ListBanks(ctx context.Context) ([]Bank, error) {
	var resp paystackEnvelope[[]Bank]
	if err := p.call(ctx, "list_banks", http.MethodGet, "/bank?currency="+paystackCurrency, nil, &resp); err != nil {
		return nil, err
	}
	if err := resp.check("list_banks"); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (p *Paystack) InitializeCheckout(ctx context.Context, email string, amount decimal.Decimal, reference string) (Checkout, error) {
	const op = "initialize_checkout"
	payload := map[string]any{
		"email":     email,
		"amount":    toMinorUnits(amount),
		"reference": reference,
		"currency":  paystackCurrency,
	}
	var resp paystackEnvelope[struct {
		AuthorizationURL string `json:"authorization_url"`
		Reference        string `json:"reference"`
	}]
	if err := p.call(ctx, op, http.MethodPost, "/transaction/initialize", payload, &resp); err != nil {
		return Checkout{}, err
	}
	if err := resp.check(op); err != nil {
		return Checkout{}, err
	}
	if err := requireField(paystackName, op, "authorization_url", resp.Data.AuthorizationURL); err != nil {
		return Checkout{}, err
	}
	ref := resp.Data.Reference
	if ref == "" {
		ref = reference
	}
	return Checkout{AuthorizationURL: resp.Data.AuthorizationURL, Reference: ref}, nil
}

func (p *Paystack) VerifyTransaction(ctx context.Context, reference string) (Payment, error) {
	const op = "verify_transaction"
	var resp paystackEnvelope[struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
	}]
	if err := p.call(ctx, op, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &resp); err != nil {
		return Payment{}, err
	}
	if err := resp.check(op); err != nil {
		return Payment{}, err
	}
	status := strings.ToUpper(resp.Data.Status)
	if status == "SUCCESS" {
		status = PaymentPaid
	}
	ref := resp.Data.Reference
	if ref == "" {
		ref = reference
	}
	return Payment{Status: status, Reference: ref, AmountPaid: fromMinorUnits(resp.Data.Amount)}, nil
}

func paystackTransferStatus(status string) string {
	switch strings.ToLower(status) {
	case "success":
		return StatusSuccess
	case "failed", "reversed", "abandoned", "rejected":
		return StatusFailed
	default:
		return StatusPending
	}
}
