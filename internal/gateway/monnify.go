package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paywave/paywave/internal/metrics"
)

const (
	monnifyName     = "monnify"
	monnifyCurrency = "NGN"

	// defaultPreferredBank is Wema Bank. Reserved accounts are issued at one bank so a
	// user has exactly one account number to deposit into.
	defaultPreferredBank = "035"

	// tokenSkew renews the bearer token slightly before Monnify expires it.
	tokenSkew = 60 * time.Second
)

type MonnifyConfig struct {
	BaseURL       string
	APIKey        string
	SecretKey     string
	ContractCode  string
	WalletAccount string
	// PreferredBank is the bank code reserved accounts are issued at.
	PreferredBank string
	Timeout       time.Duration
	HTTPClient    *http.Client
	Metrics       *metrics.Metrics
}

// Monnify implements every gateway capability against the Monnify API.
type Monnify struct {
	api           apiClient
	contractCode  string
	walletAccount string
	preferredBank string
	tokens        *tokenSource
}

func NewMonnify(cfg MonnifyConfig) *Monnify {
	m := &Monnify{
		api:           newAPIClient(monnifyName, cfg.BaseURL, cfg.Timeout, cfg.HTTPClient, cfg.Metrics),
		contractCode:  cfg.ContractCode,
		walletAccount: cfg.WalletAccount,
		preferredBank: cfg.PreferredBank,
	}
	if m.preferredBank == "" {
		m.preferredBank = defaultPreferredBank
	}
	m.tokens = &tokenSource{
		now:   time.Now,
		fetch: func(ctx context.Context) (string, time.Duration, error) { return m.login(ctx, cfg.APIKey, cfg.SecretKey) },
	}
	return m
}

func (m *Monnify) Name() string { return monnifyName }

type monnifyEnvelope[T any] struct {
	RequestSuccessful bool   `json:"requestSuccessful"`
	ResponseMessage   string `json:"responseMessage"`
	ResponseCode      string `json:"responseCode"`
	ResponseBody      T      `json:"responseBody"`
}

func (e monnifyEnvelope[T]) check(op string) error {
	if !e.RequestSuccessful {
		return &Error{Provider: monnifyName, Op: op, Message: e.ResponseMessage}
	}
	return nil
}

func (m *Monnify) login(ctx context.Context, apiKey, secretKey string) (string, time.Duration, error) {
	var resp monnifyEnvelope[struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int64  `json:"expiresIn"`
	}]
	basic := func(r *http.Request) { r.SetBasicAuth(apiKey, secretKey) }
	if err := m.api.do(ctx, "login", http.MethodPost, "/api/v1/auth/login", basic, nil, &resp); err != nil {
		return "", 0, err
	}
	if err := resp.check("login"); err != nil {
		return "", 0, err
	}
	if err := requireField(monnifyName, "login", "accessToken", resp.ResponseBody.AccessToken); err != nil {
		return "", 0, err
	}
	return resp.ResponseBody.AccessToken, time.Duration(resp.ResponseBody.ExpiresIn) * time.Second, nil
}

// call performs an authenticated request, logging in first when the cached token is
// missing or about to expire.
func (m *Monnify) call(ctx context.Context, op, method, path string, body, out any) error {
	token, err := m.tokens.Token(ctx)
	if err != nil {
		return err
	}
	bearer := func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
	return m.api.do(ctx, op, method, path, bearer, body, out)
}

func (m *Monnify) CreateReservedAccount(ctx context.Context, req ReservedAccountRequest) (ReservedAccount, error) {
	const op = "create_reserved_account"
	payload := map[string]any{
		"accountReference":     req.Reference,
		"accountName":          req.Name,
		"customerName":         req.Name,
		"customerEmail":        req.Email,
		"bvn":                  req.BVN,
		"currencyCode":         monnifyCurrency,
		"contractCode":         m.contractCode,
		"getAllAvailableBanks": false,
		"preferredBanks":       []string{m.preferredBank},
	}
	var resp monnifyEnvelope[struct {
		AccountNumber string `json:"accountNumber"`
		BankName      string `json:"bankName"`
		Accounts      []struct {
			AccountNumber string `json:"accountNumber"`
			BankName      string `json:"bankName"`
		} `json:"accounts"`
	}]
	if err := m.call(ctx, op, http.MethodPost, "/api/v2/bank-transfer/reserved-accounts", payload, &resp); err != nil {
		return ReservedAccount{}, err
	}
	if err := resp.check(op); err != nil {
		return ReservedAccount{}, err
	}

	account := ReservedAccount{AccountNumber: resp.ResponseBody.AccountNumber, BankName: resp.ResponseBody.BankName}
	if len(resp.ResponseBody.Accounts) > 0 {
		account.AccountNumber = resp.ResponseBody.Accounts[0].AccountNumber
		account.BankName = resp.ResponseBody.Accounts[0].BankName
	}
	if err := requireField(monnifyName, op, "accountNumber", account.AccountNumber); err != nil {
		return ReservedAccount{}, err
	}
	return account, nil
}

// CreateRecipient needs no provider call: Monnify disburses straight to bank details.
func (m *Monnify) CreateRecipient(_ context.Context, bankCode, accountNumber, name string) (Recipient, error) {
	return Recipient{BankCode: bankCode, AccountNumber: accountNumber, Name: name}, nil
}

type monnifyDisbursement struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
}

func (d monnifyDisbursement) normalise() Disbursement {
	return Disbursement{
		Status:            monnifyStatus(d.Status),
		Reference:         d.Reference,
		ProviderReference: d.Reference,
		Amount:            d.Amount,
	}
}

func (m *Monnify) Disburse(ctx context.Context, req DisburseRequest) (Disbursement, error) {
	const op = "disburse"
	source := m.walletAccount
	if source == "" {
		source = req.SourceAccount
	}
	payload := map[string]any{
		"amount":                   json.Number(req.Amount.String()),
		"reference":                req.Reference,
		"narration":                req.Narration,
		"destinationBankCode":      req.Recipient.BankCode,
		"destinationAccountNumber": req.Recipient.AccountNumber,
		"currency":                 monnifyCurrency,
		"sourceAccountNumber":      source,
	}
	var resp monnifyEnvelope[monnifyDisbursement]
	if err := m.call(ctx, op, http.MethodPost, "/api/v2/disbursements/single", payload, &resp); err != nil {
		return Disbursement{}, err
	}
	if err := resp.check(op); err != nil {
		return Disbursement{}, err
	}
	out := resp.ResponseBody.normalise()
	if out.Reference == "" {
		out.Reference = req.Reference
	}
	return out, nil
}

func (m *Monnify) VerifyTransfer(ctx context.Context, reference string) (Disbursement, error) {
	const op = "verify_transfer"
	var resp monnifyEnvelope[monnifyDisbursement]
	path := "/api/v2/disbursements/single/summary?reference=" + url.QueryEscape(reference)
	if err := m.call(ctx, op, http.MethodGet, path, nil, &resp); err != nil {
		return Disbursement{}, err
	}
	if err := resp.check(op); err != nil {
		return Disbursement{}, err
	}
	out := resp.ResponseBody.normalise()
	if out.Reference == "" {
		out.Reference = reference
	}
	return out, nil
}

func (m *Monnify) ListBanks(ctx context.Context) ([]Bank, error) {
	var resp monnifyEnvelope[[]Bank]
	if err := m.call(ctx, "list_banks", http.MethodGet, "/api/v1/banks", nil, &resp); err != nil {
		return nil, err
	}
	if err := resp.check("list_banks"); err != nil {
		return nil, err
	}
	return resp.ResponseBody, nil
}

func (m *Monnify) VerifyTransaction(ctx context.Context, reference string) (Payment, error) {
	const op = "verify_transaction"
	var resp monnifyEnvelope[struct {
		PaymentStatus        string          `json:"paymentStatus"`
		AmountPaid           decimal.Decimal `json:"amountPaid"`
		TransactionReference string          `json:"transactionReference"`
		AccountNumber        string          `json:"accountNumber"`
	}]
	if err := m.call(ctx, op, http.MethodGet, "/api/v2/transactions/"+url.PathEscape(reference), nil, &resp); err != nil {
		return Payment{}, err
	}
	if err := resp.check(op); err != nil {
		return Payment{}, err
	}
	body := resp.ResponseBody
	ref := body.TransactionReference
	if ref == "" {
		ref = reference
	}
	return Payment{
		Status:        strings.ToUpper(body.PaymentStatus),
		Reference:     ref,
		AmountPaid:    body.AmountPaid,
		AccountNumber: body.AccountNumber,
	}, nil
}

func (m *Monnify) InitializeCheckout(ctx context.Context, email string, amount decimal.Decimal, reference string) (Checkout, error) {
	const op = "initialize_checkout"
	payload := map[string]any{
		"amount":             json.Number(amount.String()),
		"customerName":       email,
		"customerEmail":      email,
		"paymentReference":   reference,
		"paymentDescription": "Wallet funding",
		"currencyCode":       monnifyCurrency,
		"contractCode":       m.contractCode,
	}
	var resp monnifyEnvelope[struct {
		CheckoutURL      string `json:"checkoutUrl"`
		PaymentReference string `json:"paymentReference"`
	}]
	if err := m.call(ctx, op, http.MethodPost, "/api/v1/merchant/transactions/init-transaction", payload, &resp); err != nil {
		return Checkout{}, err
	}
	if err := resp.check(op); err != nil {
		return Checkout{}, err
	}
	if err := requireField(monnifyName, op, "checkoutUrl", resp.ResponseBody.CheckoutURL); err != nil {
		return Checkout{}, err
	}
	return Checkout{AuthorizationURL: resp.ResponseBody.CheckoutURL, Reference: reference}, nil
}

func monnifyStatus(status string) string {
	switch strings.ToUpper(status) {
	case "SUCCESS", "COMPLETED":
		return StatusSuccess
	case "FAILED", "REVERSED", "EXPIRED", "CANCELLED":
		return StatusFailed
	default:
		return StatusPending
	}
}

// tokenSource caches a bearer token and renews it lazily.
type tokenSource struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
	fetch     func(ctx context.Context) (string, time.Duration, error)
}

func (s *tokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.expired() {
		return s.token, nil
	}
	token, ttl, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	s.token = token
	s.expiresAt = s.now().Add(ttl)
	return s.token, nil
}

// expired must be called with s.mu held.
func (s *tokenSource) expired() bool {
	return s.token == "" || !s.now().Add(tokenSkew).Before(s.expiresAt)
}
