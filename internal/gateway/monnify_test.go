package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func newMonnifyServer(t *testing.T, logins *int32, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(logins, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "api-key" || pass != "secret" {
			writeJSON(t, w, http.StatusUnauthorized, map[string]any{"requestSuccessful": false, "responseMessage": "bad credentials"})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"requestSuccessful": true,
			"responseBody":      map[string]any{"accessToken": "tok-1", "expiresIn": 3600},
		})
	})
	for path, h := range routes {
		mux.HandleFunc(path, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func requireBearer(t *testing.T, r *http.Request) {
	t.Helper()
	assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
}

func TestMonnifyReservedAccountAndTokenCache(t *testing.T) {
	var logins int32
	srv := newMonnifyServer(t, &logins, map[string]http.HandlerFunc{
		"/api/v2/bank-transfer/reserved-accounts": func(w http.ResponseWriter, r *http.Request) {
			requireBearer(t, r)
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "user-1", body["accountReference"])
			assert.Equal(t, "C123", body["contractCode"])
			assert.Equal(t, false, body["getAllAvailableBanks"])
			assert.Equal(t, []any{"035"}, body["preferredBanks"])
			writeJSON(t, w, http.StatusOK, map[string]any{
				"requestSuccessful": true,
				"responseBody": map[string]any{
					"accounts": []map[string]any{{"accountNumber": "5000000001", "bankName": "Wema bank"}},
				},
			})
		},
		"/api/v1/banks": func(w http.ResponseWriter, r *http.Request) {
			requireBearer(t, r)
			writeJSON(t, w, http.StatusOK, map[string]any{
				"requestSuccessful": true,
				"responseBody":      []map[string]any{{"name": "Access Bank", "code": "044"}},
			})
		},
	})

	m := NewMonnify(MonnifyConfig{BaseURL: srv.URL, APIKey: "api-key", SecretKey: "secret", ContractCode: "C123"})
	ctx := context.Background()

	account, err := m.CreateReservedAccount(ctx, ReservedAccountRequest{Reference: "user-1", Name: "Ada", Email: "ada@example.com", BVN: "22222222222"})
	require.NoError(t, err)
	assert.Equal(t, "5000000001", account.AccountNumber)
	assert.Equal(t, "Wema bank", account.BankName)

	banks, err := m.ListBanks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Bank{{Name: "Access Bank", Code: "044"}}, banks)

	assert.Equal(t, int32(1), atomic.LoadInt32(&logins), "token should be cached between calls")
}

func TestMonnifyDisburseNormalisesStatus(t *testing.T) {
	var logins int32
	srv := newMonnifyServer(t, &logins, map[string]http.HandlerFunc{
		"/api/v2/disbursements/single": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "WALLET-1", body["sourceAccountNumber"])
			assert.Equal(t, 2000.5, body["amount"])
			writeJSON(t, w, http.StatusOK, map[string]any{
				"requestSuccessful": true,
				"responseBody":      map[string]any{"amount": 2000.5, "reference": body["reference"], "status": "SUCCESS"},
			})
		},
		"/api/v2/disbursements/single/summary": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "TRANSFER_1", r.URL.Query().Get("reference"))
			writeJSON(t, w, http.StatusOK, map[string]any{
				"requestSuccessful": true,
				"responseBody":      map[string]any{"reference": "TRANSFER_1", "status": "PENDING_AUTHORIZATION"},
			})
		},
	})

	m := NewMonnify(MonnifyConfig{BaseURL: srv.URL, APIKey: "api-key", SecretKey: "secret", WalletAccount: "WALLET-1"})
	ctx := context.Background()

	out, err := m.Disburse(ctx, DisburseRequest{
		Amount:    decimal.RequireFromString("2000.50"),
		Reference: "TRANSFER_1",
		Recipient: Recipient{BankCode: "058", AccountNumber: "0123456789"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, out.Status)
	assert.True(t, out.Amount.Equal(decimal.RequireFromString("2000.5")))

	verified, err := m.VerifyTransfer(ctx, "TRANSFER_1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, verified.Status)
}

func TestMonnifyUpstreamErrorsBecomeGatewayErrors(t *testing.T) {
	var logins int32
	srv := newMonnifyServer(t, &logins, map[string]http.HandlerFunc{
		"/api/v2/disbursements/single": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusBadRequest, map[string]any{"requestSuccessful": false, "responseMessage": "Insufficient balance"})
		},
	})

	m := NewMonnify(MonnifyConfig{BaseURL: srv.URL, APIKey: "api-key", SecretKey: "secret"})
	_, err := m.Disburse(context.Background(), DisburseRequest{Amount: decimal.NewFromInt(1), Reference: "r"})

	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "monnify", gwErr.Provider)
	assert.Equal(t, "disburse", gwErr.Op)
	assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
	assert.Equal(t, "Insufficient balance", gwErr.Message)
}

func TestMonnifyLoginFailure(t *testing.T) {
	var logins int32
	srv := newMonnifyServer(t, &logins, nil)

	m := NewMonnify(MonnifyConfig{BaseURL: srv.URL, APIKey: "wrong", SecretKey: "creds"})
	_, err := m.ListBanks(context.Background())

	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "login", gwErr.Op)
	assert.Equal(t, http.StatusUnauthorized, gwErr.StatusCode)
}

func TestMonnifyVerifyTransactionAcceptsStringAmounts(t *testing.T) {
	var logins int32
	srv := newMonnifyServer(t, &logins, map[string]http.HandlerFunc{
		"/api/v2/transactions/": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusOK, map[string]any{
				"requestSuccessful": true,
				"responseBody": map[string]any{
					"paymentStatus":        "PAID",
					"amountPaid":           "1500.00",
					"transactionReference": "MNFY|20240101|000001",
					"accountNumber":        "5000000001",
				},
			})
		},
	})

	m := NewMonnify(MonnifyConfig{BaseURL: srv.URL, APIKey: "api-key", SecretKey: "secret"})
	p, err := m.VerifyTransaction(context.Background(), "MNFY|20240101|000001")
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, p.Status)
	assert.True(t, p.AmountPaid.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, "5000000001", p.AccountNumber)
}

func TestTokenSourceRenewsNearExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fetches := 0
	src := &tokenSource{
		now: func() time.Time { return now },
		fetch: func(context.Context) (string, time.Duration, error) {
			fetches++
			return "tok", 5 * time.Minute, nil
		},
	}
	ctx := context.Background()

	_, err := src.Token(ctx)
	require.NoError(t, err)
	_, _ = src.Token(ctx)
	assert.Equal(t, 1, fetches)

	now = now.Add(4*time.Minute + 30*time.Second)
	_, _ = src.Token(ctx)
	assert.Equal(t, 2, fetches, "token inside the skew window should be renewed")
}
