package funding

import "github.com/shopspring/decimal"

// CheckoutRequest captures the amount the user wants to deposit.
type CheckoutRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// CheckoutResponse points the client at the provider's payment page.
type CheckoutResponse struct {
	Reference        string          `json:"reference"`
	AuthorizationURL string          `json:"authorization_url"`
	Provider         string          `json:"provider"`
	Amount           decimal.Decimal `json:"amount"`
}

// DepositResponse represents the API response for a verified deposit.
type DepositResponse struct {
	TransactionID string          `json:"transaction_id"`
	Reference     string          `json:"reference"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	Provider      string          `json:"provider"`
}
