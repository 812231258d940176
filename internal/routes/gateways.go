package routes

import (
	"log/slog"

	"github.com/paywave/paywave/internal/config"
	"github.com/paywave/paywave/internal/gateway"
	"github.com/paywave/paywave/internal/metrics"
)

// buildGateways registers Monnify and Paystack. In development a provider without
// credentials is replaced by an in-process simulator.
func buildGateways(cfg config.Config, m *metrics.Metrics, logger *slog.Logger) (*gateway.Registry, error) {
	var gws []gateway.Gateway

	if cfg.MonnifyAPIKey == "" && cfg.IsDev() {
		logger.Warn("MONNIFY_API_KEY not set, using simulated monnify gateway")
		gws = append(gws, gateway.NewStatic("monnify"))
	} else {
		gws = append(gws, gateway.NewMonnify(gateway.MonnifyConfig{
			BaseURL:       cfg.MonnifyBaseURL,
			APIKey:        cfg.MonnifyAPIKey,
			SecretKey:     cfg.MonnifySecretKey,
			ContractCode:  cfg.MonnifyContractCode,
			WalletAccount: cfg.MonnifyWalletAccount,
			PreferredBank: cfg.MonnifyPreferredBank,
			Timeout:       cfg.GatewayTimeout,
			Metrics:       m,
		}))
	}

	if cfg.PaystackSecretKey == "" && cfg.IsDev() {
		logger.Warn("PAYSTACK_SECRET_KEY not set, using simulated paystack gateway")
		gws = append(gws, gateway.NewStatic("paystack"))
	} else {
		gws = append(gws, gateway.NewPaystack(gateway.PaystackConfig{
			BaseURL:   cfg.PaystackBaseURL,
			SecretKey: cfg.PaystackSecretKey,
			Timeout:   cfg.GatewayTimeout,
			Metrics:   m,
		}))
	}

	return gateway.NewRegistry(cfg.DefaultGateway, gws...)
}
