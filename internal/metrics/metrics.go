package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the service's Prometheus collectors. A nil *Metrics is valid and
// records nothing, so packages can take one unconditionally.
type Metrics struct {
	ledgerPostings  *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	gatewayRequests *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
}

// New registers the collectors with reg. Tests pass prometheus.NewRegistry() to keep
// registrations isolated.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ledgerPostings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_ledger_postings_total",
				Help: "Ledger postings by operation and result",
			},
			[]string{"operation", "result"},
		),
		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_webhook_events_total",
				Help: "Webhook events by provider, event type and outcome",
			},
			[]string{"provider", "event", "outcome"},
		),
		gatewayRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_gateway_requests_total",
				Help: "Outbound payment gateway calls",
			},
			[]string{"provider", "operation", "result"},
		),
		gatewayDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wallet_gateway_request_duration_seconds",
				Help:    "Latency of outbound payment gateway calls",
				Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
			},
			[]string{"provider", "operation"},
		),
	}
}

func (m *Metrics) LedgerPosting(operation string, err error) {
	if m == nil {
		return
	}
	m.ledgerPostings.WithLabelValues(operation, result(err)).Inc()
}

func (m *Metrics) WebhookEvent(provider, event, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(provider, event, outcome).Inc()
}

// GatewayRequest records one outbound call started at start.
func (m *Metrics) GatewayRequest(provider, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(provider, operation, result(err)).Inc()
	m.gatewayDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
