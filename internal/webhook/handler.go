package webhook

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/paywave/paywave/internal/logging"
	"github.com/paywave/paywave/internal/metrics"
)

// Handler receives provider webhooks on /webhooks/:provider.
type Handler struct {
	reconciler *Reconciler
	secrets    map[string]Secret
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewHandler accepts webhooks for every provider in secrets. Providers with an empty
// key are not registered.
func NewHandler(reconciler *Reconciler, secrets map[string]Secret, m *metrics.Metrics, logger *slog.Logger) *Handler {
	registered := make(map[string]Secret, len(secrets))
	for name, s := range secrets {
		if s.Key != "" {
			registered[strings.ToLower(name)] = s
		}
	}
	return &Handler{reconciler: reconciler, secrets: registered, metrics: m, logger: logging.Component(logger, "webhook")}
}

// Receive verifies the signature over the raw body before anything is parsed.
func (h *Handler) Receive(c *fiber.Ctx) error {
	provider := strings.ToLower(c.Params("provider"))
	secret, ok := h.secrets[provider]
	if !ok {
		return fiber.NewError(http.StatusNotFound, "unknown webhook provider")
	}

	body := c.Body()
	if !ValidSignature(secret.Key, body, c.Get(secret.Header)) {
		h.logger.Warn("webhook signature mismatch", slog.String("provider", provider), slog.String("ip", c.IP()))
		h.metrics.WebhookEvent(provider, "unknown", "rejected")
		return fiber.NewError(http.StatusUnauthorized, "invalid signature")
	}

	ev, err := Decode(provider, body)
	if err != nil {
		h.metrics.WebhookEvent(provider, "unknown", "rejected")
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	log := h.logger.With(slog.String("provider", provider), slog.String("event_type", ev.EventType), slog.String("reference", ev.TransactionReference))
	res, err := h.reconciler.Process(c.UserContext(), provider, ev)
	if err != nil {
		h.metrics.WebhookEvent(provider, eventLabel(ev.EventType), "error")
		if errors.Is(err, ErrBalanceUpdate) {
			log.Error("webhook processing failed", slog.Any("error", err))
			return fiber.NewError(http.StatusInternalServerError, ErrBalanceUpdate.Error())
		}
		log.Warn("webhook rejected", slog.Any("error", err))
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	h.metrics.WebhookEvent(provider, eventLabel(ev.EventType), res.Outcome)
	log.Info("webhook processed", slog.String("outcome", res.Outcome))
	return c.JSON(fiber.Map{"message": res.Message})
}

// eventLabel bounds the metric label set to known event types.
func eventLabel(eventType string) string {
	switch eventType {
	case EventSuccessfulTransaction, EventTransferSuccess, EventTransferFailed:
		return eventType
	default:
		return "other"
	}
}
