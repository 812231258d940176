package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/paywave/paywave/internal/transfer"
	"github.com/paywave/paywave/internal/webhook"
)

// RegisterTransferRoutes wires outbound transfers. Creation is guarded by the
// idempotency middleware when one is given.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler, idempotency fiber.Handler) {
	if idempotency != nil {
		r.Post("/transfers", idempotency, h.Create)
	} else {
		r.Post("/transfers", h.Create)
	}
	r.Get("/transfers/:reference/verify", h.Verify)
}

// RegisterWebhookRoutes wires provider callbacks. They authenticate by signature,
// not by token.
func RegisterWebhookRoutes(r fiber.Router, h *webhook.Handler) {
	r.Post("/webhooks/:provider", h.Receive)
}
