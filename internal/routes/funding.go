package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/paywave/paywave/internal/funding"
)

// RegisterFundingRoutes wires checkout deposit endpoints.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler) {
	r.Post("/deposits/checkout", h.Checkout)
	r.Post("/deposits/:reference/verify", h.Verify)
}
