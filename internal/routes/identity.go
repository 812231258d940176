package routes

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/paywave/paywave/internal/identity"
	"github.com/paywave/paywave/internal/ledger"
	"github.com/paywave/paywave/internal/middleware"
)

// RegisterIdentityRoutes wires registration and opens the ledger account of every
// new user.
func RegisterIdentityRoutes(r fiber.Router, ids *identity.Service, led ledger.Ledger, logger *slog.Logger) {
	r.Post("/auth/register", func(c *fiber.Ctx) error {
		var req struct {
			Name         string `json:"name"`
			Email        string `json:"email"`
			Password     string `json:"password"`
			Phone        string `json:"phone"`
			ProfileImage string `json:"profile_image"`
			BVN          string `json:"bvn"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		user, err := ids.Register(c.UserContext(), identity.RegisterInput{
			Name:         req.Name,
			Email:        req.Email,
			Password:     req.Password,
			Phone:        req.Phone,
			ProfileImage: req.ProfileImage,
			BVN:          req.BVN,
		})
		if err != nil {
			return identity.MapError(err)
		}
		if err := led.EnsureAccount(c.UserContext(), user.ID); err != nil {
			logger.Error("open ledger account", slog.String("user_id", user.ID), slog.Any("error", err))
			return fiber.NewError(http.StatusInternalServerError, "failed to open wallet")
		}
		logger.Info("identity.register completed",
			slog.String("user_id", user.ID),
			slog.String("account_number", user.AccountNumber),
			slog.Int("status", http.StatusCreated),
		)
		return c.Status(http.StatusCreated).JSON(fiber.Map{
			"message":        "User registered successfully",
			"user_id":        user.ID,
			"account_number": user.AccountNumber,
			"bank_name":      user.BankName,
		})
	})
}

// RegisterAdminRoutes wires admin-only lookups.
func RegisterAdminRoutes(r fiber.Router, h *identity.Handler) {
	admin := r.Group("/admin", middleware.AdminOnly())
	admin.Get("/users/:accountNumber", h.Lookup)
}
