package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/paywave/paywave/internal/auth"
)

// JWTAuth validates bearer access tokens against the current token version and
// exposes the caller through the user_id and is_admin locals.
func JWTAuth(svc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		user, err := svc.Authenticate(c.UserContext(), strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			if errors.Is(err, auth.ErrTokenRevoked) {
				return fiber.NewError(http.StatusUnauthorized, "token invalidated")
			}
			if errors.Is(err, auth.ErrInvalidToken) {
				return fiber.NewError(http.StatusUnauthorized, "invalid token")
			}
			return err
		}

		c.Locals("user_id", user.ID)
		c.Locals("is_admin", user.IsAdmin)
		c.Locals("token_version", user.TokenVersion)
		return c.Next()
	}
}

// AdminOnly rejects callers without the admin flag. It must run after JWTAuth.
func AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if admin, _ := c.Locals("is_admin").(bool); !admin {
			return fiber.NewError(http.StatusForbidden, "admin privileges required")
		}
		return c.Next()
	}
}
