package middleware

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paywave/paywave/internal/auth"
	"github.com/paywave/paywave/internal/config"
	"github.com/paywave/paywave/internal/identity"
)

func TestLoginRateLimitPerEmail(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	app := fiber.New()
	app.Post("/login", LoginRateLimit(cache, 2), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	attempt := func(email string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(`{"email":"`+email+`"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, attempt("ada@example.com"))
	assert.Equal(t, fiber.StatusOK, attempt("ADA@example.com"))
	assert.Equal(t, fiber.StatusTooManyRequests, attempt("ada@example.com"))
	assert.Equal(t, fiber.StatusOK, attempt("bola@example.com"))

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, fiber.StatusOK, attempt("ada@example.com"))
}

func TestJWTAuthAndAdminOnly(t *testing.T) {
	repo := identity.NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, identity.User{ID: "user-1", Email: "user@example.com"}))
	require.NoError(t, repo.Create(ctx, identity.User{ID: "admin-1", Email: "admin@example.com", IsAdmin: true}))

	svc := auth.NewService(config.Config{JWTSecret: "s", RefreshSecret: "r", AccessTokenTTL: time.Hour, RefreshTokenTTL: time.Hour}, repo)
	userTokens, err := svc.Login(identity.User{ID: "user-1"})
	require.NoError(t, err)
	adminTokens, err := svc.Login(identity.User{ID: "admin-1", IsAdmin: true})
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/me", JWTAuth(svc), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("user_id").(string))
	})
	app.Get("/admin", JWTAuth(svc), AdminOnly(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	call := func(path, token string) int {
		req := httptest.NewRequest(fiber.MethodGet, path, nil)
		if token != "" {
			req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusUnauthorized, call("/me", ""))
	assert.Equal(t, fiber.StatusUnauthorized, call("/me", "garbage"))
	assert.Equal(t, fiber.StatusOK, call("/me", userTokens.AccessToken))
	assert.Equal(t, fiber.StatusForbidden, call("/admin", userTokens.AccessToken))
	assert.Equal(t, fiber.StatusOK, call("/admin", adminTokens.AccessToken))

	require.NoError(t, svc.Logout(ctx, "user-1"))
	assert.Equal(t, fiber.StatusUnauthorized, call("/me", userTokens.AccessToken))
}

func TestRequestIDEchoesOrGenerates(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(RequestIDFrom(c)) })

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-42")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "req-42", resp.Header.Get(requestIDHeader))

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}
