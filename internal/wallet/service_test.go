package wallet

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/paywave/paywave/internal/identity"
	"github.com/paywave/paywave/internal/ledger"
)

func newTestService(t *testing.T) (*Service, ledger.Ledger) {
	t.Helper()
	ctx := context.Background()
	users := identity.NewMemoryRepository()
	for _, u := range []identity.User{
		{ID: "user-1", Email: "ada@example.com", AccountNumber: "5000000001", BankName: "Wema Bank"},
		{ID: "user-2", Email: "bola@example.com", AccountNumber: "5000000002", BankName: "Wema Bank"},
		{ID: "admin", Email: "ops@example.com", IsAdmin: true},
	} {
		if err := users.Create(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	led := ledger.NewInMemory()
	ledger.SeedBalance(led, "user-1", decimal.NewFromInt(2500))
	ledger.SeedBalance(led, "user-2", decimal.NewFromInt(40))
	return NewService(users, led), led
}

func TestBalanceForSelf(t *testing.T) {
	svc, _ := newTestService(t)

	balance, err := svc.Balance(context.Background(), Caller{UserID: "user-1"}, "")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Amount.Equal(decimal.NewFromInt(2500)) || balance.AccountNumber != "5000000001" {
		t.Fatalf("unexpected balance %+v", balance)
	}
}

func TestBalanceOfOtherAccountRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Balance(ctx, Caller{UserID: "user-1"}, "5000000002"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := svc.Balance(ctx, Caller{UserID: "user-1"}, "5000000001"); err != nil {
		t.Fatalf("own account number should be allowed: %v", err)
	}

	balance, err := svc.Balance(ctx, Caller{UserID: "admin", IsAdmin: true}, "5000000002")
	if err != nil {
		t.Fatalf("admin balance: %v", err)
	}
	if !balance.Amount.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected 40, got %s", balance.Amount)
	}

	if _, err := svc.Balance(ctx, Caller{UserID: "admin", IsAdmin: true}, "1111111111"); !errors.Is(err, identity.ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	svc, led := newTestService(t)
	ctx := context.Background()

	for _, ref := range []string{"DEP_1", "DEP_2"} {
		if _, err := led.Credit(ctx, ledger.Posting{UserID: "user-1", Amount: decimal.NewFromInt(10), Reference: ref}); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}
	entries, err := svc.History(ctx, Caller{UserID: "user-1"}, "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].CreatedAt.Before(entries[1].CreatedAt) {
		t.Fatalf("history should be newest first: %+v", entries)
	}
	if entries[0].Kind != ledger.KindDeposit {
		t.Fatalf("unexpected kind %q", entries[0].Kind)
	}
}

func TestHandlerForbidsForeignAccount(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHandler(svc)
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "user-1")
		c.Locals("is_admin", false)
		return c.Next()
	})
	app.Get("/wallet/balance", h.Balance)
	app.Get("/wallet/transactions", h.Transactions)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/wallet/balance?account_number=5000000002", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/wallet/transactions", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
