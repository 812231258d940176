package transfer

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paywave/paywave/internal/gateway"
	"github.com/paywave/paywave/internal/identity"
	"github.com/paywave/paywave/internal/ledger"
	"github.com/paywave/paywave/internal/logging"
	"github.com/paywave/paywave/internal/notification"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (n *recordingNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.messages))
	for _, m := range n.messages {
		out = append(out, m.Kind)
	}
	return out
}

type fixture struct {
	svc      *Service
	led      ledger.Ledger
	gw       *gateway.Static
	notifier *recordingNotifier
	userID   string
}

func newFixture(t *testing.T, balance int64) fixture {
	t.Helper()
	ctx := context.Background()
	users := identity.NewMemoryRepository()
	require.NoError(t, users.Create(ctx, identity.User{ID: "user-1", Email: "ada@example.com"}))
	require.NoError(t, users.SetAccount(ctx, "user-1", "5000000001", "Wema Bank"))

	led := ledger.NewInMemory()
	ledger.SeedBalance(led, "user-1", decimal.NewFromInt(balance))

	gw := gateway.NewStatic("monnify")
	reg, err := gateway.NewRegistry("monnify", gw)
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	svc := NewService(reg, led, users, notifier, time.Minute, logging.Discard())
	return fixture{svc: svc, led: led, gw: gw, notifier: notifier, userID: "user-1"}
}

func (f fixture) request(amount int64) Request {
	return Request{UserID: f.userID, Amount: decimal.NewFromInt(amount), BankCode: "058", AccountNumber: "0123456789", AccountName: "Bola"}
}

func (f fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	b, err := f.led.Balance(context.Background(), f.userID)
	require.NoError(t, err)
	return b
}

func TestTransferDebitsSenderOnSuccess(t *testing.T) {
	f := newFixture(t, 5000)

	res, err := f.svc.Transfer(context.Background(), f.request(2000))
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusSuccess, res.Status)
	assert.True(t, strings.HasPrefix(res.Reference, referencePrefix))
	assert.True(t, res.Balance.Equal(decimal.NewFromInt(3000)), "balance %s", res.Balance)
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(3000)))
	assert.Equal(t, []string{notification.KindTransferCompleted}, f.notifier.kinds())

	history, err := f.led.Transactions(context.Background(), f.userID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "monnify", history[0].Provider)
	assert.Equal(t, "0123456789", history[0].CounterpartyAccount)
}

func TestTransferInsufficientFundsNeverReachesProvider(t *testing.T) {
	f := newFixture(t, 100)
	f.gw.FailOn("disburse", errors.New("must not be called"))

	_, err := f.svc.Transfer(context.Background(), f.request(2000))
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(100)))
	assert.Empty(t, f.notifier.kinds())
}

func TestTransferRefundsWhenDisbursementFails(t *testing.T) {
	f := newFixture(t, 5000)
	f.gw.FailOn("disburse", errors.New("upstream timeout"))

	res, err := f.svc.Transfer(context.Background(), f.request(2000))
	var gwErr *gateway.Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, ledger.StatusFailed, res.Status)
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, []string{notification.KindTransferFailed}, f.notifier.kinds())
}

func TestTransferRefundsWhenProviderReportsFailed(t *testing.T) {
	f := newFixture(t, 5000)
	f.gw.SetDisburseStatus(gateway.StatusFailed)

	_, err := f.svc.Transfer(context.Background(), f.request(2000))
	var gwErr *gateway.Error
	require.ErrorAs(t, err, &gwErr)
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(5000)))
}

func TestTransferRecipientFailureTouchesNoFunds(t *testing.T) {
	f := newFixture(t, 5000)
	f.gw.FailOn("create_recipient", errors.New("invalid account"))

	_, err := f.svc.Transfer(context.Background(), f.request(2000))
	var gwErr *gateway.Error
	require.ErrorAs(t, err, &gwErr)
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(5000)))

	history, err := f.led.Transactions(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestTransferPendingThenVerify(t *testing.T) {
	f := newFixture(t, 5000)
	f.gw.SetDisburseStatus(gateway.StatusPending)
	ctx := context.Background()

	res, err := f.svc.Transfer(ctx, f.request(2000))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, res.Status)
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(3000)), "pending transfer reserves funds")

	still, err := f.svc.Verify(ctx, f.userID, res.Reference)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, still.Status)

	f.gw.SetTransferStatus(res.Reference, gateway.StatusFailed)
	verified, err := f.svc.Verify(ctx, f.userID, res.Reference)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, verified.Status)
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(5000)))

	_, err = f.svc.Verify(ctx, "someone-else", res.Reference)
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestTransferValidation(t *testing.T) {
	f := newFixture(t, 5000)
	ctx := context.Background()

	_, err := f.svc.Transfer(ctx, f.request(0))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	req := f.request(100)
	req.BankCode = ""
	_, err = f.svc.Transfer(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTransferRequiresVirtualAccount(t *testing.T) {
	f := newFixture(t, 5000)
	users := identity.NewMemoryRepository()
	require.NoError(t, users.Create(context.Background(), identity.User{ID: "user-2", Email: "b@example.com"}))
	f.svc.users = users

	req := f.request(100)
	req.UserID = "user-2"
	_, err := f.svc.Transfer(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoVirtualAccount)
}

func TestTransferDuplicateReference(t *testing.T) {
	f := newFixture(t, 5000)
	ctx := context.Background()
	req := f.request(1000)
	req.Reference = "client-ref-1"

	_, err := f.svc.Transfer(ctx, req)
	require.NoError(t, err)
	_, err = f.svc.Transfer(ctx, req)
	assert.ErrorIs(t, err, ledger.ErrDuplicateTransaction)
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(4000)))
}

func TestReconcilePendingSettlesStaleTransfers(t *testing.T) {
	f := newFixture(t, 5000)
	f.gw.SetDisburseStatus(gateway.StatusPending)
	ctx := context.Background()

	first, err := f.svc.Transfer(ctx, f.request(1000))
	require.NoError(t, err)
	second, err := f.svc.Transfer(ctx, f.request(500))
	require.NoError(t, err)

	f.gw.SetTransferStatus(first.Reference, gateway.StatusSuccess)
	f.svc.now = func() time.Time { return time.Now().Add(time.Hour) }

	summary, err := f.svc.ReconcilePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileSummary{Checked: 2, Settled: 1}, summary)

	tx, err := f.led.FindByReference(ctx, first.Reference)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSuccess, tx.Status)
	tx, err = f.led.FindByReference(ctx, second.Reference)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, tx.Status)
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(3500)))
}

func TestReconcilePendingIgnoresFreshTransfers(t *testing.T) {
	f := newFixture(t, 5000)
	f.gw.SetDisburseStatus(gateway.StatusPending)

	_, err := f.svc.Transfer(context.Background(), f.request(1000))
	require.NoError(t, err)

	summary, err := f.svc.ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Checked)
}

func TestSweeperRunAndInvalidSchedule(t *testing.T) {
	f := newFixture(t, 5000)
	f.gw.SetDisburseStatus(gateway.StatusPending)
	res, err := f.svc.Transfer(context.Background(), f.request(1000))
	require.NoError(t, err)
	f.gw.SetTransferStatus(res.Reference, gateway.StatusSuccess)
	f.svc.now = func() time.Time { return time.Now().Add(time.Hour) }

	NewSweeper(f.svc, "@every 1m", logging.Discard()).Run()
	tx, err := f.led.FindByReference(context.Background(), res.Reference)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSuccess, tx.Status)

	assert.Error(t, NewSweeper(f.svc, "not a schedule", logging.Discard()).Start())
}

func TestHandlerCreateAndBanks(t *testing.T) {
	f := newFixture(t, 5000)
	h := NewHandler(f.svc)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", f.userID)
		return c.Next()
	})
	app.Post("/transfers", h.Create)
	app.Get("/banks", h.Banks)

	body := `{"amount":"2000","bank_code":"058","account_number":"0123456789","account_name":"Bola"}`
	req := httptest.NewRequest(fiber.MethodPost, "/transfers", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(3000)))

	req = httptest.NewRequest(fiber.MethodPost, "/transfers", strings.NewReader(`{"amount":9000,"bank_code":"058","account_number":"0123456789"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/banks?provider=paystack", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/banks", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
