package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paywave/paywave/internal/infra"
	"github.com/paywave/paywave/internal/logging"
)

// newPostgresLedger connects to PAYWAVE_TEST_DATABASE_URL and skips when it is unset.
func newPostgresLedger(t *testing.T) (*PostgresLedger, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("PAYWAVE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PAYWAVE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := infra.NewPostgresPool(ctx, dsn, "paywave-ledger-test")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := infra.Migrate(ctx, pool, logging.Discard()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewPostgresLedger(pool), pool
}

func createUser(t *testing.T, pool *pgxpool.Pool, balance string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := pool.Exec(context.Background(), `INSERT INTO users (id, name, email, password_hash, wallet_balance)
        VALUES ($1, 'Ledger Test', $2, 'x', $3::numeric)`, id, id+"@example.com", balance)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, id)
	})
	return id
}

func TestPostgresLedger_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	l, pool := newPostgresLedger(t)
	ctx := context.Background()
	user := createUser(t, pool, "1000")
	prefix := uuid.NewString()

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := l.Debit(ctx, Posting{UserID: user, Amount: amount("150"), Reference: fmt.Sprintf("%s-%d", prefix, i)})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 6 {
		t.Fatalf("expected 6 successful debits, got %d", successes)
	}
	balance, err := l.Balance(ctx, user)
	if err != nil || !balance.Equal(amount("100")) {
		t.Fatalf("expected remaining 100, got %s (%v)", balance, err)
	}
	history, _ := l.Transactions(ctx, user)
	if len(history) != 6 {
		t.Fatalf("failed debits must not leave transactions, got %d", len(history))
	}
}

func TestPostgresLedger_DuplicateReferenceIsNoop(t *testing.T) {
	l, pool := newPostgresLedger(t)
	ctx := context.Background()
	user := createUser(t, pool, "0")
	ref := "MNFY|" + uuid.NewString()

	if _, err := l.Credit(ctx, Posting{UserID: user, Amount: amount("1500"), Reference: ref}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	res, err := l.Credit(ctx, Posting{UserID: user, Amount: amount("1500"), Reference: ref})
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if !res.Balance.Equal(amount("1500")) || res.Transaction.Reference != ref {
		t.Fatalf("duplicate should return the stored transaction, got %+v", res)
	}
	if _, err := l.Debit(ctx, Posting{UserID: user, Amount: amount("1"), Reference: ref}); !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("debit with a used reference should be a duplicate, got %v", err)
	}
	if bal, _ := l.Balance(ctx, user); !bal.Equal(amount("1500")) {
		t.Fatalf("expected 1500, got %s", bal)
	}
}

func TestPostgresLedger_SettleReservationsAndDeposits(t *testing.T) {
	l, pool := newPostgresLedger(t)
	ctx := context.Background()
	user := createUser(t, pool, "5000")
	transferRef := "TRANSFER_" + uuid.NewString()
	depositRef := "DEP_" + uuid.NewString()

	if _, err := l.Debit(ctx, Posting{UserID: user, Amount: amount("2000"), Reference: transferRef, Status: StatusPending}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	res, err := l.Settle(ctx, transferRef, StatusFailed)
	if err != nil || !res.Balance.Equal(amount("5000")) {
		t.Fatalf("failed transfer should refund, got %+v (%v)", res, err)
	}
	if _, err := l.Settle(ctx, transferRef, StatusSuccess); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected already settled, got %v", err)
	}

	res, err = l.Credit(ctx, Posting{UserID: user, Amount: amount("250.50"), Reference: depositRef, Status: StatusPending})
	if err != nil || !res.Balance.Equal(amount("5000")) {
		t.Fatalf("pending deposit must not move money, got %+v (%v)", res, err)
	}
	res, err = l.Settle(ctx, depositRef, StatusSuccess)
	if err != nil || !res.Balance.Equal(amount("5250.50")) {
		t.Fatalf("settled deposit should credit, got %+v (%v)", res, err)
	}
}

func TestPostgresLedger_RejectsSubKoboAmounts(t *testing.T) {
	l, pool := newPostgresLedger(t)
	user := createUser(t, pool, "10")

	if _, err := l.Credit(context.Background(), Posting{UserID: user, Amount: amount("0.001"), Reference: uuid.NewString()}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}
