package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const foreignKeyViolation = "23503"

// Numerics travel as text so decimal values never pass through float64.
const transactionColumns = `id::text, user_id::text, kind, amount::text, status, reference, provider,
        method, counterparty_bank, counterparty_account, narration, created_at, updated_at`

// PostgresLedger keeps wallet balances on the users row and the transaction history
// in the transactions table. Each operation runs in a single database transaction.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureAccount verifies the wallet row exists. Balances start at zero with the user.
func (l *PostgresLedger) EnsureAccount(ctx context.Context, userID string) error {
	var exists bool
	if err := l.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrAccountNotFound
	}
	return nil
}

// Balance returns the current wallet balance of the user.
func (l *PostgresLedger) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var raw string
	if err := l.db.QueryRow(ctx, `SELECT wallet_balance::text FROM users WHERE id = $1`, userID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrAccountNotFound
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

// Credit adds the posting amount to the wallet and records the transaction. A pending
// credit is only recorded.
func (l *PostgresLedger) Credit(ctx context.Context, p Posting) (Result, error) {
	p = p.withKind(KindDeposit)
	if err := p.validate(); err != nil {
		return Result{}, err
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	txn, inserted, err := insertTransaction(ctx, tx, p, p.status())
	if err != nil {
		return Result{}, err
	}
	if !inserted {
		return duplicate(ctx, tx, p.Reference)
	}
	if txn.Status == StatusPending {
		balance, err := balanceForUser(ctx, tx, p.UserID)
		if err != nil {
			return Result{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return Result{}, err
		}
		return Result{Transaction: txn, Balance: balance}, nil
	}

	var raw string
	err = tx.QueryRow(ctx, `UPDATE users SET wallet_balance = wallet_balance + $1::numeric
        WHERE id = $2 RETURNING wallet_balance::text`, p.Amount.String(), p.UserID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Result{}, ErrAccountNotFound
		}
		return Result{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, err
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return Result{}, err
	}
	return Result{Transaction: txn, Balance: balance}, nil
}

// Debit removes the posting amount from the wallet. The conditional update keeps the
// balance non-negative under concurrent debits.
func (l *PostgresLedger) Debit(ctx context.Context, p Posting) (Result, error) {
	p = p.withKind(KindTransfer)
	if err := p.validate(); err != nil {
		return Result{}, err
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	txn, inserted, err := insertTransaction(ctx, tx, p, p.status())
	if err != nil {
		return Result{}, err
	}
	if !inserted {
		return duplicate(ctx, tx, p.Reference)
	}

	var raw string
	err = tx.QueryRow(ctx, `UPDATE users SET wallet_balance = wallet_balance - $1::numeric
        WHERE id = $2 AND wallet_balance >= $1::numeric RETURNING wallet_balance::text`,
		p.Amount.String(), p.UserID).Scan(&raw)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Result{}, err
		}
		current, balErr := balanceForUser(ctx, tx, p.UserID)
		if balErr != nil {
			return Result{}, balErr
		}
		return Result{Balance: current}, ErrInsufficientFunds
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, err
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return Result{}, err
	}
	return Result{Transaction: txn, Balance: balance}, nil
}

// Settle resolves a pending transaction. A failed debit refunds the reserved amount
// and a successful credit adds the deposit, in the same database transaction.
func (l *PostgresLedger) Settle(ctx context.Context, reference, status string) (Result, error) {
	if !validSettlement(status) {
		return Result{}, ErrInvalidStatus
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	txn, err := scanTransaction(tx.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE reference = $1 FOR UPDATE`, reference))
	if err != nil {
		return Result{}, err
	}
	if txn.Status != StatusPending {
		balance, balErr := balanceForUser(ctx, tx, txn.UserID)
		if balErr != nil {
			return Result{}, balErr
		}
		return Result{Transaction: txn, Balance: balance}, ErrAlreadySettled
	}

	if credits(txn) == (status == StatusSuccess) {
		if _, err := tx.Exec(ctx, `UPDATE users SET wallet_balance = wallet_balance + $1::numeric WHERE id = $2`,
			txn.Amount.String(), txn.UserID); err != nil {
			return Result{}, err
		}
	}

	txn, err = scanTransaction(tx.QueryRow(ctx,
		`UPDATE transactions SET status = $1, updated_at = NOW() WHERE reference = $2 RETURNING `+transactionColumns,
		status, reference))
	if err != nil {
		return Result{}, err
	}
	balance, err := balanceForUser(ctx, tx, txn.UserID)
	if err != nil {
		return Result{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, err
	}
	return Result{Transaction: txn, Balance: balance}, nil
}

func (l *PostgresLedger) FindByReference(ctx context.Context, reference string) (Transaction, error) {
	return scanTransaction(l.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference))
}

// Transactions lists the user's history, newest first.
func (l *PostgresLedger) Transactions(ctx context.Context, userID string) ([]Transaction, error) {
	if err := l.EnsureAccount(ctx, userID); err != nil {
		return nil, err
	}
	rows, err := l.db.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// Pending lists pending transactions of kind created before olderThan, oldest first.
func (l *PostgresLedger) Pending(ctx context.Context, kind string, olderThan time.Time) ([]Transaction, error) {
	rows, err := l.db.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE status = $1 AND kind = $2 AND created_at < $3 ORDER BY created_at`,
		StatusPending, kind, olderThan)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// insertTransaction claims the reference. inserted is false when another posting
// already owns it.
func insertTransaction(ctx context.Context, tx pgx.Tx, p Posting, status string) (Transaction, bool, error) {
	const query = `
        INSERT INTO transactions (id, user_id, kind, amount, status, reference, provider, method,
            counterparty_bank, counterparty_account, narration)
        VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (reference) DO NOTHING
        RETURNING ` + transactionColumns

	txn, err := scanTransaction(tx.QueryRow(ctx, query, uuid.New(), p.UserID, p.Kind, p.Amount.String(), status,
		p.Reference, p.Provider, p.Method, p.CounterpartyBank, p.CounterpartyAccount, p.Narration))
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return Transaction{}, false, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return Transaction{}, false, ErrAccountNotFound
		}
		return Transaction{}, false, err
	}
	return txn, true, nil
}

func duplicate(ctx context.Context, tx pgx.Tx, reference string) (Result, error) {
	existing, err := scanTransaction(tx.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference))
	if err != nil {
		return Result{}, err
	}
	balance, err := balanceForUser(ctx, tx, existing.UserID)
	if err != nil {
		return Result{}, err
	}
	return Result{Transaction: existing, Balance: balance}, ErrDuplicateTransaction
}

func balanceForUser(ctx context.Context, tx pgx.Tx, userID string) (decimal.Decimal, error) {
	var raw string
	if err := tx.QueryRow(ctx, `SELECT wallet_balance::text FROM users WHERE id = $1`, userID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrAccountNotFound
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		txn    Transaction
		amount string
	)
	err := row.Scan(&txn.ID, &txn.UserID, &txn.Kind, &amount, &txn.Status, &txn.Reference, &txn.Provider,
		&txn.Method, &txn.CounterpartyBank, &txn.CounterpartyAccount, &txn.Narration, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	txn.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse amount for %s: %w", txn.Reference, err)
	}
	return txn, nil
}

func collectTransactions(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}
