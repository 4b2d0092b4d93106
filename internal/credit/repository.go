package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so the same queries run
// standalone or inside a payment transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries provides credit account persistence.
type Queries struct {
	db DBTX
}

// New constructs Queries over a pool or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx rebinds the queries to a transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// GetBalance returns the user's current balance, zero when no account exists.
func (q *Queries) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := q.db.QueryRow(ctx,
		`SELECT balance FROM credit_accounts WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("credit: get balance: %w", err)
	}
	return balance, nil
}

// Add credits delta to the user's balance, creating the account on first use.
// The increment happens in one statement; there is no read-modify-write window.
func (q *Queries) Add(ctx context.Context, userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := q.db.QueryRow(ctx, `
		INSERT INTO credit_accounts (user_id, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET balance = credit_accounts.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING balance
	`, userID, delta).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("credit: add: %w", err)
	}
	return balance, nil
}

// Subtract removes up to amount from the balance, flooring at zero. Returns
// nil when the user has no credit account. The row is locked for the duration
// of the enclosing transaction.
func (q *Queries) Subtract(ctx context.Context, userID int64, amount decimal.Decimal) (*Deduction, error) {
	var d Deduction
	err := q.db.QueryRow(ctx, `
		WITH prev AS (
			SELECT user_id, balance FROM credit_accounts WHERE user_id = $1 FOR UPDATE
		)
		UPDATE credit_accounts c
		SET balance = GREATEST(prev.balance - $2, 0), updated_at = NOW()
		FROM prev
		WHERE c.user_id = prev.user_id
		RETURNING prev.balance, c.balance
	`, userID, amount).Scan(&d.Before, &d.After)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("credit: subtract: %w", err)
	}
	return &d, nil
}

// Reset zeroes the user's balance.
func (q *Queries) Reset(ctx context.Context, userID int64) error {
	_, err := q.db.Exec(ctx,
		`UPDATE credit_accounts SET balance = 0, updated_at = NOW() WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("credit: reset: %w", err)
	}
	return nil
}
