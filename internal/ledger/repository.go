package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound indicates a missing movement.
var ErrNotFound = errors.New("ledger: movement not found")

// ErrDuplicateCommission indicates the partial unique index rejected a second
// completed referral_income row for the same (referrer, quotation).
var ErrDuplicateCommission = errors.New("ledger: commission already posted")

const uniqueViolation = "23505"

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries provides movement persistence.
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

const movementColumns = `id, user_id, quotation_id, referred_id, type, state, amount, description, reference, created_at`

func scanMovement(row pgx.Row) (*Movement, error) {
	var m Movement
	err := row.Scan(&m.ID, &m.UserID, &m.QuotationID, &m.ReferredID,
		&m.Type, &m.State, &m.Amount, &m.Description, &m.Reference, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Insert persists a movement and returns its id. A completed referral_income
// row violating the commission uniqueness index maps to ErrDuplicateCommission;
// callers treat that as "already posted, skip".
func (q *Queries) Insert(ctx context.Context, m Movement) (int64, error) {
	if !ValidType(m.Type) {
		return 0, fmt.Errorf("ledger: invalid movement type %q", m.Type)
	}
	if !ValidState(m.State) {
		return 0, fmt.Errorf("ledger: invalid movement state %q", m.State)
	}
	if m.Reference == uuid.Nil {
		m.Reference = uuid.New()
	}

	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO movements (user_id, quotation_id, referred_id, type, state, amount, description, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id
	`, m.UserID, m.QuotationID, m.ReferredID, m.Type, m.State, m.Amount, m.Description, m.Reference).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, ErrDuplicateCommission
		}
		return 0, fmt.Errorf("ledger: insert movement: %w", err)
	}
	return id, nil
}

// Get fetches a movement by id.
func (q *Queries) Get(ctx context.Context, id int64) (*Movement, error) {
	m, err := scanMovement(q.db.QueryRow(ctx,
		`SELECT `+movementColumns+` FROM movements WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ledger: get movement: %w", err)
	}
	return m, nil
}

// FindCompletedCommission returns the completed referral_income row for the
// (referrer, quotation) pair, or nil when none exists.
func (q *Queries) FindCompletedCommission(ctx context.Context, referrerID, quotationID int64) (*Movement, error) {
	m, err := scanMovement(q.db.QueryRow(ctx, `
		SELECT `+movementColumns+` FROM movements
		WHERE user_id = $1 AND quotation_id = $2 AND type = $3 AND state = $4
		ORDER BY id DESC LIMIT 1
	`, referrerID, quotationID, TypeReferralIncome, StateCompleted))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: find commission: %w", err)
	}
	return m, nil
}

// LatestByQuotation returns the most recent movement of the given type and
// state for a quotation, or nil when none exists.
func (q *Queries) LatestByQuotation(ctx context.Context, quotationID int64, typ Type, state State) (*Movement, error) {
	m, err := scanMovement(q.db.QueryRow(ctx, `
		SELECT `+movementColumns+` FROM movements
		WHERE quotation_id = $1 AND type = $2 AND state = $3
		ORDER BY id DESC LIMIT 1
	`, quotationID, typ, state))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: latest by quotation: %w", err)
	}
	return m, nil
}

// SetState transitions a movement to the given lifecycle state.
func (q *Queries) SetState(ctx context.Context, id int64, state State) error {
	if !ValidState(state) {
		return fmt.Errorf("ledger: invalid movement state %q", state)
	}
	tag, err := q.db.Exec(ctx,
		`UPDATE movements SET state = $2 WHERE id = $1`, id, state)
	if err != nil {
		return fmt.Errorf("ledger: set state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a movement row. Used only when reversing a commission.
func (q *Queries) Delete(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM movements WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ledger: delete movement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByUser returns the user's movements, newest first.
func (q *Queries) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Movement, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.db.Query(ctx, `
		SELECT `+movementColumns+` FROM movements
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ledger: list by user: %w", err)
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.UserID, &m.QuotationID, &m.ReferredID,
			&m.Type, &m.State, &m.Amount, &m.Description, &m.Reference, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}
