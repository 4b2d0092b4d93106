package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/servihogar/servihogar/internal/credit"
	"github.com/servihogar/servihogar/internal/ledger"
	"github.com/servihogar/servihogar/internal/platform/db"
	"github.com/servihogar/servihogar/internal/requests"
)

// PGRepository implements Repository over PostgreSQL.
type PGRepository struct {
	pool      *pgxpool.Pool
	conn      ledger.DBTX
	movements *ledger.Queries
	credits   *credit.Queries
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{
		pool:      pool,
		conn:      pool,
		movements: ledger.New(pool),
		credits:   credit.New(pool),
	}
}

// WithTx runs fn against a transactional copy of the repository.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		txRepo := &PGRepository{
			pool:      r.pool,
			conn:      tx,
			movements: r.movements.WithTx(tx),
			credits:   r.credits.WithTx(tx),
		}
		return fn(ctx, txRepo)
	})
}

const quotationColumns = `id, service_request_id, account_id, labor_amount, materials_amount,
	membership_discount, credit_used, receipt_number, state, created_at, updated_at`

// GetQuotation fetches a quotation by id.
func (r *PGRepository) GetQuotation(ctx context.Context, id int64) (*Quotation, error) {
	var q Quotation
	err := r.conn.QueryRow(ctx,
		`SELECT `+quotationColumns+` FROM quotations WHERE id = $1`, id).
		Scan(&q.ID, &q.ServiceRequestID, &q.AccountID, &q.LaborAmount, &q.MaterialsAmount,
			&q.MembershipDiscount, &q.CreditUsed, &q.ReceiptNumber, &q.State, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: quotation %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("payments: get quotation: %w", err)
	}
	return &q, nil
}

// GetServiceRequest fetches a service request by id.
func (r *PGRepository) GetServiceRequest(ctx context.Context, id int64) (*requests.ServiceRequest, error) {
	var sr requests.ServiceRequest
	err := r.conn.QueryRow(ctx, `
		SELECT id, client_id, technician_id, state, created_at, updated_at
		FROM service_requests WHERE id = $1
	`, id).Scan(&sr.ID, &sr.ClientID, &sr.TechnicianID, &sr.State, &sr.CreatedAt, &sr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: service request %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("payments: get service request: %w", err)
	}
	return &sr, nil
}

// MarkQuotationPaid transitions the quotation to paid with its payment fields.
func (r *PGRepository) MarkQuotationPaid(ctx context.Context, id int64, upd PaidUpdate) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE quotations
		SET state = $2, account_id = $3, receipt_number = $4,
		    membership_discount = $5, credit_used = $6, updated_at = NOW()
		WHERE id = $1
	`, id, QuotationPaid, upd.AccountID, upd.ReceiptNumber, upd.MembershipDiscount, upd.CreditUsed)
	if err != nil {
		return fmt.Errorf("payments: mark quotation paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation %d", ErrNotFound, id)
	}
	return nil
}

// MarkQuotationRejected transitions to rejected, clearing discount and credit.
func (r *PGRepository) MarkQuotationRejected(ctx context.Context, id int64) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE quotations
		SET state = $2, membership_discount = NULL, credit_used = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, QuotationRejected)
	if err != nil {
		return fmt.Errorf("payments: mark quotation rejected: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation %d", ErrNotFound, id)
	}
	return nil
}

// SetQuotationState writes a bare state transition.
func (r *PGRepository) SetQuotationState(ctx context.Context, id int64, state QuotationState) error {
	if !ValidQuotationState(state) {
		return fmt.Errorf("payments: invalid quotation state %q", state)
	}
	tag, err := r.conn.Exec(ctx,
		`UPDATE quotations SET state = $2, updated_at = NOW() WHERE id = $1`, id, state)
	if err != nil {
		return fmt.Errorf("payments: set quotation state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation %d", ErrNotFound, id)
	}
	return nil
}

// SetRequestState writes the service request state.
func (r *PGRepository) SetRequestState(ctx context.Context, id int64, state requests.State) error {
	if !requests.ValidState(state) {
		return fmt.Errorf("payments: invalid request state %q", state)
	}
	tag, err := r.conn.Exec(ctx,
		`UPDATE service_requests SET state = $2, updated_at = NOW() WHERE id = $1`, id, state)
	if err != nil {
		return fmt.Errorf("payments: set request state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: service request %d", ErrNotFound, id)
	}
	return nil
}

func (r *PGRepository) FindCompletedCommission(ctx context.Context, referrerID, quotationID int64) (*ledger.Movement, error) {
	return r.movements.FindCompletedCommission(ctx, referrerID, quotationID)
}

func (r *PGRepository) InsertMovement(ctx context.Context, m ledger.Movement) (int64, error) {
	return r.movements.Insert(ctx, m)
}

func (r *PGRepository) DeleteMovement(ctx context.Context, id int64) error {
	return r.movements.Delete(ctx, id)
}

// LatestMovementByQuotation returns the newest movement of the given type for
// a quotation, optionally filtered by state. Nil when none exists.
func (r *PGRepository) LatestMovementByQuotation(ctx context.Context, quotationID int64, typ ledger.Type, state *ledger.State) (*ledger.Movement, error) {
	if state != nil {
		return r.movements.LatestByQuotation(ctx, quotationID, typ, *state)
	}
	var m ledger.Movement
	err := r.conn.QueryRow(ctx, `
		SELECT id, user_id, quotation_id, referred_id, type, state, amount, description, reference, created_at
		FROM movements
		WHERE quotation_id = $1 AND type = $2
		ORDER BY id DESC LIMIT 1
	`, quotationID, typ).Scan(&m.ID, &m.UserID, &m.QuotationID, &m.ReferredID,
		&m.Type, &m.State, &m.Amount, &m.Description, &m.Reference, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("payments: latest movement: %w", err)
	}
	return &m, nil
}

func (r *PGRepository) SetMovementState(ctx context.Context, id int64, state ledger.State) error {
	return r.movements.SetState(ctx, id, state)
}

func (r *PGRepository) CreditBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return r.credits.GetBalance(ctx, userID)
}

func (r *PGRepository) AddCredit(ctx context.Context, userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	return r.credits.Add(ctx, userID, delta)
}

func (r *PGRepository) SubtractCredit(ctx context.Context, userID int64, amount decimal.Decimal) (*credit.Deduction, error) {
	return r.credits.Subtract(ctx, userID, amount)
}
