package visits

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/servihogar/servihogar/internal/ledger"
	"github.com/servihogar/servihogar/internal/platform/db"
	"github.com/servihogar/servihogar/internal/requests"
)

// PGRepository implements Repository over PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
	conn ledger.DBTX
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, conn: pool}
}

// WithTx runs fn against a transactional copy of the repository.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &PGRepository{pool: r.pool, conn: tx})
	})
}

// LatestByRequest returns the most recent visit payment for a request, nil
// when the request has none.
func (r *PGRepository) LatestByRequest(ctx context.Context, requestID int64) (*VisitPayment, error) {
	var vp VisitPayment
	err := r.conn.QueryRow(ctx, `
		SELECT id, service_request_id, amount, receipt_number, state, created_at
		FROM visit_payments
		WHERE service_request_id = $1
		ORDER BY id DESC LIMIT 1
	`, requestID).Scan(&vp.ID, &vp.ServiceRequestID, &vp.Amount, &vp.ReceiptNumber, &vp.State, &vp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("visits: latest by request: %w", err)
	}
	return &vp, nil
}

// DeleteByRequest removes any existing visit payment rows for a request.
func (r *PGRepository) DeleteByRequest(ctx context.Context, requestID int64) error {
	_, err := r.conn.Exec(ctx,
		`DELETE FROM visit_payments WHERE service_request_id = $1`, requestID)
	if err != nil {
		return fmt.Errorf("visits: delete by request: %w", err)
	}
	return nil
}

// Insert stores a visit payment and returns its id.
func (r *PGRepository) Insert(ctx context.Context, vp VisitPayment) (int64, error) {
	if !ValidState(vp.State) {
		return 0, fmt.Errorf("visits: invalid state %q", vp.State)
	}
	var id int64
	err := r.conn.QueryRow(ctx, `
		INSERT INTO visit_payments (service_request_id, amount, receipt_number, state, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id
	`, vp.ServiceRequestID, vp.Amount, vp.ReceiptNumber, vp.State).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("visits: insert: %w", err)
	}
	return id, nil
}

// SetState writes the visit payment state.
func (r *PGRepository) SetState(ctx context.Context, id int64, state State) error {
	if !ValidState(state) {
		return fmt.Errorf("visits: invalid state %q", state)
	}
	tag, err := r.conn.Exec(ctx,
		`UPDATE visit_payments SET state = $2 WHERE id = $1`, id, state)
	if err != nil {
		return fmt.Errorf("visits: set state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("visits: visit payment %d not found", id)
	}
	return nil
}

// SetRequestState writes the service request state.
func (r *PGRepository) SetRequestState(ctx context.Context, requestID int64, state requests.State) error {
	if !requests.ValidState(state) {
		return fmt.Errorf("visits: invalid request state %q", state)
	}
	tag, err := r.conn.Exec(ctx,
		`UPDATE service_requests SET state = $2, updated_at = NOW() WHERE id = $1`, requestID, state)
	if err != nil {
		return fmt.Errorf("visits: set request state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("visits: service request %d not found", requestID)
	}
	return nil
}
