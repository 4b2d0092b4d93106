package invoicing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/servihogar/servihogar/internal/ledger"
	"github.com/servihogar/servihogar/internal/platform/db"
	"github.com/servihogar/servihogar/internal/platform/httpx"
)

const uniqueViolation = "23505"

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

const correlativeColumns = `id, cai, prefix, range_start, range_end, current_correlative,
	authorization_date, expiration_date, state, created_at`

func scanCorrelative(row pgx.Row) (*Correlative, error) {
	var c Correlative
	err := row.Scan(&c.ID, &c.CAI, &c.Prefix, &c.RangeStart, &c.RangeEnd, &c.Current,
		&c.AuthorizationDate, &c.ExpirationDate, &c.State, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ActiveCorrelativeForUpdate locks and returns the ACTIVE correlative for a
// CAI, or any ACTIVE correlative when cai is empty. The lock holds until the
// enclosing transaction ends; concurrent allocators queue behind it.
func (r *PGRepository) ActiveCorrelativeForUpdate(ctx context.Context, cai string) (*Correlative, error) {
	query := `SELECT ` + correlativeColumns + `
		FROM invoice_correlatives
		WHERE state = $1`
	args := []any{CorrelativeActive}
	if cai != "" {
		query += ` AND cai = $2`
		args = append(args, cai)
	}
	query += ` ORDER BY id LIMIT 1 FOR UPDATE`

	c, err := scanCorrelative(r.conn.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("invoicing: lock active correlative: %w", err)
	}
	return c, nil
}

// Advance writes the new current correlative value.
func (r *PGRepository) Advance(ctx context.Context, id, current int64) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE invoice_correlatives SET current_correlative = $2 WHERE id = $1
	`, id, current)
	if err != nil {
		return fmt.Errorf("invoicing: advance correlative: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: correlative %d", httpx.ErrNotFound, id)
	}
	return nil
}

// SetCorrelativeState writes the correlative state.
func (r *PGRepository) SetCorrelativeState(ctx context.Context, id int64, state CorrelativeState) error {
	if !ValidCorrelativeState(state) {
		return fmt.Errorf("invoicing: invalid correlative state %q", state)
	}
	tag, err := r.conn.Exec(ctx,
		`UPDATE invoice_correlatives SET state = $2 WHERE id = $1`, id, state)
	if err != nil {
		return fmt.Errorf("invoicing: set correlative state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: correlative %d", httpx.ErrNotFound, id)
	}
	return nil
}

// InsertCorrelative stores a new authorization. The partial unique index on
// (cai) WHERE state = 'ACTIVE' rejects a second ACTIVE row per CAI.
func (r *PGRepository) InsertCorrelative(ctx context.Context, c Correlative) (int64, error) {
	var id int64
	err := r.conn.QueryRow(ctx, `
		INSERT INTO invoice_correlatives
			(cai, prefix, range_start, range_end, current_correlative,
			 authorization_date, expiration_date, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id
	`, c.CAI, c.Prefix, c.RangeStart, c.RangeEnd, c.Current,
		c.AuthorizationDate, c.ExpirationDate, c.State).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, fmt.Errorf("%w: an active correlative already exists for CAI %s",
				httpx.ErrValidation, c.CAI)
		}
		return 0, fmt.Errorf("invoicing: insert correlative: %w", err)
	}
	return id, nil
}

// ListCorrelatives returns all authorizations, newest first.
func (r *PGRepository) ListCorrelatives(ctx context.Context) ([]Correlative, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT `+correlativeColumns+` FROM invoice_correlatives ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("invoicing: list correlatives: %w", err)
	}
	defer rows.Close()

	var out []Correlative
	for rows.Next() {
		c, err := scanCorrelative(rows)
		if err != nil {
			return nil, fmt.Errorf("invoicing: scan correlative: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// InsertInvoice stores an invoice row and returns its id. The unique index on
// number surfaces any duplicate allocation as an error instead of a silent
// overwrite.
func (r *PGRepository) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.conn.QueryRow(ctx, `
		INSERT INTO invoices
			(number, cai, correlative_id, client_type, client_name, rtn,
			 subtotal, tax, total, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING id
	`, inv.Number, inv.CAI, inv.CorrelativeID, inv.ClientType, inv.ClientName, inv.RTN,
		inv.Subtotal, inv.Tax, inv.Total, inv.State).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, fmt.Errorf("%w: invoice number %s already issued", httpx.ErrConflict, inv.Number)
		}
		return 0, fmt.Errorf("invoicing: insert invoice: %w", err)
	}
	return id, nil
}

// InsertRelation links the invoice to its single payment source.
func (r *PGRepository) InsertRelation(ctx context.Context, rel InvoiceRelation) (int64, error) {
	if !ValidRelationKind(rel.Kind) {
		return 0, fmt.Errorf("invoicing: invalid relation kind %q", rel.Kind)
	}
	var id int64
	err := r.conn.QueryRow(ctx, `
		INSERT INTO invoice_relations (invoice_id, kind, payment_id)
		VALUES ($1, $2, $3)
		RETURNING id
	`, rel.InvoiceID, rel.Kind, rel.PaymentID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("invoicing: insert relation: %w", err)
	}
	return id, nil
}

// FindInvoiceByPayment resolves the most recent invoice linked to a payment
// source, nil when none exists.
func (r *PGRepository) FindInvoiceByPayment(ctx context.Context, kind RelationKind, paymentID int64) (*InvoiceWithCorrelative, error) {
	var out InvoiceWithCorrelative
	inv, cor := &out.Invoice, &out.Correlative
	err := r.conn.QueryRow(ctx, `
		SELECT i.id, i.number, i.cai, i.correlative_id, i.client_type, i.client_name, i.rtn,
		       i.subtotal, i.tax, i.total, i.state, i.created_at,
		       c.id, c.cai, c.prefix, c.range_start, c.range_end, c.current_correlative,
		       c.authorization_date, c.expiration_date, c.state, c.created_at
		FROM invoice_relations r
		JOIN invoices i ON i.id = r.invoice_id
		JOIN invoice_correlatives c ON c.id = i.correlative_id
		WHERE r.kind = $1 AND r.payment_id = $2
		ORDER BY i.id DESC LIMIT 1
	`, kind, paymentID).Scan(
		&inv.ID, &inv.Number, &inv.CAI, &inv.CorrelativeID, &inv.ClientType, &inv.ClientName, &inv.RTN,
		&inv.Subtotal, &inv.Tax, &inv.Total, &inv.State, &inv.CreatedAt,
		&cor.ID, &cor.CAI, &cor.Prefix, &cor.RangeStart, &cor.RangeEnd, &cor.Current,
		&cor.AuthorizationDate, &cor.ExpirationDate, &cor.State, &cor.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("invoicing: find invoice by payment: %w", err)
	}
	return &out, nil
}
