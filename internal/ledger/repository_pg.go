package ledger

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/servihogar/servihogar/internal/credit"
	"github.com/servihogar/servihogar/internal/platform/db"
)

// PGRepository implements Repository over PostgreSQL, composing the movement
// and credit query sets so both run inside the same transaction.
type PGRepository struct {
	pool      *pgxpool.Pool
	movements *Queries
	credits   *credit.Queries
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{
		pool:      pool,
		movements: New(pool),
		credits:   credit.New(pool),
	}
}

// WithTx runs fn against a transactional copy of the repository.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		txRepo := &PGRepository{
			pool:      r.pool,
			movements: r.movements.WithTx(tx),
			credits:   r.credits.WithTx(tx),
		}
		return fn(ctx, txRepo)
	})
}

func (r *PGRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	return r.movements.Insert(ctx, m)
}

func (r *PGRepository) GetMovement(ctx context.Context, id int64) (*Movement, error) {
	return r.movements.Get(ctx, id)
}

func (r *PGRepository) SetMovementState(ctx context.Context, id int64, state State) error {
	return r.movements.SetState(ctx, id, state)
}

func (r *PGRepository) ListMovements(ctx context.Context, userID int64, limit, offset int) ([]Movement, error) {
	return r.movements.ListByUser(ctx, userID, limit, offset)
}

func (r *PGRepository) CreditBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return r.credits.GetBalance(ctx, userID)
}

func (r *PGRepository) SubtractCredit(ctx context.Context, userID int64, amount decimal.Decimal) (*credit.Deduction, error) {
	return r.credits.Subtract(ctx, userID, amount)
}

func (r *PGRepository) AddCredit(ctx context.Context, userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	return r.credits.Add(ctx, userID, delta)
}
