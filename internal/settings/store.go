// Package settings exposes the configuration values the financial engine
// consumes: commission percentages, visit fees and membership pricing.
package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Well-known configuration keys.
const (
	KeyReferralPercent = "porcentaje_referido"
	KeyVisitFee        = "visita_tecnico"
	KeyDiscountPercent = "porcentaje_descuento"
	KeyMembershipPrice = "membresia"
)

// ErrNotFound indicates a missing configuration key.
var ErrNotFound = errors.New("settings: key not found")

// Store resolves numeric configuration values by key.
type Store interface {
	GetValue(ctx context.Context, key string) (decimal.Decimal, error)
}

// Repository provides PostgreSQL backed configuration lookup.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetValue returns the numeric value stored for key.
func (r *Repository) GetValue(ctx context.Context, key string) (decimal.Decimal, error) {
	var value decimal.Decimal
	err := r.pool.QueryRow(ctx,
		`SELECT value FROM configurations WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return decimal.Zero, fmt.Errorf("settings: get %s: %w", key, err)
	}
	return value, nil
}
