// Package credit implements the per-user prepaid credit ledger. Balances are
// only ever moved by single-statement conditional updates so concurrent
// payment processing cannot lose writes.
package credit

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is one row per user holding the running credit balance.
type Account struct {
	UserID    int64           `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Deduction reports a floored subtraction: Before - After is the amount
// actually taken, which may be less than requested.
type Deduction struct {
	Before decimal.Decimal `json:"monto_anterior"`
	After  decimal.Decimal `json:"monto_actual"`
}

// Deducted returns the amount removed from the balance.
func (d Deduction) Deducted() decimal.Decimal {
	return d.Before.Sub(d.After)
}
