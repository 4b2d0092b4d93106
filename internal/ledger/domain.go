// Package ledger implements the movement ledger: every money-affecting event
// (technician income, withdrawals, referral commissions) is one row with a
// lifecycle state.
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type enumerates movement kinds. Amounts are stored positive; the type
// implies direction.
type Type string

const (
	TypeIncome         Type = "income"
	TypeWithdrawal     Type = "withdrawal"
	TypeReferralIncome Type = "referral_income"
)

// State enumerates the movement lifecycle.
type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateRejected  State = "rejected"
)

// ValidType reports whether t belongs to the closed type set.
func ValidType(t Type) bool {
	switch t {
	case TypeIncome, TypeWithdrawal, TypeReferralIncome:
		return true
	}
	return false
}

// ValidState reports whether s belongs to the closed state set.
func ValidState(s State) bool {
	switch s {
	case StatePending, StateCompleted, StateRejected:
		return true
	}
	return false
}

// Movement is one ledger entry.
type Movement struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	QuotationID *int64          `json:"quotation_id,omitempty"`
	// ReferredID is set only on referral_income rows: the user whose payment
	// generated the commission.
	ReferredID  *int64          `json:"referred_id,omitempty"`
	Type        Type            `json:"type"`
	State       State           `json:"state"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Reference   uuid.UUID       `json:"reference"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CommissionReference derives the deterministic reference id for a referral
// commission, so a retried posting maps to the same ledger identity.
func CommissionReference(referrerID, quotationID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("REFCOM:%d:%d", referrerID, quotationID)))
}
