// Package visits implements the visit payment workflow that gates technician
// assignment: a simpler state machine parallel to the service payment one.
package visits

import (
	"time"

	"github.com/shopspring/decimal"
)

// State enumerates the visit payment lifecycle.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
)

// ValidState reports whether s belongs to the closed state set.
func ValidState(s State) bool {
	switch s {
	case StatePending, StateApproved, StateRejected:
		return true
	}
	return false
}

// VisitPayment records the client's payment for the technician's diagnostic
// visit. A service request holds at most one row: creating a new payment
// replaces the previous one.
type VisitPayment struct {
	ID               int64           `json:"id"`
	ServiceRequestID int64           `json:"service_request_id"`
	Amount           decimal.Decimal `json:"amount"`
	ReceiptNumber    string          `json:"receipt_number"`
	State            State           `json:"state"`
	CreatedAt        time.Time       `json:"created_at"`
}
