// Package requests holds the service request domain shared by the payment
// and visit workflows. CRUD over service requests lives outside this core.
package requests

import "time"

// State enumerates the service request lifecycle.
type State string

const (
	StatePendingVisitPayment     State = "pending_visit_payment"
	StatePendingAssignment       State = "pending_assignment"
	StateVerifyingVisitPayment   State = "verifying_visit_payment"
	StateAssigned                State = "assigned"
	StatePendingQuotation        State = "pending_quotation"
	StateInProgress              State = "in_progress"
	StatePendingServicePayment   State = "pending_service_payment"
	StateVerifyingServicePayment State = "verifying_service_payment"
	StateFinalized               State = "finalized"
	StateCancelled               State = "cancelled"
)

// ValidState reports whether s belongs to the closed state set. Values from
// the outside world are rejected at the boundary, never stored as-is.
func ValidState(s State) bool {
	switch s {
	case StatePendingVisitPayment, StatePendingAssignment, StateVerifyingVisitPayment,
		StateAssigned, StatePendingQuotation, StateInProgress,
		StatePendingServicePayment, StateVerifyingServicePayment,
		StateFinalized, StateCancelled:
		return true
	}
	return false
}

// ServiceRequest model. The client requested a home-repair service; a
// technician may not be assigned yet.
type ServiceRequest struct {
	ID           int64     `json:"id"`
	ClientID     int64     `json:"client_id"`
	TechnicianID *int64    `json:"technician_id,omitempty"`
	State        State     `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
