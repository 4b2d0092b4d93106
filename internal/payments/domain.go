// Package payments implements the service payment state machine: the
// quotation and its parent service request move through
// pending → paid → confirmed/rejected, driving the movement ledger, the
// referral commission engine and the credit ledger on each transition.
package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuotationState enumerates the quotation payment lifecycle.
type QuotationState string

const (
	QuotationPending   QuotationState = "pending"
	QuotationAccepted  QuotationState = "accepted"
	QuotationRejected  QuotationState = "rejected"
	QuotationPaid      QuotationState = "paid"
	QuotationConfirmed QuotationState = "confirmed"
)

// ValidQuotationState reports whether s belongs to the closed state set.
func ValidQuotationState(s QuotationState) bool {
	switch s {
	case QuotationPending, QuotationAccepted, QuotationRejected, QuotationPaid, QuotationConfirmed:
		return true
	}
	return false
}

// quotationTransitions is the single transition table both the forward
// operations and their compensations consult, so the two cannot drift apart.
//
//	pending/accepted --process--> paid --accept--> confirmed (terminal)
//	                              paid --deny----> rejected  (terminal)
var quotationTransitions = map[QuotationState][]QuotationState{
	QuotationPending:  {QuotationPaid},
	QuotationAccepted: {QuotationPaid},
	QuotationPaid:     {QuotationConfirmed, QuotationRejected},
}

// CanTransition reports whether the state machine permits from → to.
func CanTransition(from, to QuotationState) bool {
	for _, next := range quotationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Quotation is the priced estimate for a service request, carrying its own
// payment-confirmation state. Exactly one non-terminal quotation exists per
// service request at a time.
type Quotation struct {
	ID                 int64            `json:"id"`
	ServiceRequestID   int64            `json:"service_request_id"`
	AccountID          *int64           `json:"account_id,omitempty"`
	LaborAmount        decimal.Decimal  `json:"labor_amount"`
	MaterialsAmount    decimal.Decimal  `json:"materials_amount"`
	MembershipDiscount *decimal.Decimal `json:"membership_discount,omitempty"`
	CreditUsed         *decimal.Decimal `json:"credit_used,omitempty"`
	ReceiptNumber      *string          `json:"receipt_number,omitempty"`
	State              QuotationState   `json:"state"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}
