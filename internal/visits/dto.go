package visits

import "github.com/shopspring/decimal"

// CreateVisitPaymentRequest is the POST /visit-payments body.
type CreateVisitPaymentRequest struct {
	RequestID     int64           `json:"request_id" validate:"required,gt=0"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	ReceiptNumber string          `json:"receipt_no" validate:"required,max=50"`
}

// TransitionVisitPaymentRequest is the confirm/deny body.
type TransitionVisitPaymentRequest struct {
	RequestID int64 `json:"request_id" validate:"required,gt=0"`
}
