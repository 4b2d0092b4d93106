package payments

import "github.com/shopspring/decimal"

// ProcessPaymentRequest is the POST /payments/process body.
type ProcessPaymentRequest struct {
	QuotationID        int64            `json:"quotation_id" validate:"required,gt=0"`
	RequestID          int64            `json:"request_id" validate:"required,gt=0"`
	AccountID          int64            `json:"account_id" validate:"required,gt=0"`
	ReceiptNumber      string           `json:"receipt_no" validate:"required,max=50"`
	LaborAmount        decimal.Decimal  `json:"labor_amount" validate:"required"`
	MembershipDiscount *decimal.Decimal `json:"membership_discount,omitempty"`
	UserID             int64            `json:"user_id" validate:"required,gt=0"`
	CreditToApply      decimal.Decimal  `json:"credit_to_apply"`
	PayerName          string           `json:"payer_name" validate:"max=120"`
}

// DenyPaymentRequest is the POST /payments/deny body.
type DenyPaymentRequest struct {
	QuotationID int64 `json:"quotation_id" validate:"required,gt=0"`
	RequestID   int64 `json:"request_id" validate:"required,gt=0"`
	UserID      int64 `json:"user_id" validate:"required,gt=0"`
}

// AcceptPaymentRequest is the POST /payments/accept body.
type AcceptPaymentRequest struct {
	QuotationID int64 `json:"quotation_id" validate:"required,gt=0"`
	RequestID   int64 `json:"request_id" validate:"required,gt=0"`
}
