package payments

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/servihogar/servihogar/internal/credit"
	"github.com/servihogar/servihogar/internal/ledger"
	"github.com/servihogar/servihogar/internal/requests"
)

// ErrNotFound indicates a missing quotation or service request.
var ErrNotFound = errors.New("payments: not found")

// PaidUpdate carries the fields attached to a quotation when it moves to paid.
type PaidUpdate struct {
	AccountID          int64
	ReceiptNumber      string
	MembershipDiscount *decimal.Decimal
	CreditUsed         *decimal.Decimal
}

// Repository defines the data access for the payment state machine. Every
// mutation of one logical operation runs through the transactional variant
// handed to WithTx; a superset of referral.Ledger so the commission engine
// writes through the same transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	GetQuotation(ctx context.Context, id int64) (*Quotation, error)
	GetServiceRequest(ctx context.Context, id int64) (*requests.ServiceRequest, error)
	// MarkQuotationPaid transitions the quotation to paid and attaches the
	// payment fields.
	MarkQuotationPaid(ctx context.Context, id int64, upd PaidUpdate) error
	// MarkQuotationRejected transitions to rejected and clears the discount
	// and credit fields.
	MarkQuotationRejected(ctx context.Context, id int64) error
	SetQuotationState(ctx context.Context, id int64, state QuotationState) error
	SetRequestState(ctx context.Context, id int64, state requests.State) error

	// Movement ledger access, shared with the referral engine.
	FindCompletedCommission(ctx context.Context, referrerID, quotationID int64) (*ledger.Movement, error)
	InsertMovement(ctx context.Context, m ledger.Movement) (int64, error)
	DeleteMovement(ctx context.Context, id int64) error
	LatestMovementByQuotation(ctx context.Context, quotationID int64, typ ledger.Type, state *ledger.State) (*ledger.Movement, error)
	SetMovementState(ctx context.Context, id int64, state ledger.State) error

	// Credit ledger access.
	CreditBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
	AddCredit(ctx context.Context, userID int64, delta decimal.Decimal) (decimal.Decimal, error)
	SubtractCredit(ctx context.Context, userID int64, amount decimal.Decimal) (*credit.Deduction, error)
}
