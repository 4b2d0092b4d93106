// Package referral computes and posts referral commissions. A commission is
// tied to exactly one quotation and is posted at most once per
// (referrer, quotation) pair, enforced by the ledger's uniqueness index.
package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/servihogar/servihogar/internal/credit"
	"github.com/servihogar/servihogar/internal/directory"
	"github.com/servihogar/servihogar/internal/ledger"
	"github.com/servihogar/servihogar/internal/settings"
)

// Ledger is the slice of the payment transaction the engine writes through.
// Implementations are transactional: posting and crediting commit together.
type Ledger interface {
	FindCompletedCommission(ctx context.Context, referrerID, quotationID int64) (*ledger.Movement, error)
	InsertMovement(ctx context.Context, m ledger.Movement) (int64, error)
	DeleteMovement(ctx context.Context, id int64) error
	AddCredit(ctx context.Context, userID int64, delta decimal.Decimal) (decimal.Decimal, error)
	SubtractCredit(ctx context.Context, userID int64, amount decimal.Decimal) (*credit.Deduction, error)
}

// Plan is a computed commission ready to be applied. A nil Plan means the
// payer has no referrer or the commission rounds to zero; both are normal.
type Plan struct {
	ReferrerID int64
	PayerID    int64
	PayerName  string
	Amount     decimal.Decimal
}

// PostResult echoes what an applied plan resolved.
type PostResult struct {
	ReferrerID int64
	MovementID int64
	Amount     decimal.Decimal
	// AlreadyPosted is true when an earlier posting for the same pair was
	// found and no new movement was created.
	AlreadyPosted bool
}

// Engine resolves referrers and commission percentages.
type Engine struct {
	config    settings.Store
	directory directory.Directory
	logger    *slog.Logger
}

// NewEngine builds an Engine instance.
func NewEngine(config settings.Store, dir directory.Directory, logger *slog.Logger) *Engine {
	return &Engine{config: config, directory: dir, logger: logger}
}

// Commission computes round(pct × labor / 100, 2) using the configured
// referral percentage.
func (e *Engine) Commission(ctx context.Context, labor decimal.Decimal) (decimal.Decimal, error) {
	pct, err := e.config.GetValue(ctx, settings.KeyReferralPercent)
	if err != nil {
		return decimal.Zero, fmt.Errorf("referral: commission percentage: %w", err)
	}
	return pct.Mul(labor).Div(decimal.NewFromInt(100)).Round(2), nil
}

// Plan resolves the payer's referrer and the commission amount. Errors here
// are computation failures the payment flow tolerates: the caller logs them
// and proceeds without a commission.
func (e *Engine) Plan(ctx context.Context, payerID int64, labor decimal.Decimal) (*Plan, error) {
	referrerID, err := e.directory.FindReferrerOf(ctx, payerID)
	if err != nil {
		return nil, err
	}
	if referrerID == nil {
		return nil, nil
	}

	amount, err := e.Commission(ctx, labor)
	if err != nil {
		return nil, err
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil
	}

	plan := &Plan{ReferrerID: *referrerID, PayerID: payerID, Amount: amount}
	if payer, err := e.directory.FindUser(ctx, payerID); err == nil {
		plan.PayerName = payer.Name
	}
	return plan, nil
}

// Apply posts the planned commission inside the caller's transaction:
// one completed referral_income movement plus the referrer's credit. Errors
// here abort the enclosing transaction.
func (e *Engine) Apply(ctx context.Context, led Ledger, plan *Plan, quotationID int64) (*PostResult, error) {
	if existing, err := led.FindCompletedCommission(ctx, plan.ReferrerID, quotationID); err != nil {
		return nil, err
	} else if existing != nil {
		return &PostResult{ReferrerID: plan.ReferrerID, MovementID: existing.ID, Amount: existing.Amount, AlreadyPosted: true}, nil
	}

	description := fmt.Sprintf("Comisión por referido, cotización #%d", quotationID)
	if plan.PayerName != "" {
		description = fmt.Sprintf("Comisión por referido %s, cotización #%d", plan.PayerName, quotationID)
	}

	qid := quotationID
	rid := plan.PayerID
	movementID, err := led.InsertMovement(ctx, ledger.Movement{
		UserID:      plan.ReferrerID,
		QuotationID: &qid,
		ReferredID:  &rid,
		Type:        ledger.TypeReferralIncome,
		State:       ledger.StateCompleted,
		Amount:      plan.Amount,
		Description: description,
		Reference:   ledger.CommissionReference(plan.ReferrerID, quotationID),
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateCommission) {
			// A concurrent posting won the race; treat as already posted.
			existing, ferr := led.FindCompletedCommission(ctx, plan.ReferrerID, quotationID)
			if ferr != nil || existing == nil {
				return nil, fmt.Errorf("referral: resolve concurrent posting: %w", err)
			}
			return &PostResult{ReferrerID: plan.ReferrerID, MovementID: existing.ID, Amount: existing.Amount, AlreadyPosted: true}, nil
		}
		return nil, err
	}

	if _, err := led.AddCredit(ctx, plan.ReferrerID, plan.Amount); err != nil {
		return nil, err
	}

	e.logger.Info("referral commission posted",
		slog.Int64("referrer_id", plan.ReferrerID),
		slog.Int64("quotation_id", quotationID),
		slog.String("amount", plan.Amount.StringFixed(2)))

	return &PostResult{ReferrerID: plan.ReferrerID, MovementID: movementID, Amount: plan.Amount}, nil
}

// Reverse undoes a posted commission when a payment is denied: the referrer's
// balance is reduced (floored at zero) and the movement row removed. Absence
// of a posted commission is not an error.
func (e *Engine) Reverse(ctx context.Context, led Ledger, payerID, quotationID int64) error {
	referrerID, err := e.directory.FindReferrerOf(ctx, payerID)
	if err != nil {
		return err
	}
	if referrerID == nil {
		return nil
	}

	movement, err := led.FindCompletedCommission(ctx, *referrerID, quotationID)
	if err != nil {
		return err
	}
	if movement == nil {
		return nil
	}

	if _, err := led.SubtractCredit(ctx, *referrerID, movement.Amount); err != nil {
		return err
	}
	if err := led.DeleteMovement(ctx, movement.ID); err != nil {
		return err
	}

	e.logger.Info("referral commission reversed",
		slog.Int64("referrer_id", *referrerID),
		slog.Int64("quotation_id", quotationID),
		slog.String("amount", movement.Amount.StringFixed(2)))
	return nil
}
