package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/servihogar/servihogar/internal/ledger"
	"github.com/servihogar/servihogar/internal/observability"
	"github.com/servihogar/servihogar/internal/platform/httpx"
	"github.com/servihogar/servihogar/internal/referral"
	"github.com/servihogar/servihogar/internal/requests"
)

// ProcessPaymentInput carries everything a client payment submission needs.
type ProcessPaymentInput struct {
	QuotationID        int64
	RequestID          int64
	AccountID          int64
	ReceiptNumber      string
	LaborAmount        decimal.Decimal
	MembershipDiscount *decimal.Decimal
	UserID             int64
	CreditToApply      decimal.Decimal
	PayerName          string
}

// ProcessPaymentResult echoes what the transaction resolved.
type ProcessPaymentResult struct {
	QuotationID          int64           `json:"quotation_id"`
	RequestID            int64           `json:"request_id"`
	ReferrerID           *int64          `json:"referrer_id"`
	CommissionMovementID *int64          `json:"commission_movement_id"`
	CreditApplied        decimal.Decimal `json:"credit_applied"`
}

// Service coordinates the payment state machine. All writes of one operation
// share a single transaction; a failure anywhere rolls back everything.
type Service struct {
	repo    Repository
	engine  *referral.Engine
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo Repository, engine *referral.Engine, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{repo: repo, engine: engine, metrics: metrics, logger: logger}
}

// ProcessPayment registers a client's service payment: the quotation moves to
// paid, the request to verifying_service_payment, the referrer (if any) earns
// a commission, and applied credit is deducted from the payer's balance.
//
// Commission computation failures are logged and counted but never fail the
// payment; a payment must not bounce because commission bookkeeping broke.
func (s *Service) ProcessPayment(ctx context.Context, in ProcessPaymentInput) (*ProcessPaymentResult, error) {
	// Resolve the commission before opening the transaction; a failure here
	// degrades to "no commission" rather than aborting the payment.
	plan, planErr := s.engine.Plan(ctx, in.UserID, in.LaborAmount)
	if planErr != nil {
		s.logger.Error("commission computation failed, processing payment without commission",
			slog.Int64("quotation_id", in.QuotationID),
			slog.Int64("user_id", in.UserID),
			slog.Any("error", planErr))
		s.metrics.CountCommissionFailure()
		plan = nil
	}

	var result ProcessPaymentResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		quotation, err := repo.GetQuotation(ctx, in.QuotationID)
		if err != nil {
			return s.mapNotFound(err, "quotation")
		}
		request, err := repo.GetServiceRequest(ctx, in.RequestID)
		if err != nil {
			return s.mapNotFound(err, "service request")
		}
		if quotation.ServiceRequestID != request.ID {
			return fmt.Errorf("%w: quotation %d does not belong to request %d",
				httpx.ErrValidation, quotation.ID, request.ID)
		}
		if !CanTransition(quotation.State, QuotationPaid) {
			return fmt.Errorf("%w: quotation %d is %s, cannot be processed",
				httpx.ErrConflict, quotation.ID, quotation.State)
		}

		// Deduct applied credit first so the recorded credit_used is the
		// amount actually taken: min(balance, requested), floored at zero.
		creditApplied := decimal.Zero
		if in.CreditToApply.GreaterThan(decimal.Zero) {
			balance, err := repo.CreditBalance(ctx, in.UserID)
			if err != nil {
				return err
			}
			if balance.GreaterThan(decimal.Zero) {
				deduction, err := repo.SubtractCredit(ctx, in.UserID, in.CreditToApply)
				if err != nil {
					return err
				}
				if deduction != nil {
					creditApplied = deduction.Deducted()
				}
			}
		}

		upd := PaidUpdate{
			AccountID:          in.AccountID,
			ReceiptNumber:      in.ReceiptNumber,
			MembershipDiscount: in.MembershipDiscount,
		}
		if creditApplied.GreaterThan(decimal.Zero) {
			upd.CreditUsed = &creditApplied
		}
		if err := repo.MarkQuotationPaid(ctx, quotation.ID, upd); err != nil {
			return err
		}
		if err := repo.SetRequestState(ctx, request.ID, requests.StateVerifyingServicePayment); err != nil {
			return err
		}

		result = ProcessPaymentResult{
			QuotationID:   quotation.ID,
			RequestID:     request.ID,
			CreditApplied: creditApplied,
		}

		if plan != nil {
			posted, err := s.engine.Apply(ctx, repo, plan, quotation.ID)
			if err != nil {
				return err
			}
			if posted != nil {
				result.ReferrerID = &posted.ReferrerID
				result.CommissionMovementID = &posted.MovementID
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.CountPayment("process", "error")
		return nil, err
	}

	s.metrics.CountPayment("process", "ok")
	s.logger.Info("service payment processed",
		slog.Int64("quotation_id", result.QuotationID),
		slog.Int64("request_id", result.RequestID),
		slog.String("credit_applied", result.CreditApplied.StringFixed(2)))
	return &result, nil
}

// DenyPayment is the compensating transaction for ProcessPayment: the
// quotation is rejected with its discount and credit fields cleared, the
// request returns to pending_service_payment, applied credit is refunded and
// any posted commission is reversed.
func (s *Service) DenyPayment(ctx context.Context, quotationID, requestID, userID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		quotation, err := repo.GetQuotation(ctx, quotationID)
		if err != nil {
			return s.mapNotFound(err, "quotation")
		}
		if _, err := repo.GetServiceRequest(ctx, requestID); err != nil {
			return s.mapNotFound(err, "service request")
		}
		if !CanTransition(quotation.State, QuotationRejected) {
			return fmt.Errorf("%w: quotation %d is %s, cannot be denied",
				httpx.ErrConflict, quotation.ID, quotation.State)
		}

		refund := decimal.Zero
		if quotation.CreditUsed != nil {
			refund = *quotation.CreditUsed
		}

		if err := repo.MarkQuotationRejected(ctx, quotation.ID); err != nil {
			return err
		}
		if err := repo.SetRequestState(ctx, requestID, requests.StatePendingServicePayment); err != nil {
			return err
		}
		if refund.GreaterThan(decimal.Zero) {
			if _, err := repo.AddCredit(ctx, userID, refund); err != nil {
				return err
			}
		}
		return s.engine.Reverse(ctx, repo, userID, quotation.ID)
	})
	if err != nil {
		s.metrics.CountPayment("deny", "error")
		return err
	}

	s.metrics.CountPayment("deny", "ok")
	s.logger.Info("service payment denied",
		slog.Int64("quotation_id", quotationID), slog.Int64("request_id", requestID))
	return nil
}

// AcceptPayment finalizes a verified payment: the quotation is confirmed, the
// request finalized, and the pending ledger rows for the quotation complete.
// A quotation with no technician income row or no commission row is normal;
// their absence is logged, never an error.
func (s *Service) AcceptPayment(ctx context.Context, quotationID, requestID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		quotation, err := repo.GetQuotation(ctx, quotationID)
		if err != nil {
			return s.mapNotFound(err, "quotation")
		}
		if _, err := repo.GetServiceRequest(ctx, requestID); err != nil {
			return s.mapNotFound(err, "service request")
		}
		if quotation.State != QuotationPaid {
			return fmt.Errorf("%w: quotation %d is %s, expected paid",
				httpx.ErrConflict, quotation.ID, quotation.State)
		}

		if err := repo.SetQuotationState(ctx, quotation.ID, QuotationConfirmed); err != nil {
			return err
		}
		if err := repo.SetRequestState(ctx, requestID, requests.StateFinalized); err != nil {
			return err
		}

		income, err := repo.LatestMovementByQuotation(ctx, quotation.ID, ledger.TypeIncome, nil)
		if err != nil {
			return err
		}
		if income != nil {
			if err := repo.SetMovementState(ctx, income.ID, ledger.StateCompleted); err != nil {
				return err
			}
		} else {
			s.logger.Info("no technician income movement for quotation",
				slog.Int64("quotation_id", quotation.ID))
		}

		pending := ledger.StatePending
		commission, err := repo.LatestMovementByQuotation(ctx, quotation.ID, ledger.TypeReferralIncome, &pending)
		if err != nil {
			return err
		}
		if commission != nil {
			if err := repo.SetMovementState(ctx, commission.ID, ledger.StateCompleted); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.CountPayment("accept", "error")
		return err
	}

	s.metrics.CountPayment("accept", "ok")
	s.logger.Info("service payment accepted",
		slog.Int64("quotation_id", quotationID), slog.Int64("request_id", requestID))
	return nil
}

func (s *Service) mapNotFound(err error, what string) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", httpx.ErrNotFound, what)
	}
	return err
}
