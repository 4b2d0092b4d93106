package visits

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/servihogar/servihogar/internal/platform/httpx"
	"github.com/servihogar/servihogar/internal/requests"
)

// Repository defines the data access for the visit payment workflow.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	LatestByRequest(ctx context.Context, requestID int64) (*VisitPayment, error)
	DeleteByRequest(ctx context.Context, requestID int64) error
	Insert(ctx context.Context, vp VisitPayment) (int64, error)
	SetState(ctx context.Context, id int64, state State) error
	SetRequestState(ctx context.Context, requestID int64, state requests.State) error
}

// Service coordinates visit payment confirmation and denial.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Create registers a client's visit payment. An existing payment for the
// request is destroyed first, inside the same transaction as the insert.
func (s *Service) Create(ctx context.Context, requestID int64, amount decimal.Decimal, receipt string) (*VisitPayment, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount must be positive", httpx.ErrValidation)
	}

	vp := VisitPayment{
		ServiceRequestID: requestID,
		Amount:           amount,
		ReceiptNumber:    receipt,
		State:            StatePending,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.DeleteByRequest(ctx, requestID); err != nil {
			return err
		}
		id, err := repo.Insert(ctx, vp)
		if err != nil {
			return err
		}
		vp.ID = id
		if err := repo.SetRequestState(ctx, requestID, requests.StateVerifyingVisitPayment); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &vp, nil
}

// Confirm approves the most recent visit payment and moves the request to
// pending_assignment.
func (s *Service) Confirm(ctx context.Context, requestID int64) error {
	return s.transition(ctx, requestID, StateApproved, requests.StatePendingAssignment)
}

// Deny rejects the most recent visit payment and returns the request to
// pending_visit_payment, so the client may submit a new payment.
func (s *Service) Deny(ctx context.Context, requestID int64) error {
	return s.transition(ctx, requestID, StateRejected, requests.StatePendingVisitPayment)
}

func (s *Service) transition(ctx context.Context, requestID int64, to State, requestState requests.State) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		vp, err := repo.LatestByRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if vp == nil {
			return fmt.Errorf("%w: no visit payment for request %d", httpx.ErrNotFound, requestID)
		}
		if err := repo.SetState(ctx, vp.ID, to); err != nil {
			return err
		}
		return repo.SetRequestState(ctx, requestID, requestState)
	})
	if err != nil {
		return err
	}

	s.logger.Info("visit payment transitioned",
		slog.Int64("request_id", requestID), slog.String("state", string(to)))
	return nil
}
