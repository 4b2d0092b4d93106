package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/servihogar/servihogar/internal/credit"
	"github.com/servihogar/servihogar/internal/platform/httpx"
)

// Repository defines the data access the withdrawal workflow needs. The
// transactional variant passed to WithTx sees uncommitted writes.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	GetMovement(ctx context.Context, id int64) (*Movement, error)
	SetMovementState(ctx context.Context, id int64, state State) error
	ListMovements(ctx context.Context, userID int64, limit, offset int) ([]Movement, error)
	CreditBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
	SubtractCredit(ctx context.Context, userID int64, amount decimal.Decimal) (*credit.Deduction, error)
	AddCredit(ctx context.Context, userID int64, delta decimal.Decimal) (decimal.Decimal, error)
}

// Service handles withdrawal requests against the credit balance.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// RequestWithdrawal deducts the amount from the user's credit and records a
// pending withdrawal movement, both in one transaction. The amount must be
// fully covered by the balance; withdrawals never floor.
func (s *Service) RequestWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal, description string) (*Movement, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount must be positive", httpx.ErrValidation)
	}

	var created *Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		balance, err := repo.CreditBalance(ctx, userID)
		if err != nil {
			return err
		}
		if balance.LessThan(amount) {
			return fmt.Errorf("%w: insufficient credit %s for withdrawal of %s",
				httpx.ErrValidation, balance.StringFixed(2), amount.StringFixed(2))
		}
		if _, err := repo.SubtractCredit(ctx, userID, amount); err != nil {
			return err
		}

		m := Movement{
			UserID:      userID,
			Type:        TypeWithdrawal,
			State:       StatePending,
			Amount:      amount,
			Description: description,
		}
		id, err := repo.InsertMovement(ctx, m)
		if err != nil {
			return err
		}
		m.ID = id
		created = &m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal requested",
		slog.Int64("user_id", userID), slog.String("amount", amount.StringFixed(2)))
	return created, nil
}

// CompleteWithdrawal marks a pending withdrawal as paid out.
func (s *Service) CompleteWithdrawal(ctx context.Context, id int64) error {
	m, err := s.repo.GetMovement(ctx, id)
	if err != nil {
		return s.mapNotFound(err)
	}
	if m.Type != TypeWithdrawal {
		return fmt.Errorf("%w: movement %d is not a withdrawal", httpx.ErrConflict, id)
	}
	if m.State != StatePending {
		return fmt.Errorf("%w: withdrawal %d is %s, expected pending", httpx.ErrConflict, id, m.State)
	}
	return s.repo.SetMovementState(ctx, id, StateCompleted)
}

// RejectWithdrawal refunds the deducted credit and marks the movement
// rejected, atomically.
func (s *Service) RejectWithdrawal(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		m, err := repo.GetMovement(ctx, id)
		if err != nil {
			return s.mapNotFound(err)
		}
		if m.Type != TypeWithdrawal {
			return fmt.Errorf("%w: movement %d is not a withdrawal", httpx.ErrConflict, id)
		}
		if m.State != StatePending {
			return fmt.Errorf("%w: withdrawal %d is %s, expected pending", httpx.ErrConflict, id, m.State)
		}
		if err := repo.SetMovementState(ctx, id, StateRejected); err != nil {
			return err
		}
		_, err = repo.AddCredit(ctx, m.UserID, m.Amount)
		return err
	})
}

// ListMovements returns a user's ledger, newest first.
func (s *Service) ListMovements(ctx context.Context, userID int64, limit, offset int) ([]Movement, error) {
	return s.repo.ListMovements(ctx, userID, limit, offset)
}

func (s *Service) mapNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: movement", httpx.ErrNotFound)
	}
	return err
}
