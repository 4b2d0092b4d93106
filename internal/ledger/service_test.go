package ledger

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/servihogar/servihogar/internal/credit"
	"github.com/servihogar/servihogar/internal/platform/httpx"
)

type memoryLedgerRepo struct {
	movements map[int64]*Movement
	balances  map[int64]decimal.Decimal
	nextID    int64
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{
		movements: make(map[int64]*Movement),
		balances:  make(map[int64]decimal.Decimal),
	}
}

func (r *memoryLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *memoryLedgerRepo) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	r.nextID++
	m.ID = r.nextID
	r.movements[m.ID] = &m
	return m.ID, nil
}

func (r *memoryLedgerRepo) GetMovement(ctx context.Context, id int64) (*Movement, error) {
	m, ok := r.movements[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *m
	return &copied, nil
}

func (r *memoryLedgerRepo) SetMovementState(ctx context.Context, id int64, state State) error {
	m, ok := r.movements[id]
	if !ok {
		return ErrNotFound
	}
	m.State = state
	return nil
}

func (r *memoryLedgerRepo) ListMovements(ctx context.Context, userID int64, limit, offset int) ([]Movement, error) {
	var out []Movement
	for _, m := range r.movements {
		if m.UserID == userID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryLedgerRepo) CreditBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return r.balances[userID], nil
}

func (r *memoryLedgerRepo) SubtractCredit(ctx context.Context, userID int64, amount decimal.Decimal) (*credit.Deduction, error) {
	before := r.balances[userID]
	after := before.Sub(amount)
	if after.IsNegative() {
		after = decimal.Zero
	}
	r.balances[userID] = after
	return &credit.Deduction{Before: before, After: after}, nil
}

func (r *memoryLedgerRepo) AddCredit(ctx context.Context, userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	r.balances[userID] = r.balances[userID].Add(delta)
	return r.balances[userID], nil
}

func newLedgerService(repo Repository) *Service {
	return NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRequestWithdrawalDeductsAndRecords(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.balances[1] = decimal.NewFromInt(100)
	svc := newLedgerService(repo)

	m, err := svc.RequestWithdrawal(context.Background(), 1, decimal.NewFromInt(40), "retiro")
	require.NoError(t, err)
	require.Equal(t, TypeWithdrawal, m.Type)
	require.Equal(t, StatePending, m.State)
	require.Equal(t, "60.00", repo.balances[1].StringFixed(2))
}

func TestRequestWithdrawalRequiresFullCoverage(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.balances[1] = decimal.NewFromInt(30)
	svc := newLedgerService(repo)

	_, err := svc.RequestWithdrawal(context.Background(), 1, decimal.NewFromInt(40), "retiro")
	require.ErrorIs(t, err, httpx.ErrValidation)
	// No deduction, no movement.
	require.Equal(t, "30.00", repo.balances[1].StringFixed(2))
	require.Empty(t, repo.movements)
}

func TestCompleteWithdrawal(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.balances[1] = decimal.NewFromInt(100)
	svc := newLedgerService(repo)

	m, err := svc.RequestWithdrawal(context.Background(), 1, decimal.NewFromInt(40), "retiro")
	require.NoError(t, err)

	require.NoError(t, svc.CompleteWithdrawal(context.Background(), m.ID))
	require.Equal(t, StateCompleted, repo.movements[m.ID].State)

	// Completing twice conflicts.
	err = svc.CompleteWithdrawal(context.Background(), m.ID)
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestRejectWithdrawalRefunds(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.balances[1] = decimal.NewFromInt(100)
	svc := newLedgerService(repo)

	m, err := svc.RequestWithdrawal(context.Background(), 1, decimal.NewFromInt(40), "retiro")
	require.NoError(t, err)
	require.Equal(t, "60.00", repo.balances[1].StringFixed(2))

	require.NoError(t, svc.RejectWithdrawal(context.Background(), m.ID))
	require.Equal(t, StateRejected, repo.movements[m.ID].State)
	require.Equal(t, "100.00", repo.balances[1].StringFixed(2))
}

func TestWithdrawalNotFound(t *testing.T) {
	svc := newLedgerService(newMemoryLedgerRepo())

	err := svc.CompleteWithdrawal(context.Background(), 99)
	require.ErrorIs(t, err, httpx.ErrNotFound)
}
