package payments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/servihogar/servihogar/internal/credit"
	"github.com/servihogar/servihogar/internal/directory"
	"github.com/servihogar/servihogar/internal/ledger"
	"github.com/servihogar/servihogar/internal/observability"
	"github.com/servihogar/servihogar/internal/platform/httpx"
	"github.com/servihogar/servihogar/internal/referral"
	"github.com/servihogar/servihogar/internal/requests"
)

type fakeSettings struct {
	pct decimal.Decimal
	err error
}

func (f fakeSettings) GetValue(ctx context.Context, key string) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.pct, nil
}

type fakeDirectory struct {
	referrers map[int64]int64
	names     map[int64]string
}

func (f fakeDirectory) FindUser(ctx context.Context, id int64) (*directory.User, error) {
	return &directory.User{ID: id, Name: f.names[id]}, nil
}

func (f fakeDirectory) FindReferrerOf(ctx context.Context, userID int64) (*int64, error) {
	ref, ok := f.referrers[userID]
	if !ok {
		return nil, nil
	}
	return &ref, nil
}

type memoryRepo struct {
	quotations     map[int64]*Quotation
	requests       map[int64]*requests.ServiceRequest
	movements      map[int64]*ledger.Movement
	balances       map[int64]decimal.Decimal
	nextMovementID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		quotations: make(map[int64]*Quotation),
		requests:   make(map[int64]*requests.ServiceRequest),
		movements:  make(map[int64]*ledger.Movement),
		balances:   make(map[int64]decimal.Decimal),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) GetQuotation(ctx context.Context, id int64) (*Quotation, error) {
	q, ok := r.quotations[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *q
	return &copied, nil
}

func (r *memoryRepo) GetServiceRequest(ctx context.Context, id int64) (*requests.ServiceRequest, error) {
	sr, ok := r.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *sr
	return &copied, nil
}

func (r *memoryRepo) MarkQuotationPaid(ctx context.Context, id int64, upd PaidUpdate) error {
	q, ok := r.quotations[id]
	if !ok {
		return ErrNotFound
	}
	q.State = QuotationPaid
	q.AccountID = &upd.AccountID
	q.ReceiptNumber = &upd.ReceiptNumber
	q.MembershipDiscount = upd.MembershipDiscount
	q.CreditUsed = upd.CreditUsed
	return nil
}

func (r *memoryRepo) MarkQuotationRejected(ctx context.Context, id int64) error {
	q, ok := r.quotations[id]
	if !ok {
		return ErrNotFound
	}
	q.State = QuotationRejected
	q.MembershipDiscount = nil
	q.CreditUsed = nil
	return nil
}

func (r *memoryRepo) SetQuotationState(ctx context.Context, id int64, state QuotationState) error {
	q, ok := r.quotations[id]
	if !ok {
		return ErrNotFound
	}
	q.State = state
	return nil
}

func (r *memoryRepo) SetRequestState(ctx context.Context, id int64, state requests.State) error {
	sr, ok := r.requests[id]
	if !ok {
		return ErrNotFound
	}
	sr.State = state
	return nil
}

func (r *memoryRepo) FindCompletedCommission(ctx context.Context, referrerID, quotationID int64) (*ledger.Movement, error) {
	for _, m := range r.movements {
		if m.Type == ledger.TypeReferralIncome && m.State == ledger.StateCompleted &&
			m.UserID == referrerID && m.QuotationID != nil && *m.QuotationID == quotationID {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memoryRepo) InsertMovement(ctx context.Context, m ledger.Movement) (int64, error) {
	if m.Type == ledger.TypeReferralIncome && m.State == ledger.StateCompleted && m.QuotationID != nil {
		existing, _ := r.FindCompletedCommission(ctx, m.UserID, *m.QuotationID)
		if existing != nil {
			return 0, ledger.ErrDuplicateCommission
		}
	}
	r.nextMovementID++
	m.ID = r.nextMovementID
	r.movements[m.ID] = &m
	return m.ID, nil
}

func (r *memoryRepo) DeleteMovement(ctx context.Context, id int64) error {
	delete(r.movements, id)
	return nil
}

func (r *memoryRepo) LatestMovementByQuotation(ctx context.Context, quotationID int64, typ ledger.Type, state *ledger.State) (*ledger.Movement, error) {
	var latest *ledger.Movement
	for _, m := range r.movements {
		if m.Type != typ || m.QuotationID == nil || *m.QuotationID != quotationID {
			continue
		}
		if state != nil && m.State != *state {
			continue
		}
		if latest == nil || m.ID > latest.ID {
			latest = m
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (r *memoryRepo) SetMovementState(ctx context.Context, id int64, state ledger.State) error {
	m, ok := r.movements[id]
	if !ok {
		return ledger.ErrNotFound
	}
	m.State = state
	return nil
}

func (r *memoryRepo) CreditBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return r.balances[userID], nil
}

func (r *memoryRepo) AddCredit(ctx context.Context, userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	r.balances[userID] = r.balances[userID].Add(delta)
	return r.balances[userID], nil
}

func (r *memoryRepo) SubtractCredit(ctx context.Context, userID int64, amount decimal.Decimal) (*credit.Deduction, error) {
	before, ok := r.balances[userID]
	if !ok {
		return nil, nil
	}
	after := before.Sub(amount)
	if after.IsNegative() {
		after = decimal.Zero
	}
	r.balances[userID] = after
	return &credit.Deduction{Before: before, After: after}, nil
}

func (r *memoryRepo) countMovements(typ ledger.Type) int {
	n := 0
	for _, m := range r.movements {
		if m.Type == typ {
			n++
		}
	}
	return n
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(repo *memoryRepo, cfg fakeSettings, dir fakeDirectory) *Service {
	engine := referral.NewEngine(cfg, dir, testLogger())
	return NewService(repo, engine, observability.NewMetrics(), testLogger())
}

func seedPaidScenario(repo *memoryRepo, state QuotationState) {
	repo.quotations[10] = &Quotation{
		ID:               10,
		ServiceRequestID: 20,
		LaborAmount:      decimal.NewFromInt(1000),
		State:            state,
	}
	repo.requests[20] = &requests.ServiceRequest{
		ID:       20,
		ClientID: 1,
		State:    requests.StatePendingServicePayment,
	}
}

func TestProcessPaymentPostsCommission(t *testing.T) {
	repo := newMemoryRepo()
	seedPaidScenario(repo, QuotationPending)

	dir := fakeDirectory{referrers: map[int64]int64{1: 2}, names: map[int64]string{1: "Ana"}}
	svc := newTestService(repo, fakeSettings{pct: decimal.NewFromInt(5)}, dir)

	result, err := svc.ProcessPayment(context.Background(), ProcessPaymentInput{
		QuotationID:   10,
		RequestID:     20,
		AccountID:     7,
		ReceiptNumber: "R-001",
		LaborAmount:   decimal.NewFromInt(1000),
		UserID:        1,
	})
	require.NoError(t, err)
	require.NotNil(t, result.ReferrerID)
	require.Equal(t, int64(2), *result.ReferrerID)

	require.Equal(t, QuotationPaid, repo.quotations[10].State)
	require.Equal(t, requests.StateVerifyingServicePayment, repo.requests[20].State)

	commission, err := repo.FindCompletedCommission(context.Background(), 2, 10)
	require.NoError(t, err)
	require.NotNil(t, commission)
	require.Equal(t, "50.00", commission.Amount.StringFixed(2))
	require.Equal(t, "50.00", repo.balances[2].StringFixed(2))
}

func TestProcessThenDenyRestoresBalance(t *testing.T) {
	repo := newMemoryRepo()
	seedPaidScenario(repo, QuotationPending)
	repo.balances[1] = decimal.NewFromInt(20)

	dir := fakeDirectory{referrers: map[int64]int64{1: 2}, names: map[int64]string{1: "Ana"}}
	svc := newTestService(repo, fakeSettings{pct: decimal.NewFromInt(5)}, dir)

	result, err := svc.ProcessPayment(context.Background(), ProcessPaymentInput{
		QuotationID:   10,
		RequestID:     20,
		AccountID:     7,
		ReceiptNumber: "R-001",
		LaborAmount:   decimal.NewFromInt(1000),
		UserID:        1,
		CreditToApply: decimal.NewFromInt(20),
	})
	require.NoError(t, err)
	require.Equal(t, "20.00", result.CreditApplied.StringFixed(2))
	require.True(t, repo.balances[1].IsZero())

	require.NoError(t, svc.DenyPayment(context.Background(), 10, 20, 1))

	require.Equal(t, QuotationRejected, repo.quotations[10].State)
	require.Nil(t, repo.quotations[10].CreditUsed)
	require.Equal(t, requests.StatePendingServicePayment, repo.requests[20].State)
	require.Equal(t, "20.00", repo.balances[1].StringFixed(2))
	// The commission was reversed with the payment.
	require.Zero(t, repo.countMovements(ledger.TypeReferralIncome))
	require.True(t, repo.balances[2].IsZero())
}

func TestProcessDeductsAtMostBalance(t *testing.T) {
	repo := newMemoryRepo()
	seedPaidScenario(repo, QuotationAccepted)
	repo.balances[1] = decimal.NewFromInt(30)

	svc := newTestService(repo, fakeSettings{pct: decimal.NewFromInt(5)}, fakeDirectory{})

	result, err := svc.ProcessPayment(context.Background(), ProcessPaymentInput{
		QuotationID:   10,
		RequestID:     20,
		AccountID:     7,
		ReceiptNumber: "R-002",
		LaborAmount:   decimal.NewFromInt(500),
		UserID:        1,
		CreditToApply: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	require.Equal(t, "30.00", result.CreditApplied.StringFixed(2))
	require.True(t, repo.balances[1].IsZero())
	require.NotNil(t, repo.quotations[10].CreditUsed)
	require.Equal(t, "30.00", repo.quotations[10].CreditUsed.StringFixed(2))
}

func TestProcessToleratesCommissionFailure(t *testing.T) {
	repo := newMemoryRepo()
	seedPaidScenario(repo, QuotationPending)

	dir := fakeDirectory{referrers: map[int64]int64{1: 2}}
	svc := newTestService(repo, fakeSettings{err: errors.New("configurations unavailable")}, dir)

	result, err := svc.ProcessPayment(context.Background(), ProcessPaymentInput{
		QuotationID:   10,
		RequestID:     20,
		AccountID:     7,
		ReceiptNumber: "R-003",
		LaborAmount:   decimal.NewFromInt(1000),
		UserID:        1,
	})
	require.NoError(t, err)
	require.Nil(t, result.ReferrerID)
	require.Equal(t, QuotationPaid, repo.quotations[10].State)
	require.Zero(t, repo.countMovements(ledger.TypeReferralIncome))
}

func TestProcessTwiceCreatesOneCommission(t *testing.T) {
	repo := newMemoryRepo()
	seedPaidScenario(repo, QuotationPending)

	dir := fakeDirectory{referrers: map[int64]int64{1: 2}}
	svc := newTestService(repo, fakeSettings{pct: decimal.NewFromInt(5)}, dir)

	in := ProcessPaymentInput{
		QuotationID:   10,
		RequestID:     20,
		AccountID:     7,
		ReceiptNumber: "R-004",
		LaborAmount:   decimal.NewFromInt(1000),
		UserID:        1,
	}
	_, err := svc.ProcessPayment(context.Background(), in)
	require.NoError(t, err)

	_, err = svc.ProcessPayment(context.Background(), in)
	require.ErrorIs(t, err, httpx.ErrConflict)
	require.Equal(t, 1, repo.countMovements(ledger.TypeReferralIncome))
}

func TestAcceptRequiresPaidState(t *testing.T) {
	for _, state := range []QuotationState{QuotationPending, QuotationRejected} {
		repo := newMemoryRepo()
		seedPaidScenario(repo, state)
		svc := newTestService(repo, fakeSettings{pct: decimal.NewFromInt(5)}, fakeDirectory{})

		err := svc.AcceptPayment(context.Background(), 10, 20)
		require.ErrorIs(t, err, httpx.ErrConflict)
		require.Contains(t, err.Error(), string(state))
		require.Equal(t, state, repo.quotations[10].State)
		require.Equal(t, requests.StatePendingServicePayment, repo.requests[20].State)
	}
}

func TestAcceptCompletesPendingMovements(t *testing.T) {
	repo := newMemoryRepo()
	seedPaidScenario(repo, QuotationPaid)

	qid := int64(10)
	incomeID, err := repo.InsertMovement(context.Background(), ledger.Movement{
		UserID:      3,
		QuotationID: &qid,
		Type:        ledger.TypeIncome,
		State:       ledger.StatePending,
		Amount:      decimal.NewFromInt(800),
	})
	require.NoError(t, err)
	commissionID, err := repo.InsertMovement(context.Background(), ledger.Movement{
		UserID:      2,
		QuotationID: &qid,
		Type:        ledger.TypeReferralIncome,
		State:       ledger.StatePending,
		Amount:      decimal.NewFromInt(50),
	})
	require.NoError(t, err)

	svc := newTestService(repo, fakeSettings{pct: decimal.NewFromInt(5)}, fakeDirectory{})
	require.NoError(t, svc.AcceptPayment(context.Background(), 10, 20))

	require.Equal(t, QuotationConfirmed, repo.quotations[10].State)
	require.Equal(t, requests.StateFinalized, repo.requests[20].State)
	require.Equal(t, ledger.StateCompleted, repo.movements[incomeID].State)
	require.Equal(t, ledger.StateCompleted, repo.movements[commissionID].State)
}

func TestDenyRequiresPaidState(t *testing.T) {
	repo := newMemoryRepo()
	seedPaidScenario(repo, QuotationPending)
	svc := newTestService(repo, fakeSettings{pct: decimal.NewFromInt(5)}, fakeDirectory{})

	err := svc.DenyPayment(context.Background(), 10, 20, 1)
	require.ErrorIs(t, err, httpx.ErrConflict)
	require.Equal(t, QuotationPending, repo.quotations[10].State)
}
