package invoicing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/servihogar/servihogar/internal/observability"
	"github.com/servihogar/servihogar/internal/platform/httpx"
)

// memoryInvoicingRepo serializes transactions with a mutex, mirroring the row
// lock the real repository takes, and restores a snapshot when the
// transaction function fails.
type memoryInvoicingRepo struct {
	mu           sync.Mutex
	inTx         bool
	correlatives map[int64]*Correlative
	invoices     map[int64]*Invoice
	relations    map[int64]*InvoiceRelation
	nextID       int64
}

func newMemoryInvoicingRepo() *memoryInvoicingRepo {
	return &memoryInvoicingRepo{
		correlatives: make(map[int64]*Correlative),
		invoices:     make(map[int64]*Invoice),
		relations:    make(map[int64]*InvoiceRelation),
	}
}

func (r *memoryInvoicingRepo) snapshot() (map[int64]Correlative, map[int64]Invoice, map[int64]InvoiceRelation, int64) {
	cs := make(map[int64]Correlative, len(r.correlatives))
	for id, c := range r.correlatives {
		cs[id] = *c
	}
	is := make(map[int64]Invoice, len(r.invoices))
	for id, inv := range r.invoices {
		is[id] = *inv
	}
	rs := make(map[int64]InvoiceRelation, len(r.relations))
	for id, rel := range r.relations {
		rs[id] = *rel
	}
	return cs, is, rs, r.nextID
}

func (r *memoryInvoicingRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, is, rs, next := r.snapshot()
	r.inTx = true
	err := fn(ctx, r)
	r.inTx = false
	if err != nil {
		r.correlatives = make(map[int64]*Correlative, len(cs))
		for id := range cs {
			c := cs[id]
			r.correlatives[id] = &c
		}
		r.invoices = make(map[int64]*Invoice, len(is))
		for id := range is {
			inv := is[id]
			r.invoices[id] = &inv
		}
		r.relations = make(map[int64]*InvoiceRelation, len(rs))
		for id := range rs {
			rel := rs[id]
			r.relations[id] = &rel
		}
		r.nextID = next
	}
	return err
}

func (r *memoryInvoicingRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *memoryInvoicingRepo) ActiveCorrelativeForUpdate(ctx context.Context, cai string) (*Correlative, error) {
	defer r.lock()()
	var found *Correlative
	for _, c := range r.correlatives {
		if c.State != CorrelativeActive {
			continue
		}
		if cai != "" && c.CAI != cai {
			continue
		}
		if found == nil || c.ID < found.ID {
			found = c
		}
	}
	if found == nil {
		return nil, nil
	}
	copied := *found
	return &copied, nil
}

func (r *memoryInvoicingRepo) Advance(ctx context.Context, id, current int64) error {
	defer r.lock()()
	c, ok := r.correlatives[id]
	if !ok {
		return fmt.Errorf("%w: correlative %d", httpx.ErrNotFound, id)
	}
	c.Current = current
	return nil
}

func (r *memoryInvoicingRepo) SetCorrelativeState(ctx context.Context, id int64, state CorrelativeState) error {
	defer r.lock()()
	c, ok := r.correlatives[id]
	if !ok {
		return fmt.Errorf("%w: correlative %d", httpx.ErrNotFound, id)
	}
	c.State = state
	return nil
}

func (r *memoryInvoicingRepo) InsertCorrelative(ctx context.Context, c Correlative) (int64, error) {
	defer r.lock()()
	if c.State == CorrelativeActive {
		for _, existing := range r.correlatives {
			if existing.CAI == c.CAI && existing.State == CorrelativeActive {
				return 0, fmt.Errorf("%w: an active correlative already exists for CAI %s",
					httpx.ErrValidation, c.CAI)
			}
		}
	}
	r.nextID++
	c.ID = r.nextID
	r.correlatives[c.ID] = &c
	return c.ID, nil
}

func (r *memoryInvoicingRepo) ListCorrelatives(ctx context.Context) ([]Correlative, error) {
	defer r.lock()()
	out := make([]Correlative, 0, len(r.correlatives))
	for _, c := range r.correlatives {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memoryInvoicingRepo) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	defer r.lock()()
	for _, existing := range r.invoices {
		if existing.Number == inv.Number {
			return 0, fmt.Errorf("%w: invoice number %s already issued", httpx.ErrConflict, inv.Number)
		}
	}
	r.nextID++
	inv.ID = r.nextID
	r.invoices[inv.ID] = &inv
	return inv.ID, nil
}

func (r *memoryInvoicingRepo) InsertRelation(ctx context.Context, rel InvoiceRelation) (int64, error) {
	defer r.lock()()
	r.nextID++
	rel.ID = r.nextID
	r.relations[rel.ID] = &rel
	return rel.ID, nil
}

func (r *memoryInvoicingRepo) FindInvoiceByPayment(ctx context.Context, kind RelationKind, paymentID int64) (*InvoiceWithCorrelative, error) {
	defer r.lock()()
	var latest *Invoice
	for _, rel := range r.relations {
		if rel.Kind != kind || rel.PaymentID != paymentID {
			continue
		}
		inv := r.invoices[rel.InvoiceID]
		if inv == nil {
			continue
		}
		if latest == nil || inv.ID > latest.ID {
			latest = inv
		}
	}
	if latest == nil {
		return nil, nil
	}
	c := r.correlatives[latest.CorrelativeID]
	return &InvoiceWithCorrelative{Invoice: *latest, Correlative: *c}, nil
}

func newInvoicingService(repo Repository) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, observability.NewMetrics(), logger)
}

func seedCorrelative(repo *memoryInvoicingRepo, rangeStart, rangeEnd, current int64) int64 {
	id, _ := repo.InsertCorrelative(context.Background(), Correlative{
		CAI:               "CAI-001",
		Prefix:            "001-001-01-",
		RangeStart:        rangeStart,
		RangeEnd:          rangeEnd,
		Current:           current,
		AuthorizationDate: time.Now().AddDate(0, -1, 0),
		ExpirationDate:    time.Now().AddDate(1, 0, 0),
		State:             CorrelativeActive,
	})
	return id
}

func invoiceInput(paymentID int64) CreateInvoiceInput {
	return CreateInvoiceInput{
		CAI:        "CAI-001",
		ClientType: ClientFinalConsumer,
		ClientName: "Consumidor Final",
		Subtotal:   decimal.NewFromInt(100),
		Tax:        decimal.NewFromInt(15),
		Total:      decimal.NewFromInt(115),
		Kind:       RelationQuotation,
		PaymentID:  paymentID,
	}
}

func TestCreateInvoiceAllocatesNextNumber(t *testing.T) {
	repo := newMemoryInvoicingRepo()
	seedCorrelative(repo, 1, 100, 1)
	svc := newInvoicingService(repo)

	inv, err := svc.CreateInvoice(context.Background(), invoiceInput(7))
	require.NoError(t, err)
	require.Equal(t, "001-001-01-00000002", inv.Number)
	require.Equal(t, InvoiceIssued, inv.State)
	require.Len(t, repo.relations, 1)

	found, err := svc.GetInvoiceByPayment(context.Background(), RelationQuotation, 7)
	require.NoError(t, err)
	require.Equal(t, inv.Number, found.Invoice.Number)
	require.Equal(t, "CAI-001", found.Correlative.CAI)
}

func TestConcurrentAllocationsAreGapless(t *testing.T) {
	const n = 25
	repo := newMemoryInvoicingRepo()
	seedCorrelative(repo, 1, 100, 1)
	svc := newInvoicingService(repo)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		paymentID := int64(i + 1)
		g.Go(func() error {
			_, err := svc.CreateInvoice(context.Background(), invoiceInput(paymentID))
			return err
		})
	}
	require.NoError(t, g.Wait())

	numbers := make(map[string]bool)
	for _, inv := range repo.invoices {
		numbers[inv.Number] = true
	}
	require.Len(t, numbers, n)
	for i := int64(2); i <= n+1; i++ {
		require.True(t, numbers[FormatNumber("001-001-01-", i)], "missing correlative %d", i)
	}
}

func TestExhaustionFlipsStateAndCreatesNoInvoice(t *testing.T) {
	repo := newMemoryInvoicingRepo()
	id := seedCorrelative(repo, 1, 2, 1)
	svc := newInvoicingService(repo)

	inv, err := svc.CreateInvoice(context.Background(), invoiceInput(1))
	require.NoError(t, err)
	require.Equal(t, "001-001-01-00000002", inv.Number)

	_, err = svc.CreateInvoice(context.Background(), invoiceInput(2))
	require.ErrorIs(t, err, httpx.ErrExhausted)
	require.Equal(t, CorrelativeExhausted, repo.correlatives[id].State)
	// Only the first invoice exists; the failed allocation persisted nothing.
	require.Len(t, repo.invoices, 1)

	// The next attempt finds no ACTIVE correlative at all.
	_, err = svc.CreateInvoice(context.Background(), invoiceInput(3))
	require.ErrorIs(t, err, ErrNoActiveCorrelative)
}

func TestCreateInvoiceRequiresActiveCorrelative(t *testing.T) {
	svc := newInvoicingService(newMemoryInvoicingRepo())

	_, err := svc.CreateInvoice(context.Background(), invoiceInput(1))
	require.ErrorIs(t, err, ErrNoActiveCorrelative)
}

func TestCreateCorrelativeRejectsSecondActive(t *testing.T) {
	repo := newMemoryInvoicingRepo()
	svc := newInvoicingService(repo)

	_, err := svc.CreateCorrelative(context.Background(), Correlative{
		CAI: "CAI-001", Prefix: "001-", RangeStart: 1, RangeEnd: 100,
	})
	require.NoError(t, err)

	_, err = svc.CreateCorrelative(context.Background(), Correlative{
		CAI: "CAI-001", Prefix: "001-", RangeStart: 101, RangeEnd: 200,
	})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestCreateCorrelativeValidatesRange(t *testing.T) {
	svc := newInvoicingService(newMemoryInvoicingRepo())

	_, err := svc.CreateCorrelative(context.Background(), Correlative{
		CAI: "CAI-002", Prefix: "002-", RangeStart: 100, RangeEnd: 1,
	})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestGetInvoiceByPaymentNotFound(t *testing.T) {
	svc := newInvoicingService(newMemoryInvoicingRepo())

	_, err := svc.GetInvoiceByPayment(context.Background(), RelationVisit, 99)
	require.ErrorIs(t, err, httpx.ErrNotFound)
}
