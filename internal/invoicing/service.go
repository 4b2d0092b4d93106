package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/servihogar/servihogar/internal/observability"
	"github.com/servihogar/servihogar/internal/platform/httpx"
)

// ErrNoActiveCorrelative indicates no ACTIVE numbering authorization exists
// for the requested CAI.
var ErrNoActiveCorrelative = errors.New("invoicing: no active correlative")

// Repository defines the data access for correlatives and invoices.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	// ActiveCorrelativeForUpdate locks the ACTIVE row for a CAI (any CAI when
	// empty) for the duration of the enclosing transaction. Nil when none.
	ActiveCorrelativeForUpdate(ctx context.Context, cai string) (*Correlative, error)
	Advance(ctx context.Context, id, current int64) error
	SetCorrelativeState(ctx context.Context, id int64, state CorrelativeState) error
	InsertCorrelative(ctx context.Context, c Correlative) (int64, error)
	ListCorrelatives(ctx context.Context) ([]Correlative, error)
	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	InsertRelation(ctx context.Context, rel InvoiceRelation) (int64, error)
	FindInvoiceByPayment(ctx context.Context, kind RelationKind, paymentID int64) (*InvoiceWithCorrelative, error)
}

// Service implements correlative allocation and invoice emission.
type Service struct {
	repo    Repository
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo Repository, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{repo: repo, metrics: metrics, logger: logger}
}

// CreateInvoiceInput carries the invoice fields plus the single payment
// source the invoice documents.
type CreateInvoiceInput struct {
	CAI        string
	ClientType ClientType
	ClientName string
	RTN        *string
	Subtotal   decimal.Decimal
	Tax        decimal.Decimal
	Total      decimal.Decimal
	Kind       RelationKind
	PaymentID  int64
}

// CreateInvoice allocates the next correlative number and persists the
// invoice and its relation in one transaction. When the range is exhausted
// the correlative is flipped to EXHAUSTED even though the invoice itself is
// not created: the flip is committed outside the aborted transaction, so the
// failure leaves a durable mark.
func (s *Service) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*Invoice, error) {
	if !ValidClientType(in.ClientType) {
		return nil, fmt.Errorf("%w: invalid client type %q", httpx.ErrValidation, in.ClientType)
	}
	if !ValidRelationKind(in.Kind) {
		return nil, fmt.Errorf("%w: invalid relation kind %q", httpx.ErrValidation, in.Kind)
	}
	if in.PaymentID <= 0 {
		return nil, fmt.Errorf("%w: payment id required", httpx.ErrValidation)
	}

	var inv Invoice
	var exhaustedID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		c, err := repo.ActiveCorrelativeForUpdate(ctx, in.CAI)
		if err != nil {
			return err
		}
		if c == nil {
			return ErrNoActiveCorrelative
		}
		if c.Current >= c.RangeEnd {
			exhaustedID = c.ID
			return fmt.Errorf("%w: correlative %s", httpx.ErrExhausted, c.CAI)
		}

		next := c.Current + 1
		if err := repo.Advance(ctx, c.ID, next); err != nil {
			return err
		}

		inv = Invoice{
			Number:        FormatNumber(c.Prefix, next),
			CAI:           c.CAI,
			CorrelativeID: c.ID,
			ClientType:    in.ClientType,
			ClientName:    in.ClientName,
			RTN:           in.RTN,
			Subtotal:      in.Subtotal,
			Tax:           in.Tax,
			Total:         in.Total,
			State:         InvoiceIssued,
		}
		id, err := repo.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		inv.ID = id

		if _, err := repo.InsertRelation(ctx, InvoiceRelation{
			InvoiceID: id, Kind: in.Kind, PaymentID: in.PaymentID,
		}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if exhaustedID != 0 {
			// The allocation transaction rolled back; persist the exhaustion
			// mark on its own so the next caller sees EXHAUSTED immediately.
			if ferr := s.repo.SetCorrelativeState(ctx, exhaustedID, CorrelativeExhausted); ferr != nil {
				s.logger.Error("exhaustion flip failed",
					slog.Int64("correlative_id", exhaustedID), slog.Any("error", ferr))
			}
			s.metrics.CountCorrelativeExhausted()
			s.logger.Warn("correlative range exhausted",
				slog.Int64("correlative_id", exhaustedID), slog.String("cai", in.CAI))
		}
		return nil, err
	}

	s.logger.Info("invoice issued",
		slog.String("number", inv.Number), slog.String("kind", string(in.Kind)),
		slog.Int64("payment_id", in.PaymentID))
	return &inv, nil
}

// CreateCorrelative registers a new numbering authorization. An ACTIVE row
// already existing for the same CAI is reported as a validation failure.
func (s *Service) CreateCorrelative(ctx context.Context, c Correlative) (*Correlative, error) {
	if c.RangeEnd < c.RangeStart {
		return nil, fmt.Errorf("%w: range end before range start", httpx.ErrValidation)
	}
	if c.Current == 0 {
		c.Current = c.RangeStart
	}
	if c.Current < c.RangeStart || c.Current > c.RangeEnd {
		return nil, fmt.Errorf("%w: current correlative outside range", httpx.ErrValidation)
	}
	if c.State == "" {
		c.State = CorrelativeActive
	}
	if !ValidCorrelativeState(c.State) {
		return nil, fmt.Errorf("%w: invalid correlative state %q", httpx.ErrValidation, c.State)
	}

	id, err := s.repo.InsertCorrelative(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id
	return &c, nil
}

// ListCorrelatives returns every numbering authorization.
func (s *Service) ListCorrelatives(ctx context.Context) ([]Correlative, error) {
	return s.repo.ListCorrelatives(ctx)
}

// DeactivateCorrelative flips a correlative to INACTIVE so a replacement CAI
// can be activated.
func (s *Service) DeactivateCorrelative(ctx context.Context, id int64) error {
	return s.repo.SetCorrelativeState(ctx, id, CorrelativeInactive)
}

// GetInvoiceByPayment resolves the most recent invoice for a payment source,
// including its range metadata.
func (s *Service) GetInvoiceByPayment(ctx context.Context, kind RelationKind, paymentID int64) (*InvoiceWithCorrelative, error) {
	if !ValidRelationKind(kind) {
		return nil, fmt.Errorf("%w: invalid relation kind %q", httpx.ErrValidation, kind)
	}
	found, err := s.repo.FindInvoiceByPayment(ctx, kind, paymentID)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: no invoice for %s %d", httpx.ErrNotFound, kind, paymentID)
	}
	return found, nil
}
