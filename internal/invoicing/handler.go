package invoicing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/servihogar/servihogar/internal/platform/httpx"
	"github.com/servihogar/servihogar/internal/shared"
)

// Handler exposes invoice emission and correlative management over HTTP.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency *shared.IdempotencyStore
	validate    *validator.Validate
}

// NewHandler creates a new handler. The idempotency store may be nil.
func NewHandler(logger *slog.Logger, service *Service, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		idempotency: idempotency,
		validate:    validator.New(),
	}
}

// MountRoutes registers routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/invoices", h.create)
	r.Get("/invoices/by-payment", h.byPayment)
	r.Post("/correlatives", h.createCorrelative)
	r.Get("/correlatives", h.listCorrelatives)
	r.Post("/correlatives/{id}/deactivate", h.deactivateCorrelative)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	kind, paymentID, count := req.source()
	if count != 1 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed",
			"exactly one of visit_id, quotation_id or membership_id is required")
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.Claim(r.Context(), key, shared.ScopeInvoices); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Conflict", "invoice already created for this idempotency key")
				return
			}
			h.logger.Error("idempotency claim failed", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
	}

	inv, err := h.service.CreateInvoice(r.Context(), CreateInvoiceInput{
		CAI:        req.CAI,
		ClientType: req.ClientType,
		ClientName: req.ClientName,
		RTN:        req.RTN,
		Subtotal:   req.Subtotal,
		Tax:        req.Tax,
		Total:      req.Total,
		Kind:       kind,
		PaymentID:  paymentID,
	})
	if err != nil {
		if key != "" && h.idempotency != nil {
			if derr := h.idempotency.Release(r.Context(), key, shared.ScopeInvoices); derr != nil {
				h.logger.Warn("idempotency release failed", slog.Any("error", derr))
			}
		}
		if errors.Is(err, ErrNoActiveCorrelative) {
			httpx.Problem(w, http.StatusInternalServerError, "No Active Correlative",
				"no active correlative is configured")
			return
		}
		h.logger.Error("create invoice failed",
			slog.String("kind", string(kind)), slog.Int64("payment_id", paymentID),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) byPayment(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		kind RelationKind
		raw  string
	)
	switch {
	case q.Get("visit_id") != "":
		kind, raw = RelationVisit, q.Get("visit_id")
	case q.Get("quotation_id") != "":
		kind, raw = RelationQuotation, q.Get("quotation_id")
	case q.Get("membership_id") != "":
		kind, raw = RelationMembership, q.Get("membership_id")
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed",
			"one of visit_id, quotation_id or membership_id is required")
		return
	}
	paymentID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || paymentID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid payment id")
		return
	}

	found, err := h.service.GetInvoiceByPayment(r.Context(), kind, paymentID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, found)
}

func (h *Handler) createCorrelative(w http.ResponseWriter, r *http.Request) {
	var req CreateCorrelativeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	authDate, err := time.Parse(time.DateOnly, req.AuthorizationDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "authorization_date must be YYYY-MM-DD")
		return
	}
	expDate, err := time.Parse(time.DateOnly, req.ExpirationDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expiration_date must be YYYY-MM-DD")
		return
	}

	c, err := h.service.CreateCorrelative(r.Context(), Correlative{
		CAI:               req.CAI,
		Prefix:            req.Prefix,
		RangeStart:        req.RangeStart,
		RangeEnd:          req.RangeEnd,
		AuthorizationDate: authDate,
		ExpirationDate:    expDate,
	})
	if err != nil {
		h.logger.Error("create correlative failed",
			slog.String("cai", req.CAI), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) listCorrelatives(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListCorrelatives(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) deactivateCorrelative(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid correlative id")
		return
	}
	if err := h.service.DeactivateCorrelative(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "state": CorrelativeInactive})
}
