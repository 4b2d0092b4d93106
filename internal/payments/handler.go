package payments

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/servihogar/servihogar/internal/platform/httpx"
	"github.com/servihogar/servihogar/internal/shared"
)

// Handler exposes the payment state machine over HTTP.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency *shared.IdempotencyStore
	validate    *validator.Validate
}

// NewHandler creates a new handler. The idempotency store may be nil; clients
// then rely solely on the state preconditions to reject duplicates.
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
	r.Post("/payments/process", h.process)
	r.Post("/payments/deny", h.deny)
	r.Post("/payments/accept", h.accept)
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	var req ProcessPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if req.LaborAmount.LessThanOrEqual(decimal.Zero) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "labor_amount must be positive")
		return
	}
	if req.CreditToApply.IsNegative() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "credit_to_apply cannot be negative")
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.Claim(r.Context(), key, shared.ScopePayments); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Conflict", "payment already processed for this idempotency key")
				return
			}
			h.logger.Error("idempotency claim failed", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
	}

	result, err := h.service.ProcessPayment(r.Context(), ProcessPaymentInput{
		QuotationID:        req.QuotationID,
		RequestID:          req.RequestID,
		AccountID:          req.AccountID,
		ReceiptNumber:      req.ReceiptNumber,
		LaborAmount:        req.LaborAmount,
		MembershipDiscount: req.MembershipDiscount,
		UserID:             req.UserID,
		CreditToApply:      req.CreditToApply,
		PayerName:          req.PayerName,
	})
	if err != nil {
		// Free the key so the caller may retry after a rolled back failure.
		if key != "" && h.idempotency != nil {
			if derr := h.idempotency.Release(r.Context(), key, shared.ScopePayments); derr != nil {
				h.logger.Warn("idempotency release failed", slog.Any("error", derr))
			}
		}
		h.logger.Error("process payment failed",
			slog.Int64("quotation_id", req.QuotationID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) deny(w http.ResponseWriter, r *http.Request) {
	var req DenyPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if err := h.service.DenyPayment(r.Context(), req.QuotationID, req.RequestID, req.UserID); err != nil {
		h.logger.Error("deny payment failed",
			slog.Int64("quotation_id", req.QuotationID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"quotation_id": req.QuotationID,
		"request_id":   req.RequestID,
		"state":        QuotationRejected,
	})
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	var req AcceptPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if err := h.service.AcceptPayment(r.Context(), req.QuotationID, req.RequestID); err != nil {
		h.logger.Error("accept payment failed",
			slog.Int64("quotation_id", req.QuotationID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"quotation_id": req.QuotationID,
		"request_id":   req.RequestID,
		"state":        QuotationConfirmed,
	})
}
