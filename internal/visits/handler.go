package visits

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/servihogar/servihogar/internal/platform/httpx"
)

// Handler exposes the visit payment workflow over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/visit-payments", h.create)
	r.Post("/visit-payments/confirm", h.confirm)
	r.Post("/visit-payments/deny", h.deny)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateVisitPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	vp, err := h.service.Create(r.Context(), req.RequestID, req.Amount, req.ReceiptNumber)
	if err != nil {
		h.logger.Error("create visit payment failed",
			slog.Int64("request_id", req.RequestID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, vp)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Confirm, StateApproved)
}

func (h *Handler) deny(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Deny, StateRejected)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) error, to State) {
	var req TransitionVisitPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if err := fn(r.Context(), req.RequestID); err != nil {
		h.logger.Error("visit payment transition failed",
			slog.Int64("request_id", req.RequestID),
			slog.String("target", string(to)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"request_id": req.RequestID,
		"state":      to,
	})
}
