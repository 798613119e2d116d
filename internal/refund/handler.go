package refund

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/frahmantamala/payment-reconciliation/internal"
	"github.com/frahmantamala/payment-reconciliation/internal/core/common/validation"
	"github.com/frahmantamala/payment-reconciliation/internal/transport"
	"github.com/go-chi/chi"
)

type Handler struct {
	*transport.BaseHandler
	service *Service
}

func NewHandler(base *transport.BaseHandler, service *Service) *Handler {
	return &Handler{
		BaseHandler: base,
		service:     service,
	}
}

type createRefundRequest struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason,omitempty"`
}

func (r createRefundRequest) Validate() *internal.AppError {
	validator := validation.NewValidator()

	validator.Field("reference", r.Reference).Required().MaxLength(128)
	validator.Field("amount", r.Amount).Required().MinInt(1, internal.ErrCodeInvalidAmount)

	return validator.Validate()
}

// CreateRefund handles POST /refunds.
func (h *Handler) CreateRefund(w http.ResponseWriter, r *http.Request) {
	var req createRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.HandleError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleError(w, err)
		return
	}

	refund, err := h.service.CreateRefund(r.Context(), req.Reference, req.Amount, req.Reason)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, refund)
}

// GetRefund handles GET /refunds/{id}.
func (h *Handler) GetRefund(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.HandleError(w, internal.NewValidationError("invalid refund id", internal.ErrCodeValidationFailed))
		return
	}

	refund, err := h.service.GetRefund(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, refund)
}

// ListRefunds handles GET /refunds?reference=...
func (h *Handler) ListRefunds(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	if reference == "" {
		h.HandleError(w, internal.NewValidationError("reference query parameter is required", internal.ErrCodeInvalidReference))
		return
	}

	refunds, err := h.service.ListRefunds(r.Context(), reference)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"refunds": refunds})
}
