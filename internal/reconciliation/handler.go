package reconciliation

import (
	"encoding/json"
	"net/http"

	"github.com/frahmantamala/payment-reconciliation/internal"
	"github.com/frahmantamala/payment-reconciliation/internal/core/common/validation"
	"github.com/frahmantamala/payment-reconciliation/internal/payment"
	"github.com/frahmantamala/payment-reconciliation/internal/transport"
	"github.com/go-chi/chi"
)

type Handler struct {
	*transport.BaseHandler
	service   *Service
	batchSize int
}

func NewHandler(base *transport.BaseHandler, service *Service, batchSize int) *Handler {
	return &Handler{
		BaseHandler: base,
		service:     service,
		batchSize:   batchSize,
	}
}

type verifyRequest struct {
	Reference string `json:"reference"`
	OrderID   *int64 `json:"order_id,omitempty"`
}

func (r verifyRequest) Validate() *internal.AppError {
	validator := validation.NewValidator()

	validator.Field("reference", r.Reference).Required().MaxLength(128)

	return validator.Validate()
}

const actionReconcileSingle = "reconcile_single"

type reconcileRequest struct {
	Action      string `json:"action"`
	Reference   string `json:"reference"`
	OrderNumber string `json:"order_number,omitempty"`
	OrderID     *int64 `json:"order_id,omitempty"`
}

func (r reconcileRequest) Validate() *internal.AppError {
	validator := validation.NewValidator()

	validator.Field("action", r.Action).Required().Custom(func(value interface{}) *internal.AppError {
		if v, ok := value.(string); ok && v != "" && v != actionReconcileSingle {
			return internal.NewValidationFieldError("action",
				"action must be "+actionReconcileSingle, internal.ErrCodeValidationFailed)
		}
		return nil
	})
	validator.Field("reference", r.Reference).Required().MaxLength(128)

	return validator.Validate()
}

// VerifyPayment handles the checkout-return flow: POST /payments/verify.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.HandleError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleError(w, err)
		return
	}

	result, err := h.service.VerifyPayment(r.Context(), req.Reference, req.OrderID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	h.WriteJSON(w, status, result)
}

// Reconcile handles POST /payments/reconcile for a single reference.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeReconcileError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}
	if err := req.Validate(); err != nil {
		h.writeReconcileError(w, err)
		return
	}

	hints := payment.MatchHints{OrderID: req.OrderID, OrderNumber: req.OrderNumber}
	result, err := h.service.Reconcile(r.Context(), req.Reference, hints)
	if err != nil {
		h.writeReconcileError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": true,
		"data": map[string]interface{}{
			"reference":          result.Reference,
			"reconciled":         result.Applied,
			"transaction_status": result.Status,
			"order_id":           result.OrderID,
			"order_number":       result.OrderNumber,
		},
	})
}

func (h *Handler) writeReconcileError(w http.ResponseWriter, err error) {
	if appErr, ok := internal.IsAppError(err); ok {
		status, _ := appErr.ToHTTPResponse()
		h.WriteJSON(w, status, map[string]interface{}{
			"status": false,
			"error":  appErr.Message,
		})
		return
	}
	h.Logger.Error("reconcile failed", "error", err)
	h.WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"status": false,
		"error":  "internal server error",
	})
}

// Sweep handles POST /payments/sweep, the manual trigger for one sweep pass.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.SweepOnce(r.Context(), h.batchSize)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, summary)
}

// GetTransaction handles GET /payments/transactions/{reference}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		h.HandleError(w, internal.NewValidationError("reference is required", internal.ErrCodeInvalidReference))
		return
	}

	tx, err := h.service.GetTransaction(r.Context(), reference)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, tx)
}
