package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal"
	webhookdm "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/webhook"
	"github.com/frahmantamala/payment-reconciliation/internal/payment"
	"github.com/frahmantamala/payment-reconciliation/internal/transport"
)

// EventIDHeader carries the gateway's delivery id when it sends one. Without
// it the hash of the raw body stands in, which still collapses byte-identical
// redeliveries to one ledger row.
const EventIDHeader = "X-Gateway-Event-ID"

// ChargeProcessor settles a charge verdict against local state.
type ChargeProcessor interface {
	ProcessCharge(ctx context.Context, reference string, out payment.Outcome, hints payment.MatchHints) error
}

// RefundResolver finalizes a pending refund from a transfer event.
type RefundResolver interface {
	Resolve(ctx context.Context, providerRefundReference string, succeeded bool, reason string, raw json.RawMessage) error
}

// LedgerStore is the dedup ledger the ingress writes through.
type LedgerStore interface {
	CreateIfNotExists(ctx context.Context, event *webhookdm.Event) (bool, *webhookdm.Event, error)
	MarkProcessed(ctx context.Context, id int64, processingError string) error
	ListUnprocessed(ctx context.Context, limit int) ([]*webhookdm.Event, error)
}

// Handler is the webhook ingress. The pipeline is strict and ordered:
// signature, parse, replay window, ledger dedup, dispatch. Anything past the
// dedup step runs at most once per distinct delivery.
type Handler struct {
	*transport.BaseHandler
	ledger  LedgerStore
	charges ChargeProcessor
	refunds RefundResolver
	cfg     internal.WebhookConfig

	now func() time.Time
}

func NewHandler(base *transport.BaseHandler, ledger LedgerStore, charges ChargeProcessor, refunds RefundResolver, cfg internal.WebhookConfig) *Handler {
	return &Handler{
		BaseHandler: base,
		ledger:      ledger,
		charges:     charges,
		refunds:     refunds,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.Logger.Error("failed to read webhook body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "cannot read request body")
		return
	}

	if !VerifySignature(body, r.Header.Get(h.cfg.SignatureHeader), h.cfg.Secret) {
		h.Logger.Warn("webhook signature verification failed",
			"remote_addr", r.RemoteAddr)
		h.HandleError(w, internal.ErrSignatureInvalid)
		return
	}

	event, err := ParseEvent(body)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if stamp := event.OccurredAt(); !stamp.IsZero() && h.now().Sub(stamp) > h.cfg.ReplayWindow {
		h.Logger.Warn("webhook event outside replay window",
			"event_type", event.Kind(),
			"reference", event.Reference(),
			"event_time", stamp)
		h.HandleError(w, internal.ErrReplayDetected)
		return
	}

	entry := &webhookdm.Event{
		Provider:             h.cfg.Provider,
		ProviderEventID:      h.eventID(r, body),
		EventType:            event.Kind(),
		TransactionReference: event.Reference(),
		Payload:              body,
		SignatureValid:       true,
		ReceivedAt:           h.now(),
	}
	created, stored, err := h.ledger.CreateIfNotExists(r.Context(), entry)
	if err != nil {
		h.Logger.Error("failed to record webhook event", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "failed to record event")
		return
	}
	if !created {
		// only a delivery that fully processed is a duplicate; a redelivery
		// after a processing failure is the gateway's retry and runs the
		// dispatch again. The downstream writes are idempotent, so a retry
		// racing a still in-flight first delivery is harmless.
		if stored.ProcessedAt != nil && stored.ProcessingError == "" {
			h.Logger.Info("duplicate webhook delivery ignored",
				"event_type", event.Kind(),
				"provider_event_id", entry.ProviderEventID)
			h.WriteJSON(w, http.StatusOK, map[string]interface{}{
				"status":    "success",
				"duplicate": true,
			})
			return
		}
		h.Logger.Info("redelivery of a failed webhook event, retrying",
			"event_type", event.Kind(),
			"provider_event_id", entry.ProviderEventID,
			"previous_error", stored.ProcessingError)
	}

	if err := h.dispatch(r.Context(), event, body); err != nil {
		if markErr := h.ledger.MarkProcessed(r.Context(), stored.ID, err.Error()); markErr != nil {
			h.Logger.Error("failed to mark event processing error", "error", markErr)
		}
		h.Logger.Error("webhook event processing failed",
			"event_type", event.Kind(),
			"reference", event.Reference(),
			"error", err)
		h.HandleServiceError(w, err)
		return
	}

	if err := h.ledger.MarkProcessed(r.Context(), stored.ID, ""); err != nil {
		h.Logger.Error("failed to mark event processed", "error", err)
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "success"})
}

// ReplayUnprocessed re-dispatches ledger entries that never finished
// processing, usually because the process died mid-flight and the gateway
// gave up redelivering. Signature and replay checks are skipped: entries
// only enter the ledger after both passed at ingress.
func (h *Handler) ReplayUnprocessed(ctx context.Context, limit int) (int, error) {
	entries, err := h.ledger.ListUnprocessed(ctx, limit)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, entry := range entries {
		event, err := ParseEvent(entry.Payload)
		if err != nil {
			if markErr := h.ledger.MarkProcessed(ctx, entry.ID, err.Error()); markErr != nil {
				h.Logger.Error("failed to mark unparseable ledger entry", "error", markErr)
			}
			continue
		}

		if err := h.dispatch(ctx, event, entry.Payload); err != nil {
			h.Logger.Error("webhook replay failed",
				"event_type", entry.EventType,
				"reference", entry.TransactionReference,
				"error", err)
			if markErr := h.ledger.MarkProcessed(ctx, entry.ID, err.Error()); markErr != nil {
				h.Logger.Error("failed to mark replayed event", "error", markErr)
			}
			continue
		}

		if err := h.ledger.MarkProcessed(ctx, entry.ID, ""); err != nil {
			h.Logger.Error("failed to mark replayed event processed", "error", err)
		}
		replayed++
	}

	if len(entries) > 0 {
		h.Logger.Info("webhook ledger replay finished",
			"found", len(entries),
			"replayed", replayed)
	}
	return replayed, nil
}

func (h *Handler) dispatch(ctx context.Context, event InboundEvent, raw []byte) error {
	switch e := event.(type) {
	case *ChargeSucceeded:
		return h.charges.ProcessCharge(ctx, e.Reference(), chargeOutcome(payment.OutcomeSuccess, e.ChargeData, raw), chargeHints(e.ChargeData))
	case *ChargeFailed:
		status := payment.OutcomeFailed
		if e.Status == "abandoned" {
			status = payment.OutcomeAbandoned
		}
		return h.charges.ProcessCharge(ctx, e.Reference(), chargeOutcome(status, e.ChargeData, raw), chargeHints(e.ChargeData))
	case *TransferSucceeded:
		return h.refunds.Resolve(ctx, e.Reference(), true, "", raw)
	case *TransferFailed:
		return h.refunds.Resolve(ctx, e.Reference(), false, e.Reason, raw)
	case *DisputeCreated:
		// recorded in the ledger for ops visibility, no state change
		h.Logger.Warn("dispute created",
			"reference", e.Reference(),
			"category", e.Category)
		return nil
	case *UnhandledEvent:
		h.Logger.Info("unhandled webhook event type acknowledged", "event_type", e.Type)
		return nil
	default:
		return nil
	}
}

func (h *Handler) eventID(r *http.Request, body []byte) string {
	if id := r.Header.Get(EventIDHeader); id != "" {
		return id
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func chargeOutcome(status payment.GatewayOutcome, d ChargeData, raw []byte) payment.Outcome {
	out := payment.Outcome{
		Status:          status,
		Amount:          d.Amount,
		Currency:        d.Currency,
		Channel:         d.Channel,
		Fees:            d.Fees,
		PaidAt:          d.PaidAt,
		GatewayResponse: raw,
	}
	if d.Customer != nil {
		out.CustomerEmail = d.Customer.Email
	}
	return out
}

func chargeHints(d ChargeData) payment.MatchHints {
	if d.Metadata == nil {
		return payment.MatchHints{}
	}
	return payment.MatchHints{
		OrderID:     d.Metadata.OrderID,
		OrderNumber: d.Metadata.OrderNumber,
	}
}
