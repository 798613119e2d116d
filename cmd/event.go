package cmd

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/payment-reconciliation/internal/core/events"
)

// registerEventSubscribers wires the in-process listeners for order and
// refund lifecycle events. These are the notification trigger points; actual
// delivery (email, order service callback) belongs to downstream systems.
func registerEventSubscribers(bus *events.EventBus, log *slog.Logger) {
	bus.Subscribe(events.EventTypeOrderConfirmed, func(ctx context.Context, e events.Event) error {
		if ev, ok := e.(*events.OrderConfirmedEvent); ok {
			log.Info("order confirmed",
				"order_id", ev.OrderID,
				"order_number", ev.OrderNumber,
				"reference", ev.Reference,
				"amount", ev.Amount,
				"recovered", ev.Recovered)
		}
		return nil
	})

	bus.Subscribe(events.EventTypeOrderFailed, func(ctx context.Context, e events.Event) error {
		if ev, ok := e.(*events.OrderFailedEvent); ok {
			log.Info("order cancelled after payment failure",
				"order_id", ev.OrderID,
				"order_number", ev.OrderNumber,
				"reference", ev.Reference,
				"reason", ev.Reason)
		}
		return nil
	})

	bus.Subscribe(events.EventTypeRefundCompleted, func(ctx context.Context, e events.Event) error {
		if ev, ok := e.(*events.RefundCompletedEvent); ok {
			log.Info("refund completed",
				"refund_id", ev.RefundID,
				"transaction_id", ev.TransactionID,
				"amount", ev.Amount)
		}
		return nil
	})

	bus.Subscribe(events.EventTypeRefundFailed, func(ctx context.Context, e events.Event) error {
		if ev, ok := e.(*events.RefundFailedEvent); ok {
			log.Warn("refund failed",
				"refund_id", ev.RefundID,
				"transaction_id", ev.TransactionID,
				"reason", ev.Reason)
		}
		return nil
	})
}
