package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeOrderConfirmed  = "order.confirmed"
	EventTypeOrderFailed     = "order.failed"
	EventTypeRefundCompleted = "refund.completed"
	EventTypeRefundFailed    = "refund.failed"
)

type OrderConfirmedEvent struct {
	BaseEvent
	OrderID       int64  `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	Reference     string `json:"reference"`
	Amount        int64  `json:"amount"`
	CustomerEmail string `json:"customer_email"`
	// Recovered marks confirmations produced by the timeout-recovery path
	// rather than a live webhook, so subscribers can distinguish the two.
	Recovered bool `json:"recovered"`
}

func NewOrderConfirmedEvent(orderID int64, orderNumber, reference string, amount int64, customerEmail string, recovered bool) *OrderConfirmedEvent {
	return &OrderConfirmedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeOrderConfirmed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"order_id":       orderID,
				"order_number":   orderNumber,
				"reference":      reference,
				"amount":         amount,
				"customer_email": customerEmail,
				"recovered":      recovered,
			},
		},
		OrderID:       orderID,
		OrderNumber:   orderNumber,
		Reference:     reference,
		Amount:        amount,
		CustomerEmail: customerEmail,
		Recovered:     recovered,
	}
}

type OrderFailedEvent struct {
	BaseEvent
	OrderID       int64  `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	Reference     string `json:"reference"`
	Reason        string `json:"reason"`
	CustomerEmail string `json:"customer_email"`
}

func NewOrderFailedEvent(orderID int64, orderNumber, reference, reason, customerEmail string) *OrderFailedEvent {
	return &OrderFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeOrderFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"order_id":       orderID,
				"order_number":   orderNumber,
				"reference":      reference,
				"reason":         reason,
				"customer_email": customerEmail,
			},
		},
		OrderID:       orderID,
		OrderNumber:   orderNumber,
		Reference:     reference,
		Reason:        reason,
		CustomerEmail: customerEmail,
	}
}

type RefundCompletedEvent struct {
	BaseEvent
	RefundID      int64  `json:"refund_id"`
	TransactionID int64  `json:"transaction_id"`
	Reference     string `json:"reference"`
	Amount        int64  `json:"amount"`
}

func NewRefundCompletedEvent(refundID, transactionID int64, reference string, amount int64) *RefundCompletedEvent {
	return &RefundCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeRefundCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"refund_id":      refundID,
				"transaction_id": transactionID,
				"reference":      reference,
				"amount":         amount,
			},
		},
		RefundID:      refundID,
		TransactionID: transactionID,
		Reference:     reference,
		Amount:        amount,
	}
}

type RefundFailedEvent struct {
	BaseEvent
	RefundID      int64  `json:"refund_id"`
	TransactionID int64  `json:"transaction_id"`
	Reference     string `json:"reference"`
	Reason        string `json:"reason"`
}

func NewRefundFailedEvent(refundID, transactionID int64, reference, reason string) *RefundFailedEvent {
	return &RefundFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeRefundFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"refund_id":      refundID,
				"transaction_id": transactionID,
				"reference":      reference,
				"reason":         reason,
			},
		},
		RefundID:      refundID,
		TransactionID: transactionID,
		Reference:     reference,
		Reason:        reason,
	}
}
