package webhook

import (
	"encoding/json"
	"time"

	errors "github.com/frahmantamala/payment-reconciliation/internal"
)

const (
	EventChargeSuccess   = "charge.success"
	EventChargeFailed    = "charge.failed"
	EventTransferSuccess = "transfer.success"
	EventTransferFailed  = "transfer.failed"
	EventDisputeCreated  = "charge.dispute.create"
)

// Envelope is the outer shape every gateway notification shares.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type CustomerData struct {
	Email string `json:"email"`
}

// EventMetadata is the merchant-supplied passthrough block. Either field may
// be absent; both are hints for the order matcher, not authoritative links.
type EventMetadata struct {
	OrderID     *int64 `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

// ChargeData is the payload of charge.* events.
type ChargeData struct {
	Reference       string         `json:"reference"`
	Amount          int64          `json:"amount"`
	Currency        string         `json:"currency"`
	Status          string         `json:"status"`
	Channel         string         `json:"channel"`
	Fees            int64          `json:"fees"`
	GatewayResponse string         `json:"gateway_response"`
	PaidAt          *time.Time     `json:"paid_at"`
	CreatedAt       time.Time      `json:"created_at"`
	Customer        *CustomerData  `json:"customer"`
	Metadata        *EventMetadata `json:"metadata"`
}

// TransferData is the payload of transfer.* events, which resolve refunds.
type TransferData struct {
	Reference string    `json:"reference"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// DisputeData is the payload of dispute events. Disputes are recorded for
// visibility only and never change payment state.
type DisputeData struct {
	Reference string    `json:"reference"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// InboundEvent is the closed set of notifications the ingress understands.
// Unknown event types parse into UnhandledEvent so the ledger still records
// them and the gateway gets its acknowledgment.
type InboundEvent interface {
	Kind() string
	Reference() string
	OccurredAt() time.Time
}

type ChargeSucceeded struct{ ChargeData }

func (e *ChargeSucceeded) Kind() string          { return EventChargeSuccess }
func (e *ChargeSucceeded) Reference() string     { return e.ChargeData.Reference }
func (e *ChargeSucceeded) OccurredAt() time.Time { return e.CreatedAt }

type ChargeFailed struct{ ChargeData }

func (e *ChargeFailed) Kind() string          { return EventChargeFailed }
func (e *ChargeFailed) Reference() string     { return e.ChargeData.Reference }
func (e *ChargeFailed) OccurredAt() time.Time { return e.CreatedAt }

type TransferSucceeded struct{ TransferData }

func (e *TransferSucceeded) Kind() string          { return EventTransferSuccess }
func (e *TransferSucceeded) Reference() string     { return e.TransferData.Reference }
func (e *TransferSucceeded) OccurredAt() time.Time { return e.CreatedAt }

type TransferFailed struct{ TransferData }

func (e *TransferFailed) Kind() string          { return EventTransferFailed }
func (e *TransferFailed) Reference() string     { return e.TransferData.Reference }
func (e *TransferFailed) OccurredAt() time.Time { return e.CreatedAt }

type DisputeCreated struct{ DisputeData }

func (e *DisputeCreated) Kind() string          { return EventDisputeCreated }
func (e *DisputeCreated) Reference() string     { return e.DisputeData.Reference }
func (e *DisputeCreated) OccurredAt() time.Time { return e.CreatedAt }

type UnhandledEvent struct {
	Type string
	Raw  json.RawMessage
}

func (e *UnhandledEvent) Kind() string          { return e.Type }
func (e *UnhandledEvent) Reference() string     { return "" }
func (e *UnhandledEvent) OccurredAt() time.Time { return time.Time{} }

func newParseError(cause error) *errors.AppError {
	return errors.NewValidationError("event payload could not be parsed", errors.ErrCodeUnparseableEvent).WithCause(cause)
}

// ParseEvent decodes a raw webhook body into its typed event.
func ParseEvent(body []byte) (InboundEvent, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, newParseError(err)
	}
	if env.Event == "" {
		return nil, errors.ErrUnparseableEvent
	}

	switch env.Event {
	case EventChargeSuccess:
		var d ChargeData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, newParseError(err)
		}
		return &ChargeSucceeded{d}, nil
	case EventChargeFailed:
		var d ChargeData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, newParseError(err)
		}
		return &ChargeFailed{d}, nil
	case EventTransferSuccess:
		var d TransferData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, newParseError(err)
		}
		return &TransferSucceeded{d}, nil
	case EventTransferFailed:
		var d TransferData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, newParseError(err)
		}
		return &TransferFailed{d}, nil
	case EventDisputeCreated:
		var d DisputeData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, newParseError(err)
		}
		return &DisputeCreated{d}, nil
	default:
		return &UnhandledEvent{Type: env.Event, Raw: body}, nil
	}
}
