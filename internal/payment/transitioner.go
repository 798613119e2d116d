package payment

import (
	"context"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/payment-reconciliation/internal"
	orderdm "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/order"
	"github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-reconciliation/internal/core/events"
)

// AmountTolerance is one currency minor unit (1 kobo / 1 cent). Gateways and
// order totals can disagree by a rounding step; anything beyond that is a
// mismatch that needs a human.
const AmountTolerance int64 = 1

type FulfillmentAction string

const (
	ActionNone    FulfillmentAction = ""
	ActionConfirm FulfillmentAction = "confirm"
	ActionCancel  FulfillmentAction = "cancel"
)

// Decision is the output of Decide: everything ApplyTransition needs to
// finalize the transaction and its order in one guarded write.
type Decision struct {
	Reference string
	NoOp      bool

	// FromStatuses guards the conditional UPDATE; a row no longer in one of
	// these states means a concurrent writer finalized first.
	FromStatuses []string
	TxStatus     string

	PaidAt          *time.Time
	Channel         string
	Fees            int64
	GatewayResponse []byte

	OrderID            *int64
	OrderPaymentStatus string
	Action             FulfillmentAction

	// OrderOnly marks a decision whose transaction row is already final; the
	// write exists to confirm a late-matched order, so whether this caller won
	// is judged on the order row instead of the transaction row.
	OrderOnly bool
}

func noOpDecision(reference string) *Decision {
	return &Decision{Reference: reference, NoOp: true}
}

// Decide computes the allowed next state for a transaction given a gateway
// verdict. It is pure: no storage access, no clock reads beyond the inputs.
//
// The invariants it enforces:
//   - success is terminal and never downgraded; a failed verdict against a
//     success row is a ReconciliationConflict.
//   - success over failed/timeout is the one-directional recovery upgrade.
//   - a success verdict whose amount differs from an already-settled amount
//     is a conflict, never an overwrite.
//   - a settled orphan whose order is matched later still gets the order
//     confirmed; the transaction row is left untouched.
//   - still_pending finalizes to timeout only past the local deadline.
func Decide(tx *payment.Transaction, ord *orderdm.Order, out Outcome) (*Decision, error) {
	switch out.Status {
	case OutcomeSuccess:
		return decideSuccess(tx, ord, out)
	case OutcomeFailed, OutcomeAbandoned:
		return decideFailure(tx, ord)
	case OutcomeStillPending:
		return decideStillPending(tx, ord, out)
	default:
		return noOpDecision(tx.ProviderReference), nil
	}
}

func decideSuccess(tx *payment.Transaction, ord *orderdm.Order, out Outcome) (*Decision, error) {
	if !payment.IsSettleable(tx.Status) {
		if out.Amount != 0 && out.Amount != tx.Amount {
			return nil, errors.ErrReconciliationConflict
		}
		// a charge that settled as an orphan leaves its order behind; once
		// the order is matched, confirm it without rewriting the settled
		// transaction
		if ord != nil && ord.PaymentStatus != orderdm.PaymentStatusPaid {
			if amountDiff(ord.TotalAmount, tx.Amount) > AmountTolerance {
				return nil, errors.ErrAmountMismatch
			}
			return &Decision{
				Reference:          tx.ProviderReference,
				FromStatuses:       []string{payment.StatusSuccess},
				TxStatus:           payment.StatusSuccess,
				OrderID:            &ord.ID,
				OrderPaymentStatus: orderdm.PaymentStatusPaid,
				Action:             ActionConfirm,
				OrderOnly:          true,
			}, nil
		}
		return noOpDecision(tx.ProviderReference), nil
	}

	if ord != nil && amountDiff(ord.TotalAmount, out.Amount) > AmountTolerance {
		return nil, errors.ErrAmountMismatch
	}

	d := &Decision{
		Reference: tx.ProviderReference,
		FromStatuses: []string{
			payment.StatusPending, payment.StatusInitialized,
			payment.StatusFailed, payment.StatusTimeout,
			payment.StatusOrphaned, payment.StatusMigrated,
		},
		TxStatus:        payment.StatusSuccess,
		PaidAt:          out.PaidAt,
		Channel:         out.Channel,
		Fees:            out.Fees,
		GatewayResponse: out.GatewayResponse,
	}
	if ord != nil {
		d.OrderID = &ord.ID
		d.OrderPaymentStatus = orderdm.PaymentStatusPaid
		d.Action = ActionConfirm
	}
	return d, nil
}

func decideFailure(tx *payment.Transaction, ord *orderdm.Order) (*Decision, error) {
	if tx.Status == payment.StatusSuccess {
		return nil, errors.ErrReconciliationConflict
	}
	if tx.Status == payment.StatusFailed {
		return noOpDecision(tx.ProviderReference), nil
	}

	d := &Decision{
		Reference: tx.ProviderReference,
		FromStatuses: []string{
			payment.StatusPending, payment.StatusInitialized,
			payment.StatusTimeout, payment.StatusOrphaned,
		},
		TxStatus: payment.StatusFailed,
	}
	if ord != nil && ord.PaymentStatus != orderdm.PaymentStatusPaid {
		d.OrderID = &ord.ID
		d.OrderPaymentStatus = orderdm.PaymentStatusFailed
		d.Action = ActionCancel
	}
	return d, nil
}

func decideStillPending(tx *payment.Transaction, ord *orderdm.Order, out Outcome) (*Decision, error) {
	if payment.IsTerminal(tx.Status) || tx.Status == payment.StatusTimeout {
		return noOpDecision(tx.ProviderReference), nil
	}
	// inside the deadline the absence of confirmation is not a verdict
	if !out.PastDeadline {
		return noOpDecision(tx.ProviderReference), nil
	}

	d := &Decision{
		Reference:    tx.ProviderReference,
		FromStatuses: []string{payment.StatusPending, payment.StatusInitialized},
		TxStatus:     payment.StatusTimeout,
	}
	if ord != nil && ord.PaymentStatus != orderdm.PaymentStatusPaid {
		d.OrderID = &ord.ID
		d.OrderPaymentStatus = orderdm.PaymentStatusFailed
		d.Action = ActionCancel
	}
	return d, nil
}

func amountDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

// Transitioner applies decisions through the guarded store write and emits
// the order lifecycle events that downstream notification listeners consume.
type Transitioner struct {
	store  TransactionRepository
	bus    *events.EventBus
	logger *slog.Logger
}

func NewTransitioner(store TransactionRepository, bus *events.EventBus, logger *slog.Logger) *Transitioner {
	return &Transitioner{
		store:  store,
		bus:    bus,
		logger: logger,
	}
}

// Apply executes a decision. The store write is the only synchronization
// primitive: when two paths race, exactly one sees RowsAffected > 0 and owns
// the side effects. Event publication is fire-and-forget and never rolls the
// payment write back.
func (t *Transitioner) Apply(ctx context.Context, d *Decision, ord *orderdm.Order, recovered bool) (bool, error) {
	if d == nil || d.NoOp {
		return false, nil
	}

	applied, err := t.store.ApplyTransition(ctx, d)
	if err != nil {
		t.logger.Error("transition write failed",
			"reference", d.Reference,
			"target_status", d.TxStatus,
			"error", err)
		return false, err
	}
	if !applied {
		t.logger.Info("transition lost race, state already finalized",
			"reference", d.Reference,
			"target_status", d.TxStatus)
		return false, nil
	}

	t.logger.Info("transaction transitioned",
		"reference", d.Reference,
		"status", d.TxStatus,
		"action", string(d.Action),
		"recovered", recovered)

	if ord != nil && t.bus != nil {
		switch d.Action {
		case ActionConfirm:
			t.bus.Publish(ctx, events.NewOrderConfirmedEvent(
				ord.ID, ord.OrderNumber, d.Reference, ord.TotalAmount, ord.CustomerEmail, recovered))
		case ActionCancel:
			t.bus.Publish(ctx, events.NewOrderFailedEvent(
				ord.ID, ord.OrderNumber, d.Reference, d.TxStatus, ord.CustomerEmail))
		}
	}

	return true, nil
}
