package payment

import (
	"context"
	"encoding/json"
	"time"

	orderdm "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/order"
	"github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/payment"
	webhookdm "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/webhook"
)

// GatewayOutcome is the normalized verdict of a gateway signal, whether it
// arrived as a webhook or came back from the verification endpoint.
type GatewayOutcome string

const (
	OutcomeSuccess      GatewayOutcome = "success"
	OutcomeFailed       GatewayOutcome = "failed"
	OutcomeAbandoned    GatewayOutcome = "abandoned"
	OutcomeStillPending GatewayOutcome = "still_pending"
)

// Outcome carries one gateway verdict plus the settlement details that should
// land on the transaction row when the verdict is applied.
type Outcome struct {
	Status          GatewayOutcome
	Amount          int64
	Currency        string
	Channel         string
	Fees            int64
	PaidAt          *time.Time
	CustomerEmail   string
	GatewayResponse json.RawMessage

	// PastDeadline is set by callers that know the local transaction has been
	// stuck longer than the stuck threshold; a still_pending verdict then
	// finalizes to timeout instead of staying open.
	PastDeadline bool
}

// TransactionRepository is the durable store for payment attempts.
type TransactionRepository interface {
	Create(ctx context.Context, tx *payment.Transaction) error
	GetByID(ctx context.Context, id int64) (*payment.Transaction, error)
	GetByProviderReference(ctx context.Context, reference string) (*payment.Transaction, error)
	AttachOrder(ctx context.Context, txID, orderID int64) error
	ListStuck(ctx context.Context, statuses []string, olderThan time.Time, limit int) ([]*payment.Transaction, error)
	// ApplyTransition performs the decision as a single guarded write and
	// reports whether this caller won the transition.
	ApplyTransition(ctx context.Context, d *Decision) (bool, error)
}

// OrderRepository exposes the order lookups the matcher chain needs.
type OrderRepository interface {
	GetByID(ctx context.Context, id int64) (*orderdm.Order, error)
	GetByOrderNumber(ctx context.Context, number string) (*orderdm.Order, error)
	GetByPaymentReference(ctx context.Context, reference string) (*orderdm.Order, error)
	FindPendingByAmount(ctx context.Context, amount, tolerance int64, since time.Time) (*orderdm.Order, error)
}

// LedgerRepository is the append-only webhook event ledger.
type LedgerRepository interface {
	CreateIfNotExists(ctx context.Context, event *webhookdm.Event) (bool, *webhookdm.Event, error)
	MarkProcessed(ctx context.Context, id int64, processingError string) error
}

// RefundRepository stores refund rows independently of the charge lifecycle.
type RefundRepository interface {
	Create(ctx context.Context, refund *payment.Refund) error
	GetByID(ctx context.Context, id int64) (*payment.Refund, error)
	GetByProviderReference(ctx context.Context, reference string) (*payment.Refund, error)
	ListByTransaction(ctx context.Context, transactionID int64) ([]*payment.Refund, error)
	SumActiveByTransaction(ctx context.Context, transactionID int64) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status string, gatewayResponse json.RawMessage, failureReason *string) error
}
