package reconciliation

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal"
	orderdm "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/order"
	paymentdm "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-reconciliation/internal/payment"
	"gorm.io/gorm"
)

// GatewayAPI is the slice of the gateway client reconciliation needs.
type GatewayAPI interface {
	VerifyTransaction(ctx context.Context, reference string) (*payment.Outcome, error)
}

// Service drives settlement: it takes gateway verdicts from webhooks or from
// active verification, matches them to orders and applies state transitions.
type Service struct {
	transactions   *payment.TransactionService
	orders         payment.OrderRepository
	matcher        *payment.Matcher
	transitioner   *payment.Transitioner
	gateway        GatewayAPI
	stuckThreshold time.Duration
	logger         *slog.Logger
}

func NewService(
	transactions *payment.TransactionService,
	orders payment.OrderRepository,
	matcher *payment.Matcher,
	transitioner *payment.Transitioner,
	gw GatewayAPI,
	stuckThreshold time.Duration,
	logger *slog.Logger,
) *Service {
	return &Service{
		transactions:   transactions,
		orders:         orders,
		matcher:        matcher,
		transitioner:   transitioner,
		gateway:        gw,
		stuckThreshold: stuckThreshold,
		logger:         logger,
	}
}

// ProcessCharge settles a charge verdict delivered by webhook.
func (s *Service) ProcessCharge(ctx context.Context, reference string, out payment.Outcome, hints payment.MatchHints) error {
	tx, err := s.transactions.GetOrCreate(ctx, reference, out, nil)
	if err != nil {
		return err
	}

	ord, err := s.resolveOrder(ctx, tx, reference, out.Amount, hints)
	if err != nil {
		return err
	}

	decision, err := payment.Decide(tx, ord, out)
	if err != nil {
		return err
	}

	_, err = s.transitioner.Apply(ctx, decision, ord, false)
	return err
}

// ReconcileResult reports what one reconciliation pass did to a transaction.
type ReconcileResult struct {
	Reference      string `json:"reference"`
	PreviousStatus string `json:"previous_status"`
	Status         string `json:"status"`
	Applied        bool   `json:"applied"`
	Recovered      bool   `json:"recovered"`
	OrderID        *int64 `json:"order_id,omitempty"`
	OrderNumber    string `json:"order_number,omitempty"`
	Orphaned       bool   `json:"orphaned"`
}

// Reconcile fetches the authoritative gateway state for a reference and
// converges local state towards it. This is the path that upgrades a
// transaction the sweeper gave up on once the gateway confirms the payment
// actually went through.
func (s *Service) Reconcile(ctx context.Context, reference string, hints payment.MatchHints) (*ReconcileResult, error) {
	out, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, internal.ErrGatewayUnavailable
	}

	tx, err := s.transactions.GetOrCreate(ctx, reference, *out, nil)
	if err != nil {
		return nil, err
	}
	previousStatus := tx.Status

	recovered := out.Status == payment.OutcomeSuccess &&
		(tx.Status == paymentdm.StatusFailed || tx.Status == paymentdm.StatusTimeout)

	out.PastDeadline = time.Since(tx.CreatedAt) >= s.stuckThreshold

	ord, err := s.resolveOrder(ctx, tx, reference, out.Amount, hints)
	if err != nil {
		return nil, err
	}

	decision, err := payment.Decide(tx, ord, *out)
	if err != nil {
		return nil, err
	}

	applied, err := s.transitioner.Apply(ctx, decision, ord, recovered)
	if err != nil {
		return nil, err
	}

	current, err := s.transactions.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{
		Reference:      reference,
		PreviousStatus: previousStatus,
		Status:         current.Status,
		Applied:        applied,
		Recovered:      recovered && applied,
		OrderID:        current.OrderID,
		Orphaned:       current.OrderID == nil,
	}
	if ord != nil {
		result.OrderNumber = ord.OrderNumber
	}
	return result, nil
}

// VerifyPaymentResult is the response of the synchronous verify endpoint.
type VerifyPaymentResult struct {
	Success       bool       `json:"success"`
	PaymentStatus string     `json:"payment_status"`
	Reference     string     `json:"reference"`
	Amount        int64      `json:"amount"`
	Channel       string     `json:"channel,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CustomerEmail string     `json:"customer_email,omitempty"`
	OrderID       *int64     `json:"order_id,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// VerifyPayment is the checkout-return path: the shopper came back from the
// gateway and the storefront wants an immediate answer. A successful payment
// with no claimable order is an orphan: the transaction row is kept so the
// money stays visible, and the caller gets a not-found error.
func (s *Service) VerifyPayment(ctx context.Context, reference string, orderID *int64) (*VerifyPaymentResult, error) {
	out, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, internal.ErrGatewayUnavailable
	}

	tx, err := s.transactions.GetOrCreate(ctx, reference, *out, nil)
	if err != nil {
		return nil, err
	}

	ord, err := s.resolveOrder(ctx, tx, reference, out.Amount, payment.MatchHints{OrderID: orderID})
	if err != nil {
		return nil, err
	}

	if out.Status == payment.OutcomeSuccess && ord == nil {
		s.logger.Warn("verified payment has no claimable order, kept as orphan",
			"reference", reference,
			"amount", out.Amount)
		return nil, internal.ErrOrderNotFound
	}

	decision, err := payment.Decide(tx, ord, *out)
	if err != nil {
		return nil, err
	}
	if _, err := s.transitioner.Apply(ctx, decision, ord, false); err != nil {
		return nil, err
	}

	result := &VerifyPaymentResult{
		Success:       out.Status == payment.OutcomeSuccess,
		PaymentStatus: string(out.Status),
		Reference:     reference,
		Amount:        out.Amount,
		Channel:       out.Channel,
		PaidAt:        out.PaidAt,
		CustomerEmail: out.CustomerEmail,
	}
	if !result.Success {
		result.Error = "payment was not successful"
	}
	if ord != nil {
		result.OrderID = &ord.ID
	}
	return result, nil
}

// GetTransaction returns a transaction row by its provider reference.
func (s *Service) GetTransaction(ctx context.Context, reference string) (*paymentdm.Transaction, error) {
	tx, err := s.transactions.GetByReference(ctx, reference)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

func (s *Service) resolveOrder(ctx context.Context, tx *paymentdm.Transaction, reference string, amount int64, hints payment.MatchHints) (*orderdm.Order, error) {
	if tx.OrderID != nil {
		ord, err := s.orders.GetByID(ctx, *tx.OrderID)
		if err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return ord, nil
	}

	res, err := s.matcher.Match(ctx, reference, amount, hints)
	if err != nil {
		return nil, err
	}
	if res.Orphaned {
		return nil, nil
	}

	if err := s.transactions.AttachOrder(ctx, tx, res.Order.ID); err != nil {
		return nil, err
	}
	s.logger.Info("payment matched to order",
		"reference", reference,
		"order_id", res.Order.ID,
		"strategy", res.Strategy)
	return res.Order, nil
}
