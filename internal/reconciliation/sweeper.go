package reconciliation

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal"
	"github.com/frahmantamala/payment-reconciliation/internal/payment"
)

// SweepResult is the outcome for a single stuck transaction.
type SweepResult struct {
	Reference      string `json:"reference"`
	PreviousStatus string `json:"previous_status"`
	Status         string `json:"status,omitempty"`
	Error          string `json:"error,omitempty"`
}

// SweepSummary aggregates one sweep pass.
type SweepSummary struct {
	StartedAt  time.Time     `json:"started_at"`
	DurationMs int64         `json:"duration_ms"`
	TotalFound int           `json:"total_found"`
	Processed  int           `json:"processed"`
	Failed     int           `json:"failed"`
	Results    []SweepResult `json:"results"`
}

// SweepOnce finds transactions stuck in an open state past the threshold and
// reconciles each against the gateway. One bad transaction never aborts the
// batch; its error is recorded and the sweep moves on.
func (s *Service) SweepOnce(ctx context.Context, batchSize int) (*SweepSummary, error) {
	start := time.Now()

	stuck, err := s.transactions.ListStuck(ctx, s.stuckThreshold, batchSize)
	if err != nil {
		return nil, err
	}

	summary := &SweepSummary{
		StartedAt:  start,
		TotalFound: len(stuck),
		Results:    make([]SweepResult, 0, len(stuck)),
	}

	for _, tx := range stuck {
		result := SweepResult{
			Reference:      tx.ProviderReference,
			PreviousStatus: tx.Status,
		}

		hints := payment.MatchHints{OrderID: tx.OrderID}
		itemCtx, cancel := internal.WithTimeout(ctx, 0)
		res, err := s.Reconcile(itemCtx, tx.ProviderReference, hints)
		cancel()
		if err != nil {
			result.Error = err.Error()
			summary.Failed++
			s.logger.Error("sweep reconciliation failed",
				"reference", tx.ProviderReference,
				"error", err)
		} else {
			result.Status = res.Status
			summary.Processed++
		}
		summary.Results = append(summary.Results, result)
	}

	summary.DurationMs = time.Since(start).Milliseconds()
	s.logger.Info("timeout sweep completed",
		"total_found", summary.TotalFound,
		"processed", summary.Processed,
		"failed", summary.Failed,
		"duration_ms", summary.DurationMs)
	return summary, nil
}

// LedgerReplayer re-dispatches webhook ledger entries that never finished
// processing; the sweeper runs it each cycle so deliveries dropped mid-flight
// are not lost when the gateway stops redelivering.
type LedgerReplayer interface {
	ReplayUnprocessed(ctx context.Context, limit int) (int, error)
}

// Sweeper periodically runs SweepOnce until its context is cancelled.
type Sweeper struct {
	service   *Service
	replayer  LedgerReplayer
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewSweeper(service *Service, replayer LedgerReplayer, interval time.Duration, batchSize int, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		service:   service,
		replayer:  replayer,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

func (sw *Sweeper) sweep(ctx context.Context) {
	if sw.replayer != nil {
		if _, err := sw.replayer.ReplayUnprocessed(ctx, sw.batchSize); err != nil {
			sw.logger.Error("ledger replay failed", "error", err)
		}
	}
	if _, err := sw.service.SweepOnce(ctx, sw.batchSize); err != nil {
		sw.logger.Error("sweep failed", "error", err)
	}
}

// Run blocks until ctx is cancelled. The first sweep fires immediately so a
// fresh deployment does not wait a full interval to clear its backlog.
func (sw *Sweeper) Run(ctx context.Context) error {
	sw.logger.Info("timeout sweeper started",
		"interval", sw.interval,
		"batch_size", sw.batchSize)

	sw.sweep(ctx)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("timeout sweeper stopping")
			return ctx.Err()
		case <-ticker.C:
			sw.sweep(ctx)
		}
	}
}
