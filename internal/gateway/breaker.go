package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	breakerFailuresKey = "gateway:breaker:auth_failures"
	breakerOpenKey     = "gateway:breaker:open"
)

// Breaker is a circuit breaker for gateway credential failures. State lives
// in redis with a TTL, so every replica sees the same breaker and a restart
// cannot reset an open circuit early.
//
// Redis being down never blocks verification: all operations fail open.
type Breaker struct {
	rdb       *redis.Client
	threshold int
	openTTL   time.Duration
	logger    *slog.Logger
}

func NewBreaker(rdb *redis.Client, threshold int, openTTL time.Duration, logger *slog.Logger) *Breaker {
	return &Breaker{
		rdb:       rdb,
		threshold: threshold,
		openTTL:   openTTL,
		logger:    logger,
	}
}

// Allow reports whether gateway calls may proceed.
func (b *Breaker) Allow(ctx context.Context) bool {
	if b == nil || b.rdb == nil {
		return true
	}
	n, err := b.rdb.Exists(ctx, breakerOpenKey).Result()
	if err != nil {
		b.logger.Warn("breaker state check failed, allowing call", "error", err)
		return true
	}
	return n == 0
}

// RecordAuthFailure counts a credential rejection; at the threshold the
// circuit opens for the configured TTL.
func (b *Breaker) RecordAuthFailure(ctx context.Context) {
	if b == nil || b.rdb == nil {
		return
	}
	n, err := b.rdb.Incr(ctx, breakerFailuresKey).Result()
	if err != nil {
		b.logger.Warn("breaker failure count failed", "error", err)
		return
	}
	b.rdb.Expire(ctx, breakerFailuresKey, b.openTTL)

	if n >= int64(b.threshold) {
		if err := b.rdb.Set(ctx, breakerOpenKey, "1", b.openTTL).Err(); err != nil {
			b.logger.Warn("breaker open write failed", "error", err)
			return
		}
		b.logger.Error("gateway circuit breaker opened",
			"auth_failures", n,
			"open_ttl", b.openTTL)
	}
}

// Reset clears the failure count after a successful authenticated call.
func (b *Breaker) Reset(ctx context.Context) {
	if b == nil || b.rdb == nil {
		return
	}
	if err := b.rdb.Del(ctx, breakerFailuresKey, breakerOpenKey).Err(); err != nil {
		b.logger.Warn("breaker reset failed", "error", err)
	}
}
