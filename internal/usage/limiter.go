// Package usage enforces the finite per-key use budget with optional lazy
// replenishment.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/makkenzo/apikey-service-api/internal/domain/apikey"
	"go.uber.org/zap"
)

// CheckAndDecrement applies the budget rules to a snapshot of remaining.
// A nil remaining means no quota is configured.
func CheckAndDecrement(remaining *int) (allowed bool, newRemaining *int) {
	if remaining == nil {
		return true, nil
	}
	if *remaining <= 0 {
		zero := 0
		return false, &zero
	}
	next := *remaining - 1
	return true, &next
}

type Result struct {
	Allowed bool
	// Remaining is nil when the key has no quota.
	Remaining *int
	Refilled  bool
}

type Limiter struct {
	store  apikey.UsageStore
	now    func() time.Time
	logger *zap.Logger
}

func NewLimiter(store apikey.UsageStore, logger *zap.Logger) *Limiter {
	return &Limiter{
		store:  store,
		now:    time.Now,
		logger: logger.Named("UsageLimiter"),
	}
}

// WithClock overrides the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Consume debits one use from key's budget. The decision is taken by the
// store's conditional update, never from the snapshot in key, so concurrent
// callers cannot both spend the last use.
func (l *Limiter) Consume(ctx context.Context, key *apikey.APIKey) (Result, error) {
	if !key.HasUsageLimit() {
		return Result{Allowed: true}, nil
	}

	var refilled bool
	if now := l.now(); key.RefillDue(now) {
		applied, err := l.store.ApplyRefill(ctx, key.ID, now)
		if err != nil {
			return Result{}, fmt.Errorf("apply usage refill: %w", err)
		}
		refilled = applied
		if applied {
			l.logger.Debug("Usage budget refilled", zap.String("key_id", key.ID.String()))
		}
	}

	remaining, ok, err := l.store.DecrementUsage(ctx, key.ID)
	if err != nil {
		return Result{}, fmt.Errorf("decrement usage: %w", err)
	}
	if !ok {
		zero := 0
		return Result{Allowed: false, Remaining: &zero, Refilled: refilled}, nil
	}

	return Result{Allowed: true, Remaining: &remaining, Refilled: refilled}, nil
}
