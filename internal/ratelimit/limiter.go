// Package ratelimit implements a per-key sliding-window limiter on top of a
// Redis sorted set. Each admitted request is one member scored by its
// timestamp in milliseconds.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// slidingWindowScript evicts, counts and conditionally records in one step.
// KEYS[1] = window key
// ARGV[1] = now in ms
// ARGV[2] = window in ms
// ARGV[3] = max requests
// ARGV[4] = unique member for this request
// Returns: {allowed (0|1), remaining}
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. (now - window_ms))

	local count = redis.call('ZCARD', key)
	if count < limit then
		redis.call('ZADD', key, now, ARGV[4])
		redis.call('PEXPIRE', key, window_ms)
		return {1, limit - count - 1}
	end

	return {0, 0}
`)

type Result struct {
	Allowed   bool
	Remaining int
	// ResetAt is now+window: an upper bound on when capacity frees up.
	ResetAt time.Time
}

type Config struct {
	Prefix          string
	Timeout         time.Duration
	BreakerFailures int
	BreakerTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Prefix:          "ratelimit:",
		Timeout:         250 * time.Millisecond,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

type Limiter struct {
	client  redis.UniversalClient
	breaker *gobreaker.CircuitBreaker
	cfg     Config
	now     func() time.Time
	logger  *zap.Logger
}

type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func NewLimiter(client redis.UniversalClient, cfg Config, logger *zap.Logger, opts ...Option) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultConfig().Prefix
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = DefaultConfig().BreakerFailures
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Limiter{
		client: client,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.Named("RateLimiter"),
	}
	for _, opt := range opts {
		opt(l)
	}

	failures := uint32(cfg.BreakerFailures)
	l.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ratelimit-store",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.logger.Warn("Rate-limit store circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			breakerTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
		},
	})

	return l
}

func (l *Limiter) windowKey(keyID string) string {
	return l.cfg.Prefix + keyID
}

// Check admits the request when fewer than maxRequests were recorded for
// keyID in the trailing window. Denied attempts are not recorded. Any store
// failure is returned as an error; callers must treat it as a denial.
func (l *Limiter) Check(ctx context.Context, keyID string, maxRequests, windowSeconds int) (Result, error) {
	if maxRequests <= 0 || windowSeconds <= 0 {
		return Result{}, fmt.Errorf("invalid rate limit %d/%ds", maxRequests, windowSeconds)
	}

	now := l.now()
	window := time.Duration(windowSeconds) * time.Second
	resetAt := now.Add(window)

	start := time.Now()
	raw, err := l.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return slidingWindowScript.Run(ctx, l.client,
			[]string{l.windowKey(keyID)},
			now.UnixMilli(),
			window.Milliseconds(),
			maxRequests,
			strconv.FormatInt(now.UnixNano(), 10)+"-"+uuid.NewString(),
		).Result()
	})
	storeOperationDuration.WithLabelValues("check").Observe(time.Since(start).Seconds())

	if err != nil {
		storeOperationsTotal.WithLabelValues("check", "error").Inc()
		l.logger.Error("Sliding window check failed", zap.String("key_id", keyID), zap.Error(err))
		return Result{ResetAt: resetAt}, fmt.Errorf("rate limit check: %w", err)
	}

	allowed, remaining, err := parseScriptResult(raw)
	if err != nil {
		storeOperationsTotal.WithLabelValues("check", "error").Inc()
		return Result{ResetAt: resetAt}, err
	}

	status := "allowed"
	if !allowed {
		status = "denied"
		remaining = 0
	}
	storeOperationsTotal.WithLabelValues("check", status).Inc()

	return Result{
		Allowed:   allowed,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// GetUsage counts requests recorded for keyID inside the trailing window
// without modifying the set.
func (l *Limiter) GetUsage(ctx context.Context, keyID string, windowSeconds int) (int64, error) {
	now := l.now()
	windowStart := now.Add(-time.Duration(windowSeconds) * time.Second)

	start := time.Now()
	raw, err := l.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return l.client.ZCount(ctx, l.windowKey(keyID),
			strconv.FormatInt(windowStart.UnixMilli(), 10),
			strconv.FormatInt(now.UnixMilli(), 10),
		).Result()
	})
	storeOperationDuration.WithLabelValues("usage").Observe(time.Since(start).Seconds())

	if err != nil {
		storeOperationsTotal.WithLabelValues("usage", "error").Inc()
		return 0, fmt.Errorf("rate limit usage: %w", err)
	}
	storeOperationsTotal.WithLabelValues("usage", "success").Inc()

	return parseUsageCount(raw)
}

func parseUsageCount(raw interface{}) (int64, error) {
	count, ok := raw.(int64)
	if !ok {
		return 0, fmt.Errorf("rate limit usage: unexpected reply %T", raw)
	}
	return count, nil
}

// execute runs fn through the circuit breaker with the configured timeout.
// Redis' own "key missing" reply is not a store failure.
func (l *Limiter) execute(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}

	return l.breaker.Execute(func() (interface{}, error) {
		res, err := fn(ctx)
		if errors.Is(err, redis.Nil) {
			return res, nil
		}
		return res, err
	})
}

func parseScriptResult(raw interface{}) (bool, int, error) {
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected script result: %v", raw)
	}
	allowed, ok1 := values[0].(int64)
	remaining, ok2 := values[1].(int64)
	if !ok1 || !ok2 {
		return false, 0, fmt.Errorf("unexpected script result types: %T, %T", values[0], values[1])
	}
	return allowed == 1, int(remaining), nil
}
