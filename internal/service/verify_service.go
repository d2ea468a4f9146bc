package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/apikey-service-api/internal/domain/apikey"
	"github.com/makkenzo/apikey-service-api/internal/domain/audit"
	"github.com/makkenzo/apikey-service-api/internal/ipfilter"
	"github.com/makkenzo/apikey-service-api/internal/ratelimit"
	"github.com/makkenzo/apikey-service-api/internal/usage"
	"go.uber.org/zap"
)

// Failure reasons returned to callers.
const (
	ReasonKeyNotFound   = "Key not found"
	ReasonKeyRevoked    = "Key revoked"
	ReasonKeyExpired    = "Key expired"
	ReasonIPNotAllowed  = "IP not allowed"
	ReasonRateLimited   = "Rate limit exceeded"
	ReasonUsageExceeded = "Usage limit exceeded"
)

// Reason tags stored in the audit context.
const (
	auditReasonRevoked       = "revoked"
	auditReasonExpired       = "expired"
	auditReasonIPBlocked     = "ip_blocked"
	auditReasonRateLimited   = "rate_limited"
	auditReasonUsageExceeded = "usage_exceeded"
)

type VerifyRequest struct {
	Key       string
	ClientIP  string
	UserAgent string
}

// VerifyResult is the outcome of one verification. Domain failures are
// reported through Valid and Error, never as Go errors.
type VerifyResult struct {
	Valid     bool
	KeyID     *uuid.UUID
	OwnerID   *string
	Metadata  json.RawMessage
	Remaining *int
	// ResetAt is a Unix timestamp in seconds.
	ResetAt *int64
	Error   string
}

type KeyHasher interface {
	Hash(rawKey string) string
	Verify(rawKey, storedHash string) bool
}

type RateChecker interface {
	Check(ctx context.Context, keyID string, maxRequests, windowSeconds int) (ratelimit.Result, error)
}

type UsageConsumer interface {
	Consume(ctx context.Context, key *apikey.APIKey) (usage.Result, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, keyID uuid.UUID, action audit.Action, ip, userAgent string, payload audit.Context)
}

type VerifyService struct {
	keys          apikey.Repository
	hasher        KeyHasher
	rate          RateChecker
	usage         UsageConsumer
	audit         AuditRecorder
	defaultWindow int
	now           func() time.Time
	logger        *zap.Logger
}

func NewVerifyService(
	keys apikey.Repository,
	hasher KeyHasher,
	rate RateChecker,
	usage UsageConsumer,
	audit AuditRecorder,
	defaultWindow int,
	logger *zap.Logger,
) *VerifyService {
	return &VerifyService{
		keys:          keys,
		hasher:        hasher,
		rate:          rate,
		usage:         usage,
		audit:         audit,
		defaultWindow: defaultWindow,
		now:           time.Now,
		logger:        logger.Named("VerifyService"),
	}
}

// WithClock overrides the time source.
func (s *VerifyService) WithClock(now func() time.Time) *VerifyService {
	s.now = now
	return s
}

// Verify runs the checks in order: lookup, revoked, expired, IP allow-list,
// rate limit, usage budget. The first failing check decides the result.
// Every attempt that resolves a key writes exactly one audit entry.
//
// A non-nil error means the key store failed during lookup. Rate and usage
// store failures are reported as the matching limit being exceeded.
func (s *VerifyService) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	start := time.Now()
	defer func() {
		verificationDuration.Observe(time.Since(start).Seconds())
	}()

	key, err := s.keys.FindByHash(ctx, s.hasher.Hash(req.Key))
	if err != nil {
		if errors.Is(err, apikey.ErrAPIKeyNotFound) {
			verificationsTotal.WithLabelValues("failure", "not_found").Inc()
			return &VerifyResult{Error: ReasonKeyNotFound}, nil
		}
		verificationsTotal.WithLabelValues("error", "lookup").Inc()
		s.logger.Error("Key lookup failed", zap.Error(err))
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	if !s.hasher.Verify(req.Key, key.KeyHash) {
		verificationsTotal.WithLabelValues("failure", "not_found").Inc()
		return &VerifyResult{Error: ReasonKeyNotFound}, nil
	}

	// Side effects past this point are committed even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	now := s.now()

	if key.Revoked {
		return s.fail(ctx, key, req, ReasonKeyRevoked, auditReasonRevoked, nil), nil
	}
	if key.IsExpired(now) {
		return s.fail(ctx, key, req, ReasonKeyExpired, auditReasonExpired, nil), nil
	}
	if !ipfilter.Allowed(req.ClientIP, key.AllowedIPs) {
		return s.fail(ctx, key, req, ReasonIPNotAllowed, auditReasonIPBlocked, nil), nil
	}

	result := &VerifyResult{}

	if key.HasRateLimit() {
		window := s.defaultWindow
		if key.RateLimitWindow != nil && *key.RateLimitWindow > 0 {
			window = *key.RateLimitWindow
		}
		resetAt := now.Add(time.Duration(window) * time.Second).Unix()

		rl, err := s.rate.Check(ctx, key.ID.String(), *key.RateLimitMax, window)
		if err != nil {
			s.logger.Warn("Rate-limit store failure, denying",
				zap.String("key_id", key.ID.String()),
				zap.Error(err),
			)
			return s.fail(ctx, key, req, ReasonRateLimited, auditReasonRateLimited, &VerifyResult{
				Remaining: intPtr(0),
				ResetAt:   &resetAt,
			}), nil
		}
		if !rl.ResetAt.IsZero() {
			resetAt = rl.ResetAt.Unix()
		}
		if !rl.Allowed {
			return s.fail(ctx, key, req, ReasonRateLimited, auditReasonRateLimited, &VerifyResult{
				Remaining: intPtr(0),
				ResetAt:   &resetAt,
			}), nil
		}
		result.Remaining = intPtr(rl.Remaining)
		result.ResetAt = &resetAt
	}

	if key.HasUsageLimit() {
		used, err := s.usage.Consume(ctx, key)
		if err != nil {
			s.logger.Warn("Usage store failure, denying",
				zap.String("key_id", key.ID.String()),
				zap.Error(err),
			)
			return s.fail(ctx, key, req, ReasonUsageExceeded, auditReasonUsageExceeded, &VerifyResult{
				Remaining: intPtr(0),
			}), nil
		}
		if !used.Allowed {
			return s.fail(ctx, key, req, ReasonUsageExceeded, auditReasonUsageExceeded, &VerifyResult{
				Remaining: intPtr(0),
			}), nil
		}
		// Report whichever limit runs out first.
		if result.Remaining == nil || (used.Remaining != nil && *used.Remaining < *result.Remaining) {
			result.Remaining = used.Remaining
		}
	}

	if err := s.keys.UpdateLastUsed(ctx, key.ID, now); err != nil {
		s.logger.Warn("Failed to update last used timestamp",
			zap.String("key_id", key.ID.String()),
			zap.Error(err),
		)
	}

	s.audit.Record(ctx, key.ID, audit.ActionVerify, req.ClientIP, req.UserAgent, audit.Context{
		"success": true,
		"reason":  nil,
	})
	verificationsTotal.WithLabelValues("success", "").Inc()

	keyID := key.ID
	result.Valid = true
	result.KeyID = &keyID
	result.OwnerID = key.OwnerID
	result.Metadata = key.Metadata
	return result, nil
}

// fail records the rejection and returns the failure result. extra carries
// optional telemetry for rate and usage denials.
func (s *VerifyService) fail(ctx context.Context, key *apikey.APIKey, req VerifyRequest, reason, auditReason string, extra *VerifyResult) *VerifyResult {
	s.audit.Record(ctx, key.ID, audit.ActionVerify, req.ClientIP, req.UserAgent, audit.Context{
		"success": false,
		"reason":  auditReason,
	})
	verificationsTotal.WithLabelValues("failure", auditReason).Inc()

	s.logger.Debug("Verification denied",
		zap.String("key_id", key.ID.String()),
		zap.String("prefix", key.Prefix),
		zap.String("reason", auditReason),
	)

	result := &VerifyResult{Error: reason}
	if extra != nil {
		result.Remaining = extra.Remaining
		result.ResetAt = extra.ResetAt
	}
	return result
}

func intPtr(v int) *int {
	return &v
}
