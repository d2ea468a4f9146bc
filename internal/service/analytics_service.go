package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/apikey-service-api/internal/domain/api"
	"github.com/makkenzo/apikey-service-api/internal/domain/apikey"
	"github.com/makkenzo/apikey-service-api/internal/domain/audit"
	"github.com/makkenzo/apikey-service-api/internal/handler/dto"
	"go.uber.org/zap"
)

type WindowUsageReader interface {
	GetUsage(ctx context.Context, keyID string, windowSeconds int) (int64, error)
}

type AnalyticsService struct {
	keys          apikey.Repository
	apis          api.Repository
	audit         audit.Repository
	rate          WindowUsageReader
	defaultWindow int
	now           func() time.Time
	logger        *zap.Logger
}

func NewAnalyticsService(
	keys apikey.Repository,
	apis api.Repository,
	auditRepo audit.Repository,
	rate WindowUsageReader,
	defaultWindow int,
	logger *zap.Logger,
) *AnalyticsService {
	return &AnalyticsService{
		keys:          keys,
		apis:          apis,
		audit:         auditRepo,
		rate:          rate,
		defaultWindow: defaultWindow,
		now:           time.Now,
		logger:        logger.Named("AnalyticsService"),
	}
}

// WithClock overrides the time source.
func (s *AnalyticsService) WithClock(now func() time.Time) *AnalyticsService {
	s.now = now
	return s
}

func (s *AnalyticsService) AuditLog(ctx context.Context, userID, keyID uuid.UUID, req *dto.AuditLogRequest) ([]*audit.Entry, error) {
	if _, err := ownedKey(ctx, s.apis, s.keys, userID, keyID); err != nil {
		return nil, err
	}

	entries, err := s.audit.ListByKey(ctx, keyID, audit.ListParams{
		Action: req.Action,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		s.logger.Error("Failed to list audit entries", zap.String("key_id", keyID.String()), zap.Error(err))
		return nil, fmt.Errorf("repository error listing audit entries: %w", err)
	}
	return entries, nil
}

// KeyUsage summarizes verify outcomes over the last days. The live window
// count is best effort and omitted when the rate-limit store is unavailable.
func (s *AnalyticsService) KeyUsage(ctx context.Context, userID, keyID uuid.UUID, days int) (*dto.UsageStatsResponse, error) {
	key, err := ownedKey(ctx, s.apis, s.keys, userID, keyID)
	if err != nil {
		return nil, err
	}

	since := s.now().AddDate(0, 0, -days)
	stats, err := s.audit.VerificationStats(ctx, keyID, since)
	if err != nil {
		s.logger.Error("Failed to aggregate verification stats", zap.String("key_id", keyID.String()), zap.Error(err))
		return nil, fmt.Errorf("repository error aggregating usage: %w", err)
	}

	resp := &dto.UsageStatsResponse{
		KeyID:              keyID,
		PeriodDays:         days,
		TotalRequests:      stats.Total,
		SuccessfulRequests: stats.Successful,
		FailedRequests:     stats.Total - stats.Successful,
	}

	if key.HasRateLimit() && s.rate != nil {
		window := s.defaultWindow
		if key.RateLimitWindow != nil && *key.RateLimitWindow > 0 {
			window = *key.RateLimitWindow
		}
		count, err := s.rate.GetUsage(ctx, keyID.String(), window)
		if err != nil {
			s.logger.Warn("Failed to read current window usage", zap.String("key_id", keyID.String()), zap.Error(err))
		} else {
			resp.CurrentWindowUsage = &count
		}
	}

	return resp, nil
}

func (s *AnalyticsService) APIAnalytics(ctx context.Context, userID, apiID uuid.UUID, days int) (*dto.APIAnalyticsResponse, error) {
	a, err := ownedAPI(ctx, s.apis, userID, apiID)
	if err != nil {
		return nil, err
	}

	keys, err := s.keys.List(ctx, apikey.ListParams{APIIDs: []uuid.UUID{apiID}})
	if err != nil {
		return nil, fmt.Errorf("repository error listing api keys: %w", err)
	}

	resp := &dto.APIAnalyticsResponse{
		APIID:      a.ID,
		APIName:    a.Name,
		PeriodDays: days,
		TotalKeys:  int64(len(keys)),
	}
	for _, k := range keys {
		if !k.Revoked {
			resp.ActiveKeys++
		}
	}
	resp.RevokedKeys = resp.TotalKeys - resp.ActiveKeys

	stats, err := s.audit.VerificationStatsByAPI(ctx, apiID, s.now().AddDate(0, 0, -days))
	if err != nil {
		return nil, fmt.Errorf("repository error aggregating api verifications: %w", err)
	}
	resp.TotalVerifications = stats.Total

	return resp, nil
}
