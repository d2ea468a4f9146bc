package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/apikey-service-api/internal/domain/api"
	"github.com/makkenzo/apikey-service-api/internal/domain/apikey"
	"github.com/makkenzo/apikey-service-api/internal/domain/audit"
	"github.com/makkenzo/apikey-service-api/internal/handler/dto"
	"github.com/makkenzo/apikey-service-api/internal/ierr"
	"github.com/makkenzo/apikey-service-api/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubUsage struct {
	count  int64
	err    error
	window int
}

func (s *stubUsage) GetUsage(ctx context.Context, keyID string, windowSeconds int) (int64, error) {
	s.window = windowSeconds
	return s.count, s.err
}

type analyticsFixture struct {
	svc    *AnalyticsService
	store  *memstorage.Store
	rate   *stubUsage
	now    time.Time
	userID uuid.UUID
	apiID  uuid.UUID
	keyID  uuid.UUID
}

func newAnalyticsFixture(t *testing.T, mutate func(k *apikey.APIKey)) *analyticsFixture {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	store := memstorage.NewStore()
	userID := uuid.New()

	apiID, err := store.APIs().Create(ctx, &api.API{Name: "maps", OwnerID: userID})
	require.NoError(t, err)
	key := &apikey.APIKey{APIID: apiID, KeyHash: uuid.NewString()}
	if mutate != nil {
		mutate(key)
	}
	keyID, err := store.APIKeys().Create(ctx, key)
	require.NoError(t, err)

	rate := &stubUsage{count: 7}
	svc := NewAnalyticsService(store.APIKeys(), store.APIs(), store.Audit(), rate, 3600, zap.NewNop()).
		WithClock(func() time.Time { return now })

	return &analyticsFixture{svc: svc, store: store, rate: rate, now: now, userID: userID, apiID: apiID, keyID: keyID}
}

func (f *analyticsFixture) verify(t *testing.T, keyID uuid.UUID, success bool, at time.Time) {
	t.Helper()
	require.NoError(t, f.store.Audit().Create(context.Background(), &audit.Entry{
		APIKeyID:  keyID,
		Action:    audit.ActionVerify,
		Context:   audit.Context{"success": success},
		CreatedAt: at,
	}))
}

func TestAnalyticsService_KeyUsage(t *testing.T) {
	f := newAnalyticsFixture(t, func(k *apikey.APIKey) {
		k.RateLimitMax = ptrTo(100)
		k.RateLimitWindow = ptrTo(60)
	})
	ctx := context.Background()

	f.verify(t, f.keyID, true, f.now.Add(-time.Hour))
	f.verify(t, f.keyID, false, f.now.Add(-2*time.Hour))
	f.verify(t, f.keyID, true, f.now.AddDate(0, 0, -10))
	require.NoError(t, f.store.Audit().Create(ctx, &audit.Entry{APIKeyID: f.keyID, Action: audit.ActionUpdate, CreatedAt: f.now}))

	stats, err := f.svc.KeyUsage(ctx, f.userID, f.keyID, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.SuccessfulRequests)
	assert.Equal(t, int64(1), stats.FailedRequests)
	require.NotNil(t, stats.CurrentWindowUsage)
	assert.Equal(t, int64(7), *stats.CurrentWindowUsage)
	assert.Equal(t, 60, f.rate.window)

	_, err = f.svc.KeyUsage(ctx, uuid.New(), f.keyID, 7)
	assert.ErrorIs(t, err, ierr.ErrAPIKeyNotFound)
}

func TestAnalyticsService_KeyUsage_WindowUsageIsBestEffort(t *testing.T) {
	f := newAnalyticsFixture(t, func(k *apikey.APIKey) {
		k.RateLimitMax = ptrTo(100)
	})
	f.rate.err = errors.New("breaker open")

	stats, err := f.svc.KeyUsage(context.Background(), f.userID, f.keyID, 1)
	require.NoError(t, err)
	assert.Nil(t, stats.CurrentWindowUsage)
	assert.Equal(t, 3600, f.rate.window)
}

func TestAnalyticsService_KeyUsage_NoRateLimit(t *testing.T) {
	f := newAnalyticsFixture(t, nil)

	stats, err := f.svc.KeyUsage(context.Background(), f.userID, f.keyID, 1)
	require.NoError(t, err)
	assert.Nil(t, stats.CurrentWindowUsage)
}

func TestAnalyticsService_AuditLog(t *testing.T) {
	f := newAnalyticsFixture(t, nil)
	ctx := context.Background()

	f.verify(t, f.keyID, true, f.now.Add(-time.Minute))
	require.NoError(t, f.store.Audit().Create(ctx, &audit.Entry{APIKeyID: f.keyID, Action: audit.ActionRevoke, CreatedAt: f.now}))

	all, err := f.svc.AuditLog(ctx, f.userID, f.keyID, &dto.AuditLogRequest{Limit: 50})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, audit.ActionRevoke, all[0].Action)

	verify := audit.ActionVerify
	filtered, err := f.svc.AuditLog(ctx, f.userID, f.keyID, &dto.AuditLogRequest{Limit: 50, Action: &verify})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, audit.ActionVerify, filtered[0].Action)
}

func TestAnalyticsService_APIAnalytics(t *testing.T) {
	f := newAnalyticsFixture(t, nil)
	ctx := context.Background()

	second, err := f.store.APIKeys().Create(ctx, &apikey.APIKey{APIID: f.apiID, KeyHash: "second"})
	require.NoError(t, err)
	require.NoError(t, f.store.APIKeys().Revoke(ctx, second, f.now))

	f.verify(t, f.keyID, true, f.now.Add(-time.Hour))
	f.verify(t, second, false, f.now.Add(-time.Hour))
	f.verify(t, second, false, f.now.AddDate(0, 0, -30))

	resp, err := f.svc.APIAnalytics(ctx, f.userID, f.apiID, 7)
	require.NoError(t, err)
	assert.Equal(t, "maps", resp.APIName)
	assert.Equal(t, int64(2), resp.TotalKeys)
	assert.Equal(t, int64(1), resp.ActiveKeys)
	assert.Equal(t, int64(1), resp.RevokedKeys)
	assert.Equal(t, int64(2), resp.TotalVerifications)

	_, err = f.svc.APIAnalytics(ctx, uuid.New(), f.apiID, 7)
	assert.ErrorIs(t, err, ierr.ErrAPINotFound)
}
