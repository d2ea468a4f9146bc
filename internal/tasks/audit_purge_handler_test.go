package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/makkenzo/apikey-service-api/internal/domain/audit"
	"github.com/makkenzo/apikey-service-api/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewAuditPurgeTask(t *testing.T) {
	task, err := NewAuditPurgeTask(30)
	require.NoError(t, err)

	assert.Equal(t, TypeAuditPurge, task.Type())
	var p AuditPurgePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, 30, p.RetentionDays)
}

func TestAuditPurgeHandler_DeletesOnlyExpiredEntries(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := memstorage.NewStore().Audit()
	ctx := context.Background()
	keyID := uuid.New()

	for _, age := range []time.Duration{40 * 24 * time.Hour, 31 * 24 * time.Hour, 29 * 24 * time.Hour, time.Hour} {
		require.NoError(t, repo.Create(ctx, &audit.Entry{
			APIKeyID:  keyID,
			Action:    audit.ActionVerify,
			CreatedAt: now.Add(-age),
		}))
	}

	task, err := NewAuditPurgeTask(30)
	require.NoError(t, err)

	h := NewAuditPurgeHandler(repo, zap.NewNop()).WithClock(func() time.Time { return now })
	require.NoError(t, h.ProcessTask(ctx, task))

	remaining, err := repo.ListByKey(ctx, keyID, audit.ListParams{})
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
	for _, e := range remaining {
		assert.True(t, e.CreatedAt.After(now.AddDate(0, 0, -30)))
	}
}

func TestAuditPurgeHandler_ZeroRetentionKeepsEverything(t *testing.T) {
	repo := memstorage.NewStore().Audit()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &audit.Entry{
		APIKeyID:  uuid.New(),
		Action:    audit.ActionCreate,
		CreatedAt: time.Now().AddDate(-5, 0, 0),
	}))

	task, err := NewAuditPurgeTask(0)
	require.NoError(t, err)
	require.NoError(t, NewAuditPurgeHandler(repo, zap.NewNop()).ProcessTask(ctx, task))

	assert.Len(t, repo.Entries(), 1)
}

func TestAuditPurgeHandler_RejectsBadTasks(t *testing.T) {
	h := NewAuditPurgeHandler(memstorage.NewStore().Audit(), zap.NewNop())

	err := h.ProcessTask(context.Background(), asynq.NewTask("other:type", nil))
	assert.Error(t, err)

	err = h.ProcessTask(context.Background(), asynq.NewTask(TypeAuditPurge, []byte("{not json")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
