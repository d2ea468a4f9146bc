package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/makkenzo/apikey-service-api/internal/domain/audit"
	"go.uber.org/zap"
)

type AuditPurgeHandler struct {
	repo   audit.Repository
	now    func() time.Time
	logger *zap.Logger
}

func NewAuditPurgeHandler(repo audit.Repository, logger *zap.Logger) *AuditPurgeHandler {
	return &AuditPurgeHandler{
		repo:   repo,
		now:    time.Now,
		logger: logger.Named("AuditPurgeHandler"),
	}
}

func (h *AuditPurgeHandler) WithClock(now func() time.Time) *AuditPurgeHandler {
	h.now = now
	return h
}

// ProcessTask deletes audit entries older than the retention period carried
// in the payload. A zero period keeps everything.
func (h *AuditPurgeHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeAuditPurge {
		return fmt.Errorf("unexpected task type: %s", t.Type())
	}

	var p AuditPurgePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.logger.Error("Failed to unmarshal payload for audit purge task", zap.Error(err), zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	if p.RetentionDays <= 0 {
		h.logger.Debug("Audit retention disabled, nothing to purge")
		return nil
	}

	cutoff := h.now().UTC().AddDate(0, 0, -p.RetentionDays)
	h.logger.Info("Processing audit purge task...", zap.Time("cutoff", cutoff))

	deleted, err := h.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		h.logger.Error("Failed to purge audit entries", zap.Error(err))
		return fmt.Errorf("repository error purging audit entries: %w", err)
	}

	h.logger.Info("Audit purge task finished", zap.Int64("deleted_entries", deleted))
	return nil
}
