// Package auditlog appends audit entries on behalf of the verification
// pipeline and the key management service.
package auditlog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/apikey-service-api/internal/domain/audit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var writeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "audit_write_failures_total",
	Help: "Audit entries that could not be persisted.",
}, []string{"action"})

const defaultWriteTimeout = 2 * time.Second

type Recorder struct {
	repo    audit.Repository
	timeout time.Duration
	logger  *zap.Logger
}

func NewRecorder(repo audit.Repository, writeTimeout time.Duration, logger *zap.Logger) *Recorder {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Recorder{
		repo:    repo,
		timeout: writeTimeout,
		logger:  logger.Named("AuditRecorder"),
	}
}

// Record writes one entry before returning. The write is detached from the
// caller's cancellation and bounded by the recorder's timeout. Failures are
// logged and counted; they never reach the caller.
func (r *Recorder) Record(ctx context.Context, keyID uuid.UUID, action audit.Action, ip, userAgent string, payload audit.Context) {
	entry := &audit.Entry{
		APIKeyID:  keyID,
		Action:    action,
		IPAddress: optional(ip),
		UserAgent: optional(userAgent),
		Context:   payload,
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.repo.Create(writeCtx, entry); err != nil {
		writeFailures.WithLabelValues(string(action)).Inc()
		r.logger.Error("Failed to write audit entry",
			zap.String("key_id", keyID.String()),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
