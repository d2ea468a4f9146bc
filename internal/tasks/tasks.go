package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeAuditPurge = "audit:retention:purge"
)

type AuditPurgePayload struct {
	RetentionDays int `json:"retention_days"`
}

func NewAuditPurgeTask(retentionDays int, opts ...asynq.Option) (*asynq.Task, error) {
	payload := AuditPurgePayload{RetentionDays: retentionDays}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	uniqueOpt := asynq.Unique(1 * time.Hour)
	allOpts := append(opts, uniqueOpt)

	return asynq.NewTask(TypeAuditPurge, payloadBytes, allOpts...), nil
}
