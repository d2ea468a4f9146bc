package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListParams pages through one key's entries. A nil Action matches all
// actions; a zero Limit means no limit.
type ListParams struct {
	Action *Action
	Limit  int
	Offset int
}

type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	// ListByKey returns entries newest first.
	ListByKey(ctx context.Context, keyID uuid.UUID, params ListParams) ([]*Entry, error)
	VerificationStats(ctx context.Context, keyID uuid.UUID, since time.Time) (VerificationStats, error)
	// VerificationStatsByAPI aggregates verify entries across every key of apiID.
	VerificationStatsByAPI(ctx context.Context, apiID uuid.UUID, since time.Time) (VerificationStats, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
