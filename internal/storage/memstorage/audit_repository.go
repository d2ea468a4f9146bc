package memstorage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/apikey-service-api/internal/domain/audit"
)

type AuditRepository struct {
	s *Store
}

var _ audit.Repository = (*AuditRepository)(nil)

func (r *AuditRepository) Create(ctx context.Context, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored := cloneEntry(entry)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.s.now().UTC()
	}
	r.s.audit = append(r.s.audit, stored)

	entry.ID = stored.ID
	entry.CreatedAt = stored.CreatedAt
	return nil
}

func (r *AuditRepository) ListByKey(ctx context.Context, keyID uuid.UUID, params audit.ListParams) ([]*audit.Entry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	entries := make([]*audit.Entry, 0)
	skipped := 0
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		e := r.s.audit[i]
		if e.APIKeyID != keyID {
			continue
		}
		if params.Action != nil && e.Action != *params.Action {
			continue
		}
		if skipped < params.Offset {
			skipped++
			continue
		}
		if params.Limit > 0 && len(entries) >= params.Limit {
			break
		}
		entries = append(entries, cloneEntry(e))
	}
	return entries, nil
}

func (r *AuditRepository) VerificationStats(ctx context.Context, keyID uuid.UUID, since time.Time) (audit.VerificationStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return r.statsLocked(since, func(e *audit.Entry) bool {
		return e.APIKeyID == keyID
	}), nil
}

func (r *AuditRepository) VerificationStatsByAPI(ctx context.Context, apiID uuid.UUID, since time.Time) (audit.VerificationStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return r.statsLocked(since, func(e *audit.Entry) bool {
		k, ok := r.s.keys[e.APIKeyID]
		return ok && k.APIID == apiID
	}), nil
}

func (r *AuditRepository) statsLocked(since time.Time, match func(e *audit.Entry) bool) audit.VerificationStats {
	var stats audit.VerificationStats
	for _, e := range r.s.audit {
		if e.Action != audit.ActionVerify || e.CreatedAt.Before(since) || !match(e) {
			continue
		}
		stats.Total++
		if success, _ := e.Context["success"].(bool); success {
			stats.Successful++
		}
	}
	return stats
}

func (r *AuditRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var deleted int64
	kept := r.s.audit[:0]
	for _, e := range r.s.audit {
		if e.CreatedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.s.audit = kept
	return deleted, nil
}

// Entries returns a snapshot of every stored entry in insertion order.
func (r *AuditRepository) Entries() []*audit.Entry {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	entries := make([]*audit.Entry, len(r.s.audit))
	for i, e := range r.s.audit {
		entries[i] = cloneEntry(e)
	}
	return entries
}
