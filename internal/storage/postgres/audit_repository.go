package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/apikey-service-api/internal/domain/audit"
	"go.uber.org/zap"
)

type AuditRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAuditRepository(db *pgxpool.Pool, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger.Named("AuditRepository"),
	}
}

var _ audit.Repository = (*AuditRepository)(nil)

func (r *AuditRepository) Create(ctx context.Context, entry *audit.Entry) error {
	query := `
		INSERT INTO audit_logs (api_key_id, action, ip_address, user_agent, context)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		entry.APIKeyID,
		string(entry.Action),
		entry.IPAddress,
		entry.UserAgent,
		entry.Context,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error writing audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListByKey(ctx context.Context, keyID uuid.UUID, params audit.ListParams) ([]*audit.Entry, error) {
	query := `
		SELECT id, api_key_id, action, ip_address, user_agent, context, created_at
		FROM audit_logs
		WHERE api_key_id = $1 AND ($2::text IS NULL OR action = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	var action *string
	if params.Action != nil {
		a := string(*params.Action)
		action = &a
	}
	var limit *int
	if params.Limit > 0 {
		limit = &params.Limit
	}

	rows, err := r.db.Query(ctx, query, keyID, action, limit, params.Offset)
	if err != nil {
		r.logger.Error("Failed to list audit entries", zap.String("key_id", keyID.String()), zap.Error(err))
		return nil, fmt.Errorf("db error listing audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*audit.Entry, 0)
	for rows.Next() {
		var (
			e      audit.Entry
			action string
		)
		if err := rows.Scan(&e.ID, &e.APIKeyID, &action, &e.IPAddress, &e.UserAgent, &e.Context, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error scanning audit entry: %w", err)
		}
		e.Action = audit.Action(action)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error iterating audit entries: %w", err)
	}
	return entries, nil
}

const verificationStatsSelect = `
	SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE (l.context->>'success')::boolean)
	FROM audit_logs l
`

func (r *AuditRepository) VerificationStats(ctx context.Context, keyID uuid.UUID, since time.Time) (audit.VerificationStats, error) {
	query := verificationStatsSelect + `
		WHERE l.api_key_id = $1 AND l.action = 'verify' AND l.created_at >= $2`
	return r.stats(ctx, query, keyID, since)
}

func (r *AuditRepository) VerificationStatsByAPI(ctx context.Context, apiID uuid.UUID, since time.Time) (audit.VerificationStats, error) {
	query := verificationStatsSelect + `
		JOIN api_keys k ON k.id = l.api_key_id
		WHERE k.api_id = $1 AND l.action = 'verify' AND l.created_at >= $2`
	return r.stats(ctx, query, apiID, since)
}

func (r *AuditRepository) stats(ctx context.Context, query string, id uuid.UUID, since time.Time) (audit.VerificationStats, error) {
	var stats audit.VerificationStats
	if err := r.db.QueryRow(ctx, query, id, since).Scan(&stats.Total, &stats.Successful); err != nil {
		r.logger.Error("Failed to aggregate verification stats", zap.String("id", id.String()), zap.Error(err))
		return audit.VerificationStats{}, fmt.Errorf("db error aggregating verification stats: %w", err)
	}
	return stats, nil
}

func (r *AuditRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, before)
	if err != nil {
		r.logger.Error("Failed to purge audit entries", zap.Time("before", before), zap.Error(err))
		return 0, fmt.Errorf("db error purging audit entries: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}
