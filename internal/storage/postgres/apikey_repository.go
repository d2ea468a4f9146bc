package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/apikey-service-api/internal/domain/apikey"
	"github.com/makkenzo/apikey-service-api/internal/ierr"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

const apiKeyColumns = `
	id, api_id, key_hash, key_prefix, name, owner_id, meta, allowed_ips,
	rate_limit_max, rate_limit_window, remaining_uses, max_uses,
	refill_enabled, refill_amount, refill_interval, last_refill_at,
	expires_at, revoked, revoked_at, delete_protection, created_at, last_used_at`

type APIKeyRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAPIKeyRepository(db *pgxpool.Pool, logger *zap.Logger) *APIKeyRepository {
	return &APIKeyRepository{
		db:     db,
		logger: logger.Named("APIKeyRepository"),
	}
}

var (
	_ apikey.Repository = (*APIKeyRepository)(nil)
	_ apikey.UsageStore = (*APIKeyRepository)(nil)
)

func scanAPIKey(row pgx.Row) (*apikey.APIKey, error) {
	var key apikey.APIKey
	err := row.Scan(
		&key.ID,
		&key.APIID,
		&key.KeyHash,
		&key.Prefix,
		&key.Name,
		&key.OwnerID,
		&key.Metadata,
		&key.AllowedIPs,
		&key.RateLimitMax,
		&key.RateLimitWindow,
		&key.RemainingUses,
		&key.MaxUses,
		&key.Refill.Enabled,
		&key.Refill.Amount,
		&key.Refill.Interval,
		&key.Refill.LastRefillAt,
		&key.ExpiresAt,
		&key.Revoked,
		&key.RevokedAt,
		&key.DeleteProtected,
		&key.CreatedAt,
		&key.LastUsedAt,
	)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *APIKeyRepository) Create(ctx context.Context, key *apikey.APIKey) (uuid.UUID, error) {
	return insertAPIKey(ctx, r.db, key, r.logger)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertAPIKey(ctx context.Context, q queryRower, key *apikey.APIKey, logger *zap.Logger) (uuid.UUID, error) {
	query := `
		INSERT INTO api_keys (
			api_id, key_hash, key_prefix, name, owner_id, meta, allowed_ips,
			rate_limit_max, rate_limit_window, remaining_uses, max_uses,
			refill_enabled, refill_amount, refill_interval, expires_at, delete_protection
		) VALUES (
			$1, $2, $3, $4, $5, COALESCE($6::jsonb, '{}'::jsonb), COALESCE($7::text[], '{}'),
			$8, $9, $10, $11, $12, $13, $14, $15, $16
		) RETURNING id
	`
	var metadata any
	if len(key.Metadata) > 0 {
		metadata = string(key.Metadata)
	}

	var insertedID uuid.UUID
	err := q.QueryRow(ctx, query,
		key.APIID,
		key.KeyHash,
		key.Prefix,
		key.Name,
		key.OwnerID,
		metadata,
		key.AllowedIPs,
		key.RateLimitMax,
		key.RateLimitWindow,
		key.RemainingUses,
		key.MaxUses,
		key.Refill.Enabled,
		key.Refill.Amount,
		key.Refill.Interval,
		key.ExpiresAt,
		key.DeleteProtected,
	).Scan(&insertedID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			logger.Warn("Failed to create API key due to unique constraint violation",
				zap.String("constraint", pgErr.ConstraintName),
				zap.String("prefix", key.Prefix),
			)
			return uuid.Nil, fmt.Errorf("%w: api key constraint violation (%s)", ierr.ErrConflict, pgErr.ConstraintName)
		}
		logger.Error("Failed to create api key in database", zap.Error(err))
		return uuid.Nil, fmt.Errorf("db error creating api key: %w", err)
	}

	logger.Info("API key created successfully", zap.String("id", insertedID.String()), zap.String("prefix", key.Prefix))
	return insertedID, nil
}

func (r *APIKeyRepository) FindByHash(ctx context.Context, keyHash string) (*apikey.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1`

	key, err := scanAPIKey(r.db.QueryRow(ctx, query, keyHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apikey.ErrAPIKeyNotFound
		}
		r.logger.Error("Failed to find api key by hash", zap.Error(err))
		return nil, fmt.Errorf("db error finding api key: %w", err)
	}
	return key, nil
}

func (r *APIKeyRepository) FindByID(ctx context.Context, id uuid.UUID) (*apikey.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`

	key, err := scanAPIKey(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("API key not found by ID", zap.String("id", id.String()))
			return nil, apikey.ErrAPIKeyNotFound
		}
		r.logger.Error("Failed to find api key by ID", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("db error finding api key %s: %w", id, err)
	}
	return key, nil
}

func (r *APIKeyRepository) List(ctx context.Context, params apikey.ListParams) ([]*apikey.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys
		WHERE ($1::uuid[] IS NULL OR api_id = ANY($1))
		  AND ($2::text IS NULL OR owner_id = $2)
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, params.APIIDs, params.OwnerID)
	if err != nil {
		r.logger.Error("Failed to list api keys", zap.Error(err))
		return nil, fmt.Errorf("db error listing api keys: %w", err)
	}
	defer rows.Close()

	keys := make([]*apikey.APIKey, 0)
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("db error scanning api key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error iterating api keys: %w", err)
	}
	return keys, nil
}

func (r *APIKeyRepository) Update(ctx context.Context, key *apikey.APIKey) error {
	query := `
		UPDATE api_keys SET
			name = $2,
			owner_id = $3,
			meta = COALESCE($4::jsonb, '{}'::jsonb),
			allowed_ips = COALESCE($5::text[], '{}'),
			rate_limit_max = $6,
			rate_limit_window = $7,
			refill_enabled = $8,
			refill_amount = $9,
			refill_interval = $10,
			expires_at = $11,
			delete_protection = $12
		WHERE id = $1
	`
	var metadata any
	if len(key.Metadata) > 0 {
		metadata = string(key.Metadata)
	}

	cmdTag, err := r.db.Exec(ctx, query,
		key.ID,
		key.Name,
		key.OwnerID,
		metadata,
		key.AllowedIPs,
		key.RateLimitMax,
		key.RateLimitWindow,
		key.Refill.Enabled,
		key.Refill.Amount,
		key.Refill.Interval,
		key.ExpiresAt,
		key.DeleteProtected,
	)
	if err != nil {
		r.logger.Error("Failed to update api key", zap.String("id", key.ID.String()), zap.Error(err))
		return fmt.Errorf("db error updating api key: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apikey.ErrAPIKeyNotFound
	}
	return nil
}

func (r *APIKeyRepository) SetUsageBudget(ctx context.Context, id uuid.UUID, remaining, max *int) error {
	query := `UPDATE api_keys SET remaining_uses = $2, max_uses = $3 WHERE id = $1`
	cmdTag, err := r.db.Exec(ctx, query, id, remaining, max)
	if err != nil {
		r.logger.Error("Failed to set usage budget", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("db error setting usage budget: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apikey.ErrAPIKeyNotFound
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// revokeKey keeps the first revoked_at when the key is already revoked.
func revokeKey(ctx context.Context, e execer, id uuid.UUID, at time.Time) error {
	query := `UPDATE api_keys SET revoked = TRUE, revoked_at = COALESCE(revoked_at, $2) WHERE id = $1`
	cmdTag, err := e.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("db error revoking api key: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apikey.ErrAPIKeyNotFound
	}
	return nil
}

func (r *APIKeyRepository) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	if err := revokeKey(ctx, r.db, id, at); err != nil {
		if !errors.Is(err, apikey.ErrAPIKeyNotFound) {
			r.logger.Error("Failed to revoke api key", zap.String("id", id.String()), zap.Error(err))
		}
		return err
	}
	return nil
}

func (r *APIKeyRepository) Rotate(ctx context.Context, oldID uuid.UUID, newKey *apikey.APIKey, at time.Time) (uuid.UUID, error) {
	var newID uuid.UUID
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := revokeKey(ctx, tx, oldID, at); err != nil {
			return err
		}
		id, err := insertAPIKey(ctx, tx, newKey, r.logger)
		if err != nil {
			return err
		}
		newID = id
		return nil
	})
	if err != nil {
		if !errors.Is(err, apikey.ErrAPIKeyNotFound) {
			r.logger.Error("Failed to rotate api key", zap.String("id", oldID.String()), zap.Error(err))
		}
		return uuid.Nil, err
	}
	return newID, nil
}

func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, id uuid.UUID, lastUsed time.Time) error {
	query := `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`
	cmdTag, err := r.db.Exec(ctx, query, lastUsed, id)
	if err != nil {
		r.logger.Error("Failed to update api key last_used_at", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("db error updating last used time: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.Warn("API key not found when updating last_used_at", zap.String("id", id.String()))
	}
	return nil
}

// ApplyRefill re-checks the refill condition inside the UPDATE so two
// concurrent callers cannot both refill the same interval.
func (r *APIKeyRepository) ApplyRefill(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE api_keys SET
			remaining_uses = CASE
				WHEN max_uses IS NULL THEN remaining_uses + refill_amount
				ELSE LEAST(max_uses, remaining_uses + refill_amount)
			END,
			last_refill_at = $2
		WHERE id = $1
		  AND refill_enabled
		  AND remaining_uses IS NOT NULL
		  AND refill_amount > 0
		  AND refill_interval > 0
		  AND $2::timestamptz - COALESCE(last_refill_at, created_at) >= make_interval(secs => refill_interval)
	`
	cmdTag, err := r.db.Exec(ctx, query, id, now)
	if err != nil {
		r.logger.Error("Failed to apply usage refill", zap.String("id", id.String()), zap.Error(err))
		return false, fmt.Errorf("db error applying refill: %w", err)
	}
	return cmdTag.RowsAffected() > 0, nil
}

// DecrementUsage is a single conditional UPDATE; no rows means the budget
// was already exhausted.
func (r *APIKeyRepository) DecrementUsage(ctx context.Context, id uuid.UUID) (int, bool, error) {
	query := `
		UPDATE api_keys SET remaining_uses = remaining_uses - 1
		WHERE id = $1 AND remaining_uses > 0
		RETURNING remaining_uses
	`
	var remaining int
	err := r.db.QueryRow(ctx, query, id).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		r.logger.Error("Failed to decrement usage", zap.String("id", id.String()), zap.Error(err))
		return 0, false, fmt.Errorf("db error decrementing usage: %w", err)
	}
	return remaining, true, nil
}
