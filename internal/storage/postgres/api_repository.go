package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/apikey-service-api/internal/domain/api"
	"go.uber.org/zap"
)

type APIRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAPIRepository(db *pgxpool.Pool, logger *zap.Logger) *APIRepository {
	return &APIRepository{
		db:     db,
		logger: logger.Named("APIRepository"),
	}
}

var _ api.Repository = (*APIRepository)(nil)

func (r *APIRepository) Create(ctx context.Context, a *api.API) (uuid.UUID, error) {
	query := `INSERT INTO apis (name, owner_id) VALUES ($1, $2) RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query, a.Name, a.OwnerID).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create api", zap.String("name", a.Name), zap.Error(err))
		return uuid.Nil, fmt.Errorf("db error creating api: %w", err)
	}

	r.logger.Info("API created successfully", zap.String("id", a.ID.String()))
	return a.ID, nil
}

func (r *APIRepository) FindByID(ctx context.Context, id uuid.UUID) (*api.API, error) {
	query := `SELECT id, name, owner_id, created_at FROM apis WHERE id = $1`

	var a api.API
	err := r.db.QueryRow(ctx, query, id).Scan(&a.ID, &a.Name, &a.OwnerID, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, api.ErrNotFound
		}
		r.logger.Error("Failed to find api by ID", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("db error finding api %s: %w", id, err)
	}
	return &a, nil
}

func (r *APIRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*api.API, error) {
	query := `SELECT id, name, owner_id, created_at FROM apis WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		r.logger.Error("Failed to list apis", zap.String("owner_id", ownerID.String()), zap.Error(err))
		return nil, fmt.Errorf("db error listing apis: %w", err)
	}
	defer rows.Close()

	apis := make([]*api.API, 0)
	for rows.Next() {
		var a api.API
		if err := rows.Scan(&a.ID, &a.Name, &a.OwnerID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error scanning api: %w", err)
		}
		apis = append(apis, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error iterating apis: %w", err)
	}
	return apis, nil
}

// Delete removes the API together with its keys and their audit entries.
func (r *APIRepository) Delete(ctx context.Context, id uuid.UUID) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM audit_logs WHERE api_key_id IN (SELECT id FROM api_keys WHERE api_id = $1)`, id); err != nil {
			return fmt.Errorf("deleting audit entries: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM api_keys WHERE api_id = $1`, id); err != nil {
			return fmt.Errorf("deleting api keys: %w", err)
		}
		cmdTag, err := tx.Exec(ctx, `DELETE FROM apis WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("deleting api: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return api.ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return err
		}
		r.logger.Error("Failed to delete api", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("db error deleting api: %w", err)
	}

	r.logger.Info("API deleted", zap.String("id", id.String()))
	return nil
}
