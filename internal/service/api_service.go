package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/makkenzo/apikey-service-api/internal/domain/api"
	"github.com/makkenzo/apikey-service-api/internal/ierr"
	"go.uber.org/zap"
)

// APIService manages API namespaces, the containers keys are issued under.
type APIService struct {
	repo   api.Repository
	logger *zap.Logger
}

func NewAPIService(repo api.Repository, logger *zap.Logger) *APIService {
	return &APIService{
		repo:   repo,
		logger: logger.Named("APIService"),
	}
}

func (s *APIService) CreateAPI(ctx context.Context, ownerID uuid.UUID, name string) (*api.API, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name must not be blank", ierr.ErrValidation)
	}

	s.logger.Info("Creating api", zap.String("owner_id", ownerID.String()), zap.String("name", name))

	id, err := s.repo.Create(ctx, &api.API{Name: name, OwnerID: ownerID})
	if err != nil {
		s.logger.Error("Failed to create api via repository", zap.Error(err))
		return nil, fmt.Errorf("repository error during api creation: %w", err)
	}

	created, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to find newly created api by ID", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve created api (id: %s): %w", id, err)
	}

	s.logger.Info("API created successfully", zap.String("id", id.String()))
	return created, nil
}

func (s *APIService) ListAPIs(ctx context.Context, ownerID uuid.UUID) ([]*api.API, error) {
	apis, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		s.logger.Error("Failed to list apis from repository", zap.Error(err))
		return nil, fmt.Errorf("repository error listing apis: %w", err)
	}
	return apis, nil
}

func (s *APIService) GetAPI(ctx context.Context, ownerID, id uuid.UUID) (*api.API, error) {
	return ownedAPI(ctx, s.repo, ownerID, id)
}

// DeleteAPI removes the namespace with every key issued under it and their
// audit trail.
func (s *APIService) DeleteAPI(ctx context.Context, ownerID, id uuid.UUID) error {
	if _, err := ownedAPI(ctx, s.repo, ownerID, id); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error("Failed to delete api via repository", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("repository error deleting api %s: %w", id, err)
	}

	s.logger.Info("API deleted", zap.String("id", id.String()))
	return nil
}
