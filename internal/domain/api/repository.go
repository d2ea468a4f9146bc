package api

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("api not found")

type Repository interface {
	Create(ctx context.Context, a *API) (uuid.UUID, error)
	FindByID(ctx context.Context, id uuid.UUID) (*API, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*API, error)
	// Delete removes the API together with its keys and their audit entries,
	// children first.
	Delete(ctx context.Context, id uuid.UUID) error
}
