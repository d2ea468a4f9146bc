package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/makkenzo/apikey-service-api/internal/domain/api"
	"github.com/makkenzo/apikey-service-api/internal/domain/apikey"
	"github.com/makkenzo/apikey-service-api/internal/ierr"
)

// ownedAPI loads an API namespace, hiding namespaces of other users behind
// the not-found error.
func ownedAPI(ctx context.Context, apis api.Repository, userID, apiID uuid.UUID) (*api.API, error) {
	a, err := apis.FindByID(ctx, apiID)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return nil, ierr.ErrAPINotFound
		}
		return nil, fmt.Errorf("repository error finding api %s: %w", apiID, err)
	}
	if a.OwnerID != userID {
		return nil, ierr.ErrAPINotFound
	}
	return a, nil
}

// ownedKey loads a key whose API belongs to userID.
func ownedKey(ctx context.Context, apis api.Repository, keys apikey.Repository, userID, keyID uuid.UUID) (*apikey.APIKey, error) {
	k, err := keys.FindByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, apikey.ErrAPIKeyNotFound) {
			return nil, ierr.ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("repository error finding api key %s: %w", keyID, err)
	}
	if _, err := ownedAPI(ctx, apis, userID, k.APIID); err != nil {
		if errors.Is(err, ierr.ErrAPINotFound) {
			return nil, ierr.ErrAPIKeyNotFound
		}
		return nil, err
	}
	return k, nil
}
