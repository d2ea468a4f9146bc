package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/makkenzo/apikey-service-api/internal/domain/apikey"
	"github.com/makkenzo/apikey-service-api/internal/domain/audit"
	"github.com/makkenzo/apikey-service-api/internal/ierr"
	"github.com/makkenzo/apikey-service-api/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAPIService_Lifecycle(t *testing.T) {
	store := memstorage.NewStore()
	svc := NewAPIService(store.APIs(), zap.NewNop())
	ctx := context.Background()
	owner := uuid.New()

	_, err := svc.CreateAPI(ctx, owner, "   ")
	assert.ErrorIs(t, err, ierr.ErrValidation)

	created, err := svc.CreateAPI(ctx, owner, "billing")
	require.NoError(t, err)
	assert.Equal(t, "billing", created.Name)
	assert.Equal(t, owner, created.OwnerID)

	list, err := svc.ListAPIs(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	stranger := uuid.New()
	_, err = svc.GetAPI(ctx, stranger, created.ID)
	assert.ErrorIs(t, err, ierr.ErrAPINotFound)
	assert.ErrorIs(t, svc.DeleteAPI(ctx, stranger, created.ID), ierr.ErrAPINotFound)

	keyID, err := store.APIKeys().Create(ctx, &apikey.APIKey{APIID: created.ID, KeyHash: "h"})
	require.NoError(t, err)
	require.NoError(t, store.Audit().Create(ctx, &audit.Entry{APIKeyID: keyID, Action: audit.ActionCreate}))

	require.NoError(t, svc.DeleteAPI(ctx, owner, created.ID))

	_, err = svc.GetAPI(ctx, owner, created.ID)
	assert.ErrorIs(t, err, ierr.ErrAPINotFound)
	_, err = store.APIKeys().FindByID(ctx, keyID)
	assert.ErrorIs(t, err, apikey.ErrAPIKeyNotFound)
	assert.Empty(t, store.Audit().Entries())
}
