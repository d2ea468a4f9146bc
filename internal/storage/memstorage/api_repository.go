package memstorage

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/makkenzo/apikey-service-api/internal/domain/api"
)

type APIRepository struct {
	s *Store
}

var _ api.Repository = (*APIRepository)(nil)

func (r *APIRepository) Create(ctx context.Context, a *api.API) (uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored := *a
	stored.ID = uuid.New()
	stored.CreatedAt = r.s.now().UTC()
	r.s.apis[stored.ID] = &stored

	return stored.ID, nil
}

func (r *APIRepository) FindByID(ctx context.Context, id uuid.UUID) (*api.API, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.apis[id]
	if !ok {
		return nil, api.ErrNotFound
	}
	apiCopy := *a
	return &apiCopy, nil
}

func (r *APIRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*api.API, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	apis := make([]*api.API, 0)
	for _, a := range r.s.apis {
		if a.OwnerID == ownerID {
			apiCopy := *a
			apis = append(apis, &apiCopy)
		}
	}
	sort.Slice(apis, func(i, j int) bool { return apis[i].CreatedAt.After(apis[j].CreatedAt) })
	return apis, nil
}

func (r *APIRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.apis[id]; !ok {
		return api.ErrNotFound
	}

	doomed := make(map[uuid.UUID]struct{})
	for keyID, k := range r.s.keys {
		if k.APIID == id {
			doomed[keyID] = struct{}{}
		}
	}

	kept := r.s.audit[:0]
	for _, e := range r.s.audit {
		if _, ok := doomed[e.APIKeyID]; !ok {
			kept = append(kept, e)
		}
	}
	r.s.audit = kept

	for keyID := range doomed {
		delete(r.s.keys, keyID)
	}
	delete(r.s.apis, id)

	return nil
}
