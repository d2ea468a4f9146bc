package memstorage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/apikey-service-api/internal/domain/apikey"
	"github.com/makkenzo/apikey-service-api/internal/ierr"
)

type APIKeyRepository struct {
	s *Store
}

var (
	_ apikey.Repository = (*APIKeyRepository)(nil)
	_ apikey.UsageStore = (*APIKeyRepository)(nil)
)

func (r *APIKeyRepository) Create(ctx context.Context, key *apikey.APIKey) (uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.insertLocked(key)
}

func (r *APIKeyRepository) insertLocked(key *apikey.APIKey) (uuid.UUID, error) {
	for _, existing := range r.s.keys {
		if existing.KeyHash == key.KeyHash {
			return uuid.Nil, fmt.Errorf("%w: api key hash already exists", ierr.ErrConflict)
		}
	}

	stored := cloneKey(key)
	stored.ID = uuid.New()
	stored.CreatedAt = r.s.now().UTC()
	r.s.keys[stored.ID] = stored

	return stored.ID, nil
}

func (r *APIKeyRepository) FindByHash(ctx context.Context, keyHash string) (*apikey.APIKey, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, k := range r.s.keys {
		if k.KeyHash == keyHash {
			return cloneKey(k), nil
		}
	}
	return nil, apikey.ErrAPIKeyNotFound
}

func (r *APIKeyRepository) FindByID(ctx context.Context, id uuid.UUID) (*apikey.APIKey, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	k, ok := r.s.keys[id]
	if !ok {
		return nil, apikey.ErrAPIKeyNotFound
	}
	return cloneKey(k), nil
}

func (r *APIKeyRepository) List(ctx context.Context, params apikey.ListParams) ([]*apikey.APIKey, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var allowedAPIs map[uuid.UUID]struct{}
	if params.APIIDs != nil {
		allowedAPIs = make(map[uuid.UUID]struct{}, len(params.APIIDs))
		for _, id := range params.APIIDs {
			allowedAPIs[id] = struct{}{}
		}
	}

	keys := make([]*apikey.APIKey, 0)
	for _, k := range r.s.keys {
		if allowedAPIs != nil {
			if _, ok := allowedAPIs[k.APIID]; !ok {
				continue
			}
		}
		if params.OwnerID != nil && (k.OwnerID == nil || *k.OwnerID != *params.OwnerID) {
			continue
		}
		keys = append(keys, cloneKey(k))
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })

	return keys, nil
}

func (r *APIKeyRepository) Update(ctx context.Context, key *apikey.APIKey) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.keys[key.ID]
	if !ok {
		return apikey.ErrAPIKeyNotFound
	}

	in := cloneKey(key)
	stored.Name = in.Name
	stored.OwnerID = in.OwnerID
	stored.Metadata = in.Metadata
	stored.AllowedIPs = in.AllowedIPs
	stored.RateLimitMax = in.RateLimitMax
	stored.RateLimitWindow = in.RateLimitWindow
	lastRefill := stored.Refill.LastRefillAt
	stored.Refill = in.Refill
	stored.Refill.LastRefillAt = lastRefill
	stored.ExpiresAt = in.ExpiresAt
	stored.DeleteProtected = in.DeleteProtected

	return nil
}

func (r *APIKeyRepository) SetUsageBudget(ctx context.Context, id uuid.UUID, remaining, max *int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.keys[id]
	if !ok {
		return apikey.ErrAPIKeyNotFound
	}
	stored.RemainingUses = clonePtr(remaining)
	stored.MaxUses = clonePtr(max)
	return nil
}

func (r *APIKeyRepository) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.revokeLocked(id, at)
}

func (r *APIKeyRepository) revokeLocked(id uuid.UUID, at time.Time) error {
	stored, ok := r.s.keys[id]
	if !ok {
		return apikey.ErrAPIKeyNotFound
	}
	if stored.Revoked {
		return nil
	}
	stored.Revoked = true
	stored.RevokedAt = ptr(at.UTC())
	return nil
}

func (r *APIKeyRepository) Rotate(ctx context.Context, oldID uuid.UUID, newKey *apikey.APIKey, at time.Time) (uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.keys[oldID]; !ok {
		return uuid.Nil, apikey.ErrAPIKeyNotFound
	}
	newID, err := r.insertLocked(newKey)
	if err != nil {
		return uuid.Nil, err
	}
	if err := r.revokeLocked(oldID, at); err != nil {
		delete(r.s.keys, newID)
		return uuid.Nil, err
	}
	return newID, nil
}

func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, id uuid.UUID, lastUsed time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.keys[id]
	if !ok {
		return apikey.ErrAPIKeyNotFound
	}
	stored.LastUsedAt = ptr(lastUsed.UTC())
	return nil
}

func (r *APIKeyRepository) ApplyRefill(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.keys[id]
	if !ok || stored.RemainingUses == nil || !stored.RefillDue(now) {
		return false, nil
	}
	stored.RemainingUses = ptr(stored.RefilledRemaining())
	stored.Refill.LastRefillAt = ptr(now.UTC())
	return true, nil
}

func (r *APIKeyRepository) DecrementUsage(ctx context.Context, id uuid.UUID) (int, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.keys[id]
	if !ok || stored.RemainingUses == nil || *stored.RemainingUses <= 0 {
		return 0, false, nil
	}
	*stored.RemainingUses--
	return *stored.RemainingUses, true, nil
}
