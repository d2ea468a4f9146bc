// Package memstorage keeps every repository in process memory. It backs the
// "memory" database driver and the service and handler tests.
package memstorage

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/apikey-service-api/internal/domain/api"
	"github.com/makkenzo/apikey-service-api/internal/domain/apikey"
	"github.com/makkenzo/apikey-service-api/internal/domain/audit"
	"github.com/makkenzo/apikey-service-api/internal/domain/user"
)

// Store is the shared state behind the in-memory repositories. A single lock
// guards all tables so cascading deletes and conditional updates are atomic.
type Store struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*user.User
	apis  map[uuid.UUID]*api.API
	keys  map[uuid.UUID]*apikey.APIKey
	audit []*audit.Entry
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{
		users: make(map[uuid.UUID]*user.User),
		apis:  make(map[uuid.UUID]*api.API),
		keys:  make(map[uuid.UUID]*apikey.APIKey),
		now:   time.Now,
	}
}

// WithClock overrides the time source used for created_at columns.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Users() *UserRepository {
	return &UserRepository{s: s}
}

func (s *Store) APIs() *APIRepository {
	return &APIRepository{s: s}
}

func (s *Store) APIKeys() *APIKeyRepository {
	return &APIKeyRepository{s: s}
}

func (s *Store) Audit() *AuditRepository {
	return &AuditRepository{s: s}
}

func ptr[T any](v T) *T {
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	return ptr(*p)
}

func cloneKey(k *apikey.APIKey) *apikey.APIKey {
	c := *k
	c.Name = clonePtr(k.Name)
	c.OwnerID = clonePtr(k.OwnerID)
	if k.Metadata != nil {
		c.Metadata = append(json.RawMessage(nil), k.Metadata...)
	}
	if k.AllowedIPs != nil {
		c.AllowedIPs = append([]string(nil), k.AllowedIPs...)
	}
	c.RateLimitMax = clonePtr(k.RateLimitMax)
	c.RateLimitWindow = clonePtr(k.RateLimitWindow)
	c.RemainingUses = clonePtr(k.RemainingUses)
	c.MaxUses = clonePtr(k.MaxUses)
	c.Refill.Amount = clonePtr(k.Refill.Amount)
	c.Refill.Interval = clonePtr(k.Refill.Interval)
	c.Refill.LastRefillAt = clonePtr(k.Refill.LastRefillAt)
	c.ExpiresAt = clonePtr(k.ExpiresAt)
	c.RevokedAt = clonePtr(k.RevokedAt)
	c.LastUsedAt = clonePtr(k.LastUsedAt)
	return &c
}

func cloneEntry(e *audit.Entry) *audit.Entry {
	c := *e
	c.IPAddress = clonePtr(e.IPAddress)
	c.UserAgent = clonePtr(e.UserAgent)
	if e.Context != nil {
		c.Context = make(audit.Context, len(e.Context))
		for k, v := range e.Context {
			c.Context[k] = v
		}
	}
	return &c
}
