package apikey

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrAPIKeyNotFound = errors.New("api key not found")

type ListParams struct {
	APIIDs  []uuid.UUID
	OwnerID *string
}

type Repository interface {
	Create(ctx context.Context, key *APIKey) (uuid.UUID, error)
	FindByHash(ctx context.Context, keyHash string) (*APIKey, error)
	FindByID(ctx context.Context, id uuid.UUID) (*APIKey, error)
	List(ctx context.Context, params ListParams) ([]*APIKey, error)
	// Update writes the descriptive and policy fields. It never touches the
	// usage budget, revocation state, hash or prefix.
	Update(ctx context.Context, key *APIKey) error
	// SetUsageBudget overwrites remaining and max uses.
	SetUsageBudget(ctx context.Context, id uuid.UUID, remaining, max *int) error
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) error
	// Rotate revokes oldID and inserts newKey in a single transaction.
	Rotate(ctx context.Context, oldID uuid.UUID, newKey *APIKey, at time.Time) (uuid.UUID, error)
	UpdateLastUsed(ctx context.Context, id uuid.UUID, lastUsed time.Time) error
}

// UsageStore holds the consumable use budget. Both operations must be
// single conditional updates so concurrent verifications cannot overdraw.
type UsageStore interface {
	// ApplyRefill tops the budget up when the key's refill interval has
	// elapsed at now. It reports whether a refill happened.
	ApplyRefill(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	// DecrementUsage consumes one use if any remain. ok is false when the
	// budget is exhausted; remaining is the budget after the decrement.
	DecrementUsage(ctx context.Context, id uuid.UUID) (remaining int, ok bool, err error)
}
