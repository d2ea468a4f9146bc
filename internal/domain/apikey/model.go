package apikey

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type APIKey struct {
	ID              uuid.UUID       `db:"id"`
	APIID           uuid.UUID       `db:"api_id"`
	KeyHash         string          `db:"key_hash"`
	Prefix          string          `db:"key_prefix"`
	Name            *string         `db:"name"`
	OwnerID         *string         `db:"owner_id"`
	Metadata        json.RawMessage `db:"meta"`
	AllowedIPs      []string        `db:"allowed_ips"`
	RateLimitMax    *int            `db:"rate_limit_max"`
	RateLimitWindow *int            `db:"rate_limit_window"`
	RemainingUses   *int            `db:"remaining_uses"`
	MaxUses         *int            `db:"max_uses"`
	Refill          RefillPolicy
	ExpiresAt       *time.Time `db:"expires_at"`
	Revoked         bool       `db:"revoked"`
	RevokedAt       *time.Time `db:"revoked_at"`
	DeleteProtected bool       `db:"delete_protection"`
	CreatedAt       time.Time  `db:"created_at"`
	LastUsedAt      *time.Time `db:"last_used_at"`
}

// RefillPolicy replenishes RemainingUses by Amount every Interval seconds,
// capped at MaxUses.
type RefillPolicy struct {
	Enabled      bool       `db:"refill_enabled"`
	Amount       *int       `db:"refill_amount"`
	Interval     *int       `db:"refill_interval"`
	LastRefillAt *time.Time `db:"last_refill_at"`
}

const (
	DisplayPrefixLength = 8
	DisplayEllipsis     = "..."
	SecretBytes         = 32
)

func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

func (k *APIKey) HasRateLimit() bool {
	return k.RateLimitMax != nil && *k.RateLimitMax > 0
}

func (k *APIKey) HasUsageLimit() bool {
	return k.RemainingUses != nil
}

// RefillDue reports whether the refill policy should be applied at now.
// A policy that has never run is measured from the key's creation time.
func (k *APIKey) RefillDue(now time.Time) bool {
	p := k.Refill
	if !p.Enabled || p.Amount == nil || *p.Amount <= 0 || p.Interval == nil || *p.Interval <= 0 {
		return false
	}
	last := k.CreatedAt
	if p.LastRefillAt != nil {
		last = *p.LastRefillAt
	}
	return now.Sub(last) >= time.Duration(*p.Interval)*time.Second
}

// RefilledRemaining returns min(max, remaining+amount). Without a max the
// amount is added unbounded.
func (k *APIKey) RefilledRemaining() int {
	remaining := 0
	if k.RemainingUses != nil {
		remaining = *k.RemainingUses
	}
	if k.Refill.Amount != nil {
		remaining += *k.Refill.Amount
	}
	if k.MaxUses != nil && remaining > *k.MaxUses {
		remaining = *k.MaxUses
	}
	return remaining
}
