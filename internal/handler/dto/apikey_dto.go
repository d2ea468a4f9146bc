package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/apikey-service-api/internal/domain/apikey"
)

type CreateAPIKeyRequest struct {
	APIID            uuid.UUID       `json:"api_id" binding:"required"`
	Name             *string         `json:"name" binding:"omitempty,max=255"`
	OwnerID          *string         `json:"owner_id" binding:"omitempty,max=255"`
	Metadata         json.RawMessage `json:"metadata" swaggertype:"object"`
	AllowedIPs       []string        `json:"allowed_ips"`
	RateLimitMax     *int            `json:"rate_limit_max" binding:"omitempty,gte=1"`
	RateLimitWindow  *int            `json:"rate_limit_window" binding:"omitempty,gte=1"`
	RemainingUses    *int            `json:"remaining_uses" binding:"omitempty,gte=1"`
	RefillEnabled    bool            `json:"refill_enabled"`
	RefillAmount     *int            `json:"refill_amount" binding:"omitempty,gte=1"`
	RefillInterval   *int            `json:"refill_interval" binding:"omitempty,gte=1"`
	ExpiresAt        *time.Time      `json:"expires_at"`
	DeleteProtection bool            `json:"delete_protection"`
}

// CreateAPIKeyResponse carries the raw key. It is the only response that
// ever does.
type CreateAPIKeyResponse struct {
	ID        uuid.UUID `json:"id"`
	Key       string    `json:"key"`
	KeyPrefix string    `json:"key_prefix"`
	Name      *string   `json:"name"`
	APIID     uuid.UUID `json:"api_id"`
	CreatedAt time.Time `json:"created_at"`
}

func NewCreateAPIKeyResponse(k *apikey.APIKey, rawKey string) *CreateAPIKeyResponse {
	return &CreateAPIKeyResponse{
		ID:        k.ID,
		Key:       rawKey,
		KeyPrefix: k.Prefix,
		Name:      k.Name,
		APIID:     k.APIID,
		CreatedAt: k.CreatedAt,
	}
}

type APIKeyResponse struct {
	ID               uuid.UUID       `json:"id"`
	KeyPrefix        string          `json:"key_prefix"`
	Name             *string         `json:"name"`
	APIID            uuid.UUID       `json:"api_id"`
	OwnerID          *string         `json:"owner_id"`
	Metadata         json.RawMessage `json:"metadata" swaggertype:"object"`
	AllowedIPs       []string        `json:"allowed_ips"`
	RateLimitMax     *int            `json:"rate_limit_max"`
	RateLimitWindow  *int            `json:"rate_limit_window"`
	RemainingUses    *int            `json:"remaining_uses"`
	MaxUses          *int            `json:"max_uses"`
	RefillEnabled    bool            `json:"refill_enabled"`
	RefillAmount     *int            `json:"refill_amount,omitempty"`
	RefillInterval   *int            `json:"refill_interval,omitempty"`
	LastRefillAt     *time.Time      `json:"last_refill_at,omitempty"`
	ExpiresAt        *time.Time      `json:"expires_at"`
	Revoked          bool            `json:"revoked"`
	RevokedAt        *time.Time      `json:"revoked_at,omitempty"`
	DeleteProtection bool            `json:"delete_protection"`
	CreatedAt        time.Time       `json:"created_at"`
	LastUsedAt       *time.Time      `json:"last_used_at"`
}

func NewAPIKeyResponse(k *apikey.APIKey) *APIKeyResponse {
	allowed := k.AllowedIPs
	if allowed == nil {
		allowed = []string{}
	}
	return &APIKeyResponse{
		ID:               k.ID,
		KeyPrefix:        k.Prefix,
		Name:             k.Name,
		APIID:            k.APIID,
		OwnerID:          k.OwnerID,
		Metadata:         k.Metadata,
		AllowedIPs:       allowed,
		RateLimitMax:     k.RateLimitMax,
		RateLimitWindow:  k.RateLimitWindow,
		RemainingUses:    k.RemainingUses,
		MaxUses:          k.MaxUses,
		RefillEnabled:    k.Refill.Enabled,
		RefillAmount:     k.Refill.Amount,
		RefillInterval:   k.Refill.Interval,
		LastRefillAt:     k.Refill.LastRefillAt,
		ExpiresAt:        k.ExpiresAt,
		Revoked:          k.Revoked,
		RevokedAt:        k.RevokedAt,
		DeleteProtection: k.DeleteProtected,
		CreatedAt:        k.CreatedAt,
		LastUsedAt:       k.LastUsedAt,
	}
}

// ListAPIKeysRequest binds api_id as text; the handler resolves it into
// APIID after validation.
type ListAPIKeysRequest struct {
	RawAPIID string     `form:"api_id" binding:"omitempty,uuid"`
	APIID    *uuid.UUID `form:"-"`
	OwnerID  *string    `form:"owner_id"`
}

// UpdateAPIKeyRequest is a partial update; nil fields are left unchanged.
type UpdateAPIKeyRequest struct {
	Name             *string         `json:"name" binding:"omitempty,max=255"`
	OwnerID          *string         `json:"owner_id" binding:"omitempty,max=255"`
	Metadata         json.RawMessage `json:"metadata" swaggertype:"object"`
	AllowedIPs       *[]string       `json:"allowed_ips"`
	RateLimitMax     *int            `json:"rate_limit_max" binding:"omitempty,gte=0"`
	RateLimitWindow  *int            `json:"rate_limit_window" binding:"omitempty,gte=1"`
	RemainingUses    *int            `json:"remaining_uses" binding:"omitempty,gte=0"`
	RefillEnabled    *bool           `json:"refill_enabled"`
	RefillAmount     *int            `json:"refill_amount" binding:"omitempty,gte=1"`
	RefillInterval   *int            `json:"refill_interval" binding:"omitempty,gte=1"`
	ExpiresAt        *time.Time      `json:"expires_at"`
	DeleteProtection *bool           `json:"delete_protection"`
}

type RevokeAPIKeyRequest struct {
	Force bool `form:"force"`
}
