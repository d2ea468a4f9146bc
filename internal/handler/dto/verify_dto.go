package dto

import (
	"encoding/json"

	"github.com/google/uuid"
)

type VerifyAPIKeyRequest struct {
	Key string `json:"key"`
}

type VerifyAPIKeyResponse struct {
	Valid     bool            `json:"valid"`
	KeyID     *uuid.UUID      `json:"key_id,omitempty"`
	OwnerID   *string         `json:"owner_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty" swaggertype:"object"`
	Remaining *int            `json:"remaining,omitempty"`
	ResetAt   *int64          `json:"reset_at,omitempty"`
	Error     string          `json:"error,omitempty"`
}
