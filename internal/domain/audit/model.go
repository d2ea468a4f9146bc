package audit

import (
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionCreate    Action = "create"
	ActionVerify    Action = "verify"
	ActionUpdate    Action = "update"
	ActionRevoke    Action = "revoke"
	ActionRotateOld Action = "rotate_old"
	ActionRotateNew Action = "rotate_new"
)

// Context is an opaque payload stored verbatim with the entry.
type Context map[string]interface{}

type Entry struct {
	ID        uuid.UUID `db:"id" json:"id"`
	APIKeyID  uuid.UUID `db:"api_key_id" json:"api_key_id"`
	Action    Action    `db:"action" json:"action"`
	IPAddress *string   `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent *string   `db:"user_agent" json:"user_agent,omitempty"`
	Context   Context   `db:"context" json:"context,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// VerificationStats aggregates verify entries for one key.
type VerificationStats struct {
	Total      int64
	Successful int64
}
