package dto

import (
	"github.com/google/uuid"
	"github.com/makkenzo/apikey-service-api/internal/domain/audit"
)

type AuditLogRequest struct {
	Limit  int           `form:"limit,default=50" binding:"omitempty,gte=1,lte=500"`
	Offset int           `form:"offset,default=0" binding:"omitempty,gte=0"`
	Action *audit.Action `form:"action" binding:"omitempty,oneof=create verify update revoke rotate_old rotate_new"`
}

type UsageStatsRequest struct {
	Days int `form:"days,default=7" binding:"omitempty,gte=1,lte=90"`
}

type UsageStatsResponse struct {
	KeyID              uuid.UUID `json:"key_id"`
	PeriodDays         int       `json:"period_days"`
	TotalRequests      int64     `json:"total_requests"`
	SuccessfulRequests int64     `json:"successful_requests"`
	FailedRequests     int64     `json:"failed_requests"`
	// CurrentWindowUsage is the live sliding-window count, present only for
	// rate-limited keys.
	CurrentWindowUsage *int64 `json:"current_window_usage,omitempty"`
}

type APIAnalyticsResponse struct {
	APIID              uuid.UUID `json:"api_id"`
	APIName            string    `json:"api_name"`
	PeriodDays         int       `json:"period_days"`
	TotalKeys          int64     `json:"total_keys"`
	ActiveKeys         int64     `json:"active_keys"`
	RevokedKeys        int64     `json:"revoked_keys"`
	TotalVerifications int64     `json:"total_verifications"`
}
