package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/apikey-service-api/internal/domain/api"
)

type CreateAPIRequest struct {
	Name string `json:"name" binding:"required,min=1,max=255"`
}

type APIResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func NewAPIResponse(a *api.API) *APIResponse {
	return &APIResponse{
		ID:        a.ID,
		Name:      a.Name,
		CreatedAt: a.CreatedAt,
	}
}
