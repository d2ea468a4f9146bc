package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/makkenzo/apikey-service-api/internal/handler/dto"
	"github.com/makkenzo/apikey-service-api/internal/ierr"
	"github.com/makkenzo/apikey-service-api/internal/service"
	"go.uber.org/zap"
)

type APIKeyHandler struct {
	service *service.APIKeyService
	logger  *zap.Logger
}

func NewAPIKeyHandler(service *service.APIKeyService, logger *zap.Logger) *APIKeyHandler {
	return &APIKeyHandler{
		service: service,
		logger:  logger.Named("APIKeyHandler"),
	}
}

func (h *APIKeyHandler) Create(c *gin.Context) {
	userID, err := currentUser(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req dto.CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind create api key request", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	key, rawKey, err := h.service.CreateAPIKey(c.Request.Context(), userID, &req, requestInfo(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.logger.Info("API key created via handler", zap.String("id", key.ID.String()))
	c.JSON(http.StatusCreated, dto.NewCreateAPIKeyResponse(key, rawKey))
}

func (h *APIKeyHandler) List(c *gin.Context) {
	userID, err := currentUser(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req dto.ListAPIKeysRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	if req.RawAPIID != "" {
		apiID, err := uuid.Parse(req.RawAPIID)
		if err != nil {
			_ = c.Error(fmt.Errorf("%w: invalid api_id format", ierr.ErrValidation))
			return
		}
		req.APIID = &apiID
	}

	keys, err := h.service.ListAPIKeys(c.Request.Context(), userID, &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	resp := make([]*dto.APIKeyResponse, len(keys))
	for i, k := range keys {
		resp[i] = dto.NewAPIKeyResponse(k)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *APIKeyHandler) GetByID(c *gin.Context) {
	userID, err := currentUser(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	key, err := h.service.GetAPIKey(c.Request.Context(), userID, id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAPIKeyResponse(key))
}

func (h *APIKeyHandler) Update(c *gin.Context) {
	userID, err := currentUser(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req dto.UpdateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind update api key request", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	key, err := h.service.UpdateAPIKey(c.Request.Context(), userID, id, &req, requestInfo(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAPIKeyResponse(key))
}

func (h *APIKeyHandler) Revoke(c *gin.Context) {
	userID, err := currentUser(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req dto.RevokeAPIKeyRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	if err := h.service.RevokeAPIKey(c.Request.Context(), userID, id, req.Force, requestInfo(c)); err != nil {
		_ = c.Error(err)
		return
	}

	h.logger.Info("API key revoked via handler", zap.String("id", id.String()), zap.Bool("force", req.Force))
	c.Status(http.StatusNoContent)
}

func (h *APIKeyHandler) Rotate(c *gin.Context) {
	userID, err := currentUser(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	key, rawKey, err := h.service.RotateAPIKey(c.Request.Context(), userID, id, requestInfo(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.logger.Info("API key rotated via handler", zap.String("old_id", id.String()), zap.String("new_id", key.ID.String()))
	c.JSON(http.StatusCreated, dto.NewCreateAPIKeyResponse(key, rawKey))
}
