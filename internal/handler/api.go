package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/apikey-service-api/internal/handler/dto"
	"github.com/makkenzo/apikey-service-api/internal/service"
	"go.uber.org/zap"
)

type APIHandler struct {
	service *service.APIService
	logger  *zap.Logger
}

func NewAPIHandler(service *service.APIService, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		service: service,
		logger:  logger.Named("APIHandler"),
	}
}

func (h *APIHandler) Create(c *gin.Context) {
	userID, err := currentUser(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req dto.CreateAPIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind create api request", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	created, err := h.service.CreateAPI(c.Request.Context(), userID, req.Name)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewAPIResponse(created))
}

func (h *APIHandler) List(c *gin.Context) {
	userID, err := currentUser(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	apis, err := h.service.ListAPIs(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	resp := make([]*dto.APIResponse, len(apis))
	for i, a := range apis {
		resp[i] = dto.NewAPIResponse(a)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *APIHandler) GetByID(c *gin.Context) {
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

	a, err := h.service.GetAPI(c.Request.Context(), userID, id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAPIResponse(a))
}

func (h *APIHandler) Delete(c *gin.Context) {
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

	if err := h.service.DeleteAPI(c.Request.Context(), userID, id); err != nil {
		_ = c.Error(err)
		return
	}

	h.logger.Info("API deleted via handler", zap.String("id", id.String()))
	c.Status(http.StatusNoContent)
}
