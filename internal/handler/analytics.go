package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/apikey-service-api/internal/handler/dto"
	"github.com/makkenzo/apikey-service-api/internal/service"
	"go.uber.org/zap"
)

type AnalyticsHandler struct {
	service *service.AnalyticsService
	logger  *zap.Logger
}

func NewAnalyticsHandler(service *service.AnalyticsService, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
		logger:  logger.Named("AnalyticsHandler"),
	}
}

func (h *AnalyticsHandler) AuditLog(c *gin.Context) {
	userID, err := currentUser(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	keyID, err := pathID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req dto.AuditLogRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	entries, err := h.service.AuditLog(c.Request.Context(), userID, keyID, &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

func (h *AnalyticsHandler) KeyUsage(c *gin.Context) {
	userID, err := currentUser(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	keyID, err := pathID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req dto.UsageStatsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	stats, err := h.service.KeyUsage(c.Request.Context(), userID, keyID, req.Days)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *AnalyticsHandler) APIAnalytics(c *gin.Context) {
	userID, err := currentUser(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	apiID, err := pathID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req dto.UsageStatsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	stats, err := h.service.APIAnalytics(c.Request.Context(), userID, apiID, req.Days)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
