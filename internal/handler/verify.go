package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/apikey-service-api/internal/handler/dto"
	"github.com/makkenzo/apikey-service-api/internal/handler/middleware"
	"github.com/makkenzo/apikey-service-api/internal/ierr"
	"github.com/makkenzo/apikey-service-api/internal/service"
	"go.uber.org/zap"
)

type VerifyHandler struct {
	service middleware.KeyVerifier
	logger  *zap.Logger
}

func NewVerifyHandler(service middleware.KeyVerifier, logger *zap.Logger) *VerifyHandler {
	return &VerifyHandler{
		service: service,
		logger:  logger.Named("VerifyHandler"),
	}
}

// Verify answers 200 for every decision, valid or not. Only store failures
// surface as errors.
func (h *VerifyHandler) Verify(c *gin.Context) {
	var req dto.VerifyAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	result, err := h.service.Verify(c.Request.Context(), service.VerifyRequest{
		Key:       req.Key,
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.logger.Error("Verification could not complete", zap.Error(err))
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, newVerifyResponse(result))
}

// WhoAmI echoes the key admitted by APIKeyAuthMiddleware.
func (h *VerifyHandler) WhoAmI(c *gin.Context) {
	result := middleware.GetVerifiedKey(c)
	if result == nil {
		_ = c.Error(ierr.ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, newVerifyResponse(result))
}

func newVerifyResponse(r *service.VerifyResult) *dto.VerifyAPIKeyResponse {
	return &dto.VerifyAPIKeyResponse{
		Valid:     r.Valid,
		KeyID:     r.KeyID,
		OwnerID:   r.OwnerID,
		Metadata:  r.Metadata,
		Remaining: r.Remaining,
		ResetAt:   r.ResetAt,
		Error:     r.Error,
	}
}
