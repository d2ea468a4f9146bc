package middleware

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/apikey-service-api/internal/ierr"
	"github.com/makkenzo/apikey-service-api/internal/service"
	"go.uber.org/zap"
)

const (
	apiKeyHeader          = "X-API-Key"
	verifiedKeyContextKey = "verifiedKey"

	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

type KeyVerifier interface {
	Verify(ctx context.Context, req service.VerifyRequest) (*service.VerifyResult, error)
}

// APIKeyAuthMiddleware admits requests carrying a key that passes the full
// verification pipeline. Each request is one verification attempt.
func APIKeyAuthMiddleware(verifier KeyVerifier, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("APIKeyAuthMiddleware")
	return func(c *gin.Context) {
		rawKey := c.GetHeader(apiKeyHeader)
		if rawKey == "" {
			log.Debug("API key header is missing", zap.String("header", apiKeyHeader))
			_ = c.Error(fmt.Errorf("%w: api key required", ierr.ErrUnauthorized))
			c.Abort()
			return
		}

		result, err := verifier.Verify(c.Request.Context(), service.VerifyRequest{
			Key:       rawKey,
			ClientIP:  c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		if err != nil {
			log.Error("API key verification failed", zap.Error(err))
			_ = c.Error(err)
			c.Abort()
			return
		}

		if result.Remaining != nil {
			c.Header(HeaderRateLimitRemaining, strconv.Itoa(*result.Remaining))
		}
		if result.ResetAt != nil {
			c.Header(HeaderRateLimitReset, strconv.FormatInt(*result.ResetAt, 10))
		}

		if !result.Valid {
			log.Debug("API key rejected", zap.String("reason", result.Error))
			_ = c.Error(rejection(result.Error))
			c.Abort()
			return
		}

		c.Set(verifiedKeyContextKey, result)
		c.Next()
	}
}

func rejection(reason string) error {
	switch reason {
	case service.ReasonIPNotAllowed:
		return fmt.Errorf("%w: %s", ierr.ErrForbidden, reason)
	case service.ReasonRateLimited, service.ReasonUsageExceeded:
		return fmt.Errorf("%w: %s", ierr.ErrRateLimited, reason)
	default:
		return fmt.Errorf("%w: %s", ierr.ErrUnauthorized, reason)
	}
}

// GetVerifiedKey returns the verification result stored by APIKeyAuthMiddleware.
func GetVerifiedKey(c *gin.Context) *service.VerifyResult {
	value, exists := c.Get(verifiedKeyContextKey)
	if !exists {
		return nil
	}
	result, ok := value.(*service.VerifyResult)
	if !ok {
		return nil
	}
	return result
}
