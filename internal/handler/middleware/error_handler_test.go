package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/apikey-service-api/internal/handler/dto"
	"github.com/makkenzo/apikey-service-api/internal/ierr"
	"github.com/makkenzo/apikey-service-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestErrorHandlerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "validation", err: fmt.Errorf("%w: bad", ierr.ErrValidation), wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
		{name: "delete protected", err: ierr.ErrDeleteProtected, wantStatus: http.StatusBadRequest, wantCode: "DELETE_PROTECTED"},
		{name: "bad token", err: ierr.ErrInvalidToken, wantStatus: http.StatusUnauthorized, wantCode: "UNAUTHENTICATED"},
		{name: "bad claims", err: ierr.ErrTokenInvalidClaims, wantStatus: http.StatusUnauthorized, wantCode: "UNAUTHENTICATED"},
		{name: "forbidden", err: ierr.ErrForbidden, wantStatus: http.StatusForbidden, wantCode: "FORBIDDEN"},
		{name: "key not found", err: ierr.ErrAPIKeyNotFound, wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "api not found", err: ierr.ErrAPINotFound, wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "conflict", err: fmt.Errorf("%w: dup", ierr.ErrConflict), wantStatus: http.StatusConflict, wantCode: "CONFLICT"},
		{name: "rate limited", err: ierr.ErrRateLimited, wantStatus: http.StatusTooManyRequests, wantCode: "RATE_LIMITED"},
		{name: "update failed", err: ierr.ErrUpdateFailed, wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR"},
		{name: "unknown", err: errors.New("connection reset"), wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(ErrorHandlerMiddleware(zap.NewNop()))
			router.GET("/", func(c *gin.Context) { _ = c.Error(tt.err) })

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp dto.APIErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
			if tt.wantStatus == http.StatusInternalServerError {
				assert.NotContains(t, resp.Message, "connection reset")
			}
		})
	}
}

func TestRejection(t *testing.T) {
	assert.ErrorIs(t, rejection(service.ReasonKeyNotFound), ierr.ErrUnauthorized)
	assert.ErrorIs(t, rejection(service.ReasonKeyRevoked), ierr.ErrUnauthorized)
	assert.ErrorIs(t, rejection(service.ReasonKeyExpired), ierr.ErrUnauthorized)
	assert.ErrorIs(t, rejection(service.ReasonIPNotAllowed), ierr.ErrForbidden)
	assert.ErrorIs(t, rejection(service.ReasonRateLimited), ierr.ErrRateLimited)
	assert.ErrorIs(t, rejection(service.ReasonUsageExceeded), ierr.ErrRateLimited)
}
