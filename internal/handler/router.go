package handler

import (
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/makkenzo/apikey-service-api/internal/handler/middleware"
	"github.com/makkenzo/apikey-service-api/internal/ierr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Handlers struct {
	Health    *HealthHandler
	Auth      *AuthHandler
	APIs      *APIHandler
	Keys      *APIKeyHandler
	Verify    *VerifyHandler
	Analytics *AnalyticsHandler

	AuthMiddleware   gin.HandlerFunc
	APIKeyMiddleware gin.HandlerFunc
	// AuthThrottle guards the unauthenticated auth routes; nil disables it.
	AuthThrottle gin.HandlerFunc
}

func NewRouter(h Handlers, corsOrigins []string, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logMsg := "Panic recovered"
		if err, ok := recovered.(string); ok {
			logMsg = fmt.Sprintf("%s: %s", logMsg, err)
		} else if err, ok := recovered.(error); ok {
			logMsg = fmt.Sprintf("%s: %v", logMsg, err)
		}
		logger.Error(logMsg, zap.Stack("stack"))

		_ = c.Error(ierr.ErrInternalServer)
		c.Abort()
	}))

	if len(corsOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: corsOrigins,
			AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders: []string{
				"Origin",
				"Content-Type",
				"Accept",
				"Authorization",
				"X-API-Key",
			},
			ExposeHeaders: []string{
				"Content-Length",
				middleware.HeaderRateLimitRemaining,
				middleware.HeaderRateLimitReset,
			},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	router.Use(middleware.ErrorHandlerMiddleware(logger))

	router.GET("/healthz", h.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authRoutes := router.Group("/auth")
	if h.AuthThrottle != nil {
		authRoutes.Use(h.AuthThrottle)
	}
	{
		authRoutes.POST("/register", h.Auth.Register)
		authRoutes.POST("/login", h.Auth.Login)
	}

	v1 := router.Group("/v1")
	{
		v1.POST("/keys/verify", h.Verify.Verify)
		v1.GET("/whoami", h.APIKeyMiddleware, h.Verify.WhoAmI)

		apiRoutes := v1.Group("/apis")
		apiRoutes.Use(h.AuthMiddleware)
		{
			apiRoutes.POST("", h.APIs.Create)
			apiRoutes.GET("", h.APIs.List)
			apiRoutes.GET("/:id", h.APIs.GetByID)
			apiRoutes.DELETE("/:id", h.APIs.Delete)
			apiRoutes.GET("/:id/analytics", h.Analytics.APIAnalytics)
		}

		keyRoutes := v1.Group("/keys")
		keyRoutes.Use(h.AuthMiddleware)
		{
			keyRoutes.POST("", h.Keys.Create)
			keyRoutes.GET("", h.Keys.List)
			keyRoutes.GET("/:id", h.Keys.GetByID)
			keyRoutes.PATCH("/:id", h.Keys.Update)
			keyRoutes.DELETE("/:id", h.Keys.Revoke)
			keyRoutes.POST("/:id/rotate", h.Keys.Rotate)
			keyRoutes.GET("/:id/audit", h.Analytics.AuditLog)
			keyRoutes.GET("/:id/usage", h.Analytics.KeyUsage)
		}
	}

	return router
}
