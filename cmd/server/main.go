package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/apikey-service-api/internal/auditlog"
	"github.com/makkenzo/apikey-service-api/internal/config"
	"github.com/makkenzo/apikey-service-api/internal/domain/api"
	"github.com/makkenzo/apikey-service-api/internal/domain/apikey"
	"github.com/makkenzo/apikey-service-api/internal/domain/audit"
	"github.com/makkenzo/apikey-service-api/internal/domain/user"
	"github.com/makkenzo/apikey-service-api/internal/handler"
	"github.com/makkenzo/apikey-service-api/internal/handler/middleware"
	"github.com/makkenzo/apikey-service-api/internal/keycodec"
	"github.com/makkenzo/apikey-service-api/internal/ratelimit"
	"github.com/makkenzo/apikey-service-api/internal/service"
	"github.com/makkenzo/apikey-service-api/internal/storage/memstorage"
	"github.com/makkenzo/apikey-service-api/internal/storage/postgres"
	"github.com/makkenzo/apikey-service-api/internal/storage/redis"
	"github.com/makkenzo/apikey-service-api/internal/usage"
	"github.com/makkenzo/apikey-service-api/internal/worker"
	"github.com/makkenzo/apikey-service-api/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type repositories struct {
	users user.Repository
	apis  api.Repository
	keys  interface {
		apikey.Repository
		apikey.UsageStore
	}
	audit audit.Repository
}

func main() {
	configPath := flag.String("config", "./configs/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	sugarLogger := appLogger.Sugar()

	sugarLogger.Info("Starting application...")
	sugarLogger.Infof("Log level set to: %s", cfg.Log.Level)

	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		dbPool *pgxpool.Pool
		repos  repositories
	)
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		dbPool, err = postgres.NewPgxPool(appCtx, &cfg.Database, appLogger)
		if err != nil {
			sugarLogger.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		defer dbPool.Close()

		if err := postgres.Migrate(appCtx, dbPool, appLogger); err != nil {
			sugarLogger.Fatalf("Failed to apply database schema: %v", err)
		}

		repos = repositories{
			users: postgres.NewUserRepository(dbPool, appLogger),
			apis:  postgres.NewAPIRepository(dbPool, appLogger),
			keys:  postgres.NewAPIKeyRepository(dbPool, appLogger),
			audit: postgres.NewAuditRepository(dbPool, appLogger),
		}
	default:
		sugarLogger.Warn("Using in-memory storage; data is lost on restart")
		store := memstorage.NewStore()
		repos = repositories{
			users: store.Users(),
			apis:  store.APIs(),
			keys:  store.APIKeys(),
			audit: store.Audit(),
		}
	}

	redisClient, err := redis.NewRedisClient(appCtx, &cfg.Redis, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	codec := keycodec.New(cfg.Security.SecretKey, cfg.Security.KeyPrefix)

	rlCfg := ratelimit.DefaultConfig()
	rlCfg.Timeout = cfg.Limits.StoreTimeout
	rlCfg.BreakerFailures = cfg.Limits.BreakerFailures
	rlCfg.BreakerTimeout = cfg.Limits.BreakerTimeout
	rateLimiter := ratelimit.NewLimiter(redisClient, rlCfg, appLogger)

	usageLimiter := usage.NewLimiter(repos.keys, appLogger)
	recorder := auditlog.NewRecorder(repos.audit, cfg.Audit.WriteTimeout, appLogger)

	authService := service.NewAuthService(repos.users, &cfg.Security, appLogger)
	apiService := service.NewAPIService(repos.apis, appLogger)
	apiKeyService := service.NewAPIKeyService(repos.keys, repos.apis, codec, recorder, cfg.Limits, appLogger)
	verifyService := service.NewVerifyService(repos.keys, codec, rateLimiter, usageLimiter, recorder, cfg.Limits.DefaultRateWindow, appLogger)
	analyticsService := service.NewAnalyticsService(repos.keys, repos.apis, repos.audit, rateLimiter, cfg.Limits.DefaultRateWindow, appLogger)

	var authThrottle *middleware.ClientThrottle
	var authThrottleMiddleware gin.HandlerFunc
	if cfg.Security.AuthRPS > 0 {
		authThrottle = middleware.NewClientThrottle(cfg.Security.AuthRPS, cfg.Security.AuthBurst, appLogger)
		authThrottleMiddleware = authThrottle.Middleware()
	}

	router := handler.NewRouter(handler.Handlers{
		Health:           handler.NewHealthHandler(dbPool, redisClient, appLogger),
		Auth:             handler.NewAuthHandler(authService, appLogger),
		APIs:             handler.NewAPIHandler(apiService, appLogger),
		Keys:             handler.NewAPIKeyHandler(apiKeyService, appLogger),
		Verify:           handler.NewVerifyHandler(verifyService, appLogger),
		Analytics:        handler.NewAnalyticsHandler(analyticsService, appLogger),
		AuthMiddleware:   middleware.AuthMiddleware(authService, appLogger),
		APIKeyMiddleware: middleware.APIKeyAuthMiddleware(verifyService, appLogger),
		AuthThrottle:     authThrottleMiddleware,
	}, cfg.Server.CORSOrigins, appLogger)

	g, groupCtx := errgroup.WithContext(appCtx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		sugarLogger.Infof("HTTP server listening on port %s", cfg.Server.Port)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugarLogger.Errorf("HTTP server ListenAndServe error: %v", err)
			return fmt.Errorf("http server failed: %w", err)
		}
		sugarLogger.Info("HTTP server stopped listening.")
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		sugarLogger.Info("Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			sugarLogger.Errorf("HTTP server graceful shutdown failed: %v", err)
			return fmt.Errorf("http server shutdown error: %w", err)
		}
		sugarLogger.Info("HTTP server shutdown complete.")
		return nil
	})

	g.Go(func() error {
		if err := worker.RunWorkers(groupCtx, cfg, repos.audit, appLogger); err != nil {
			sugarLogger.Error("Asynq worker failed", zap.Error(err))
			return fmt.Errorf("asynq worker error: %w", err)
		}
		sugarLogger.Info("Asynq workers finished gracefully.")
		return nil
	})

	if authThrottle != nil {
		g.Go(func() error {
			return authThrottle.Run(groupCtx, time.Minute)
		})
	}

	sugarLogger.Info("Application started. Waiting for interrupt signal (Ctrl+C) or component error...")

	waitErr := g.Wait()

	sugarLogger.Info("Shutdown sequence finished.")

	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		sugarLogger.Errorf("Application shutdown finished with unexpected error: %v", waitErr)
	} else {
		sugarLogger.Info("Application shutdown successfully.")
	}
}
