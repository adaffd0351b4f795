package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/qr-credential-service/internal/api/http"
	"github.com/spec-kit/qr-credential-service/internal/api/http/handlers"
	"github.com/spec-kit/qr-credential-service/internal/auth"
	"github.com/spec-kit/qr-credential-service/internal/config"
	"github.com/spec-kit/qr-credential-service/internal/events"
	"github.com/spec-kit/qr-credential-service/internal/observability"
	"github.com/spec-kit/qr-credential-service/internal/persistence"
	"github.com/spec-kit/qr-credential-service/internal/repository"
	"github.com/spec-kit/qr-credential-service/internal/retry"
	"github.com/spec-kit/qr-credential-service/internal/service"
	"github.com/spec-kit/qr-credential-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	store := repository.NewQRCodeStore(pool, retry.DefaultPolicy())
	scanLogs := repository.NewScanLogRepository(pool)
	devices := repository.NewDeviceRepository(pool)

	dispatcher := events.NewInMemoryDispatcher(logger)
	metrics := observability.NewMetrics()

	validationService := service.NewValidationService(service.ValidationDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	adminService := service.NewAdminService(service.AdminDependencies{
		Store:      store,
		ScanLogs:   scanLogs,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	auditWorker := worker.NewAuditWorker(store, scanLogs, logger)
	auditWorker.Start(dispatcher)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokenManager, devices)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis)
	scanHandler := handlers.NewScanHandler(validationService, metrics)
	adminHandler := handlers.NewAdminHandler(adminService, metrics)
	devicesHandler := handlers.NewDevicesHandler(devices, tokenManager, cfg.Auth.BcryptCost)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         healthHandler,
		Scan:           scanHandler,
		Admin:          adminHandler,
		Devices:        devicesHandler,
		AuthMiddleware: authMiddleware,
		RateLimiter:    httptransport.RateLimitMiddleware(cfg.RateLimit, redis.Client, logger),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	auditWorker.Stop()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
