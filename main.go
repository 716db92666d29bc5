package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/okulsoft/absence-dispatch/environments"
	"github.com/okulsoft/absence-dispatch/handlers"
	"github.com/okulsoft/absence-dispatch/internal/repository"
	"github.com/okulsoft/absence-dispatch/internal/scheduler"
	"github.com/okulsoft/absence-dispatch/internal/service"
	"github.com/okulsoft/absence-dispatch/pkg/database"
	"github.com/okulsoft/absence-dispatch/pkg/gateway"
	"github.com/okulsoft/absence-dispatch/pkg/logger"
	"github.com/okulsoft/absence-dispatch/pkg/redis"
	"github.com/okulsoft/absence-dispatch/pkg/validator"
	"github.com/okulsoft/absence-dispatch/routes"

	_ "github.com/okulsoft/absence-dispatch/docs" // swagger docs
)

// @title Absence Dispatch Service API
// @version 1.0
// @description Absence SMS dispatch engine for the school administration system

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @schemes http https
func main() {
	logger.Init()

	// Load config
	cfg := environments.Load()

	// Hard-fail if required secrets are missing
	if cfg.Gateway.APIKey == "" {
		logger.Fatalf("SMS_GATEWAY_API_KEY is required but not set")
	}
	if cfg.Auth.NotificationsAPIKey == "" {
		logger.Fatalf("NOTIFICATIONS_API_KEY is required but not set")
	}
	if cfg.Auth.DispatchAPIKey == "" {
		logger.Fatalf("DISPATCH_API_KEY is required but not set")
	}

	logger.Infof("Starting Absence Dispatch Service...")

	// Init DB
	db, err := database.NewMySQLDB(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.RunMigrations(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	// Seed data
	if os.Getenv("SEED_DATA") == "true" {
		if err := database.SeedTestData(db); err != nil {
			logger.Warnf("Failed to seed test data: %v", err)
		}
	}

	// Init redis
	var redisClient *redis.Client
	redisClient, err = redis.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Warnf("Redis not available, sent-marker caching disabled: %v", err)
		redisClient = nil
	}

	// Initialize SMS gateway client
	gatewayClient := gateway.NewClient(cfg.Gateway)
	logger.Infof("SMS gateway configured: %s", gatewayClient.GetURL())

	// Initialize repositories
	notificationRepo := repository.NewNotificationRepository(db)
	rosterRepo := repository.NewRosterRepository(db)

	// Initialize dispatch engine
	var cache service.SentCache
	if redisClient != nil {
		cache = redisClient
	}
	dispatchService, err := service.NewDispatchService(
		notificationRepo,
		rosterRepo,
		gatewayClient,
		cache,
		cfg.Dispatch,
	)
	if err != nil {
		logger.Fatalf("Failed to initialize dispatch engine: %v", err)
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize scheduler
	sched := scheduler.NewScheduler(dispatchService, cfg.Dispatch.Interval)

	// Overview reads the same store plus the scheduler's next-run time
	overviewService := service.NewOverviewService(
		notificationRepo,
		rosterRepo,
		sched,
		dispatchService.Location(),
	)

	classService := service.NewClassService(rosterRepo)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, redisClient)
	notificationHandler := handlers.NewNotificationHandler(dispatchService, overviewService)
	dispatchHandler := handlers.NewDispatchHandler(dispatchService, sched, ctx)
	classHandler := handlers.NewClassHandler(classService)

	// Auto-start scheduler
	if os.Getenv("AUTO_START_SCHEDULER") != "false" {
		logger.Infof("Auto-starting dispatch scheduler...")
		if err := sched.Start(ctx); err != nil {
			logger.Warnf("Failed to auto-start scheduler: %v", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			"x-admin-api-key",
		},
	}))

	// Setup routes
	routes.RegisterRoutes(e, healthHandler, notificationHandler, dispatchHandler, classHandler, cfg)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Infof("Server starting on http://localhost%s", addr)
		logger.Infof("Swagger docs available at http://localhost%s/swagger/index.html", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down gracefully...")

	// Cancel context to signal all goroutines to stop
	cancel()

	// Stop scheduler first (with timeout)
	if sched.IsRunning() {
		logger.Infof("Stopping scheduler...")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()

		done := make(chan error, 1)
		go func() {
			done <- sched.Stop()
		}()

		select {
		case err := <-done:
			if err != nil {
				logger.Errorf("Error stopping scheduler: %v", err)
			} else {
				logger.Infof("Scheduler stopped successfully")
			}
		case <-stopCtx.Done():
			logger.Warnf("Scheduler stop timeout, forcing shutdown")
		}
	}

	// Shutdown HTTP server (with timeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Infof("Shutting down HTTP server...")
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	} else {
		logger.Infof("HTTP server stopped successfully")
	}

	// Close database connection
	logger.Infof("Closing database connection...")
	if err := db.Close(); err != nil {
		logger.Errorf("Error closing database: %v", err)
	}

	// Close Redis connection
	if redisClient != nil {
		logger.Infof("Closing Redis connection...")
		if err := redisClient.Close(); err != nil {
			logger.Errorf("Error closing Redis: %v", err)
		}
	}

	logger.Infof("Graceful shutdown completed")
}
