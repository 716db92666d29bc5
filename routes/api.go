package routes

import (
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/okulsoft/absence-dispatch/environments"
	"github.com/okulsoft/absence-dispatch/handlers"
	"github.com/okulsoft/absence-dispatch/internal/middlewares"
)

// RegisterRoutes registers all API routes with middleware
func RegisterRoutes(
	e *echo.Echo,
	healthHandler *handlers.HealthHandler,
	notificationHandler *handlers.NotificationHandler,
	dispatchHandler *handlers.DispatchHandler,
	classHandler *handlers.ClassHandler,
	cfg *environments.Config,
) {
	e.GET("/health", healthHandler.Health)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// API v1 base group
	v1 := e.Group("/api/v1")

	// Read-only monitoring surface for the admin console.
	notifications := v1.Group("/notifications", middlewares.APIKeyAuth(cfg.Auth.NotificationsAPIKey))

	notifications.GET("", notificationHandler.GetNotifications)
	notifications.GET("/overview", notificationHandler.GetOverview)
	notifications.GET("/cached", notificationHandler.GetCachedNotifications)

	// Operator actions get their own API key.
	dispatch := v1.Group("/dispatch", middlewares.APIKeyAuth(cfg.Auth.DispatchAPIKey))

	dispatch.POST("/trigger", dispatchHandler.TriggerDispatch)
	dispatch.POST("/test", dispatchHandler.TestSend)

	schedulerGroup := v1.Group("/scheduler", middlewares.APIKeyAuth(cfg.Auth.DispatchAPIKey))

	schedulerGroup.POST("/start", dispatchHandler.StartScheduler)
	schedulerGroup.POST("/stop", dispatchHandler.StopScheduler)
	schedulerGroup.GET("/status", dispatchHandler.GetSchedulerStatus)

	classes := v1.Group("/classes", middlewares.APIKeyAuth(cfg.Auth.DispatchAPIKey))

	classes.GET("", classHandler.ListClasses)
	classes.PUT("/:id/dispatch-config", classHandler.UpdateClassConfig)
}
