package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"document-portal/portal-backend/internal/auth"
	"document-portal/portal-backend/internal/directory"
	"document-portal/portal-backend/internal/documents"
	"document-portal/portal-backend/internal/middleware"
	"document-portal/portal-backend/internal/notifications"
	"document-portal/portal-backend/internal/schedules"
	"document-portal/portal-backend/internal/settings"
)

// Router mounts every handler under /api/v1 behind bearer authentication,
// with /health, /metrics and /api/v1/auth/login left public.
func (a *App) Router() *gin.Engine {
	if a.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Logger(a.Logger),
		middleware.Metrics(a.Metrics),
		middleware.Recover(a.Logger),
		middleware.CORS(a.Config.Server.AllowedOrigins),
	)

	router.GET("/health", a.health)
	router.GET("/metrics", func(c *gin.Context) {
		snapshot := a.Metrics.Snapshot()
		if a.Websocket != nil {
			snapshot["websocket_connections"] = a.Websocket.ConnectionCount()
		}
		c.JSON(http.StatusOK, snapshot)
	})

	public := router.Group("/api/v1")
	protected := router.Group("/api/v1")
	protected.Use(a.Auth.RequireAuth())

	auth.RegisterRoutes(public, protected, auth.NewHandler(a.Auth, a.Logger))
	directory.NewHandler(directory.NewService(a.Directory, a.Logger), a.Logger).RegisterRoutes(protected)
	documents.NewHandler(a.Documents, a.Logger).RegisterRoutes(protected)
	schedules.NewHandler(a.Schedules, a.Logger).RegisterRoutes(protected)
	notifications.NewHandler(a.Notifications, a.Websocket, a.Logger).RegisterRoutes(protected)
	settings.NewHandler(a.Settings, a.Logger).RegisterRoutes(protected)
	return router
}

func (a *App) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	database := "up"
	if sqlDB, err := a.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status, code, database = "degraded", http.StatusServiceUnavailable, "down"
	}
	c.JSON(code, gin.H{
		"status":    status,
		"database":  database,
		"timestamp": time.Now(),
	})
}
