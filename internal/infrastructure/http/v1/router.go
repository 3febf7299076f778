// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"aqualist/internal/domain/audit"
	"aqualist/internal/domain/listing"
	"aqualist/internal/domain/settings"
	"aqualist/internal/infrastructure/http/v1/handlers"
	"aqualist/internal/infrastructure/http/v1/middleware"
	"aqualist/internal/infrastructure/storage/postgres"
	"aqualist/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Pool *postgres.Pool

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	ListingService  *listing.Service
	SettingsService *settings.Service

	// AuditHistory backs the moderation trail endpoint.
	AuditHistory audit.HistoryReader
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	baseHandler := handlers.NewBaseHandler()
	listingHandler := handlers.NewListingHandler(baseHandler, cfg.ListingService)
	adminHandler := handlers.NewAdminHandler(baseHandler, cfg.ListingService, cfg.SettingsService, cfg.AuditHistory)

	v1 := router.Group("/api/v1")
	{
		// Public and owner endpoints. Auth is optional: anonymous callers
		// browse public listings and manage their own via X-Manage-Secret.
		listings := v1.Group("/listings")
		listings.Use(middleware.OptionalAuth(cfg.JWTValidator))
		listings.Use(middleware.UserContext())
		{
			listings.GET("", listingHandler.List)
			listings.POST("", listingHandler.Create)
			listings.GET("/:id", listingHandler.Get)
			listings.PATCH("/:id", listingHandler.Update)
			listings.DELETE("/:id", listingHandler.Delete)

			listings.POST("/:id/publish", listingHandler.Publish)
			listings.POST("/:id/pause", listingHandler.Pause)
			listings.POST("/:id/resume", listingHandler.Resume)
			listings.POST("/:id/resolve", listingHandler.Resolve)
			listings.POST("/:id/relist", listingHandler.Relist)
			listings.PUT("/:id/feature", listingHandler.Feature)
		}

		// Moderation endpoints require a valid admin token.
		admin := v1.Group("/admin")
		admin.Use(middleware.Auth(cfg.JWTValidator))
		admin.Use(middleware.UserContext())
		admin.Use(middleware.RequireAdmin())
		{
			admin.PUT("/listings/:id/status", adminHandler.SetStatus)
			admin.PUT("/listings/:id/feature", adminHandler.Feature)
			admin.PUT("/listings/:id/restrictions", adminHandler.SetRestrictions)
			admin.GET("/listings/:id/audit", adminHandler.AuditHistory)

			admin.GET("/settings", adminHandler.GetSettings)
			admin.PUT("/settings", adminHandler.UpdateSettings)
		}
	}

	return router
}
