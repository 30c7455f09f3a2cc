package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/boomware/crosslist/internal/config"
	"github.com/boomware/crosslist/internal/database"
	"github.com/boomware/crosslist/internal/handlers"
	"github.com/boomware/crosslist/internal/middleware"
	"github.com/boomware/crosslist/internal/services"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	// Initialize database connections
	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	// Initialize services
	services, err := services.New(cfg, app.logger, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = services

	// Initialize handlers
	app.handlers = handlers.New(app.logger, services)

	// Setup router
	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Services() *services.Services {
	return a.services
}

func (a *App) Logger() *logrus.Logger {
	return a.logger
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.services.MessageBus != nil {
		if err := a.services.MessageBus.Close(); err != nil {
			a.logger.WithError(err).Error("Error closing message bus")
		}
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))
	router.Use(middleware.Security())
	router.Use(middleware.CompressionMiddleware())

	// Health check endpoints (no auth required)
	router.GET("/health", a.handlers.Health.Check)
	router.GET("/health/detailed", a.handlers.Health.Check)

	// Prometheus metrics endpoint (no auth required)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1")
	{
		// Authentication middleware for API routes
		api.Use(middleware.Auth(a.services.Auth, a.logger))
		api.Use(middleware.RateLimit(a.services.RateLimit, a.logger))

		// Pipeline routes
		pipeline := api.Group("/pipeline")
		{
			pipeline.POST("/submissions", a.handlers.Pipeline.Submit)
			pipeline.GET("/jobs/:jobId", a.handlers.Pipeline.GetJob)
		}

		// Inventory routes. Mutations here invalidate cached reports.
		inventory := api.Group("/inventory")
		inventory.Use(middleware.ReportCacheInvalidation(a.db.Redis.Hot, a.logger))
		{
			inventory.GET("", a.handlers.Inventory.ListItems)
			inventory.POST("", a.handlers.Inventory.AddItem)
			inventory.POST("/:id/listings", a.handlers.Inventory.RecordListing)
			inventory.GET("/active", a.handlers.Inventory.ActiveListings)
			inventory.GET("/unlisted", a.handlers.Inventory.UnlistedItems)
			inventory.GET("/search", a.handlers.Inventory.Search)
			inventory.GET("/:id", a.handlers.Inventory.GetItem)
			inventory.GET("/:id/listings", a.handlers.Inventory.GetListings)
			inventory.POST("/:id/sold", a.handlers.Inventory.MarkSold)
			inventory.PUT("/:id/status", a.handlers.Inventory.UpdateStatus)
			inventory.PATCH("/:id/listings/:platform", a.handlers.Inventory.UpdateListingStatus)
		}

		// Report routes, cached briefly since they scan the whole table.
		reports := api.Group("/reports")
		reports.Use(middleware.ReportCache(a.db.Redis.Hot, 5*time.Minute, a.logger))
		{
			reports.GET("/sales", a.handlers.Reports.Sales)
			reports.GET("/platforms", a.handlers.Reports.Platforms)
			reports.GET("/operations", a.handlers.Reports.Operations)
		}

		// Metrics routes
		metrics := api.Group("/metrics")
		{
			metrics.GET("/operations", a.handlers.Metrics.GetOperationStats)
			metrics.GET("/queues", a.handlers.Metrics.GetQueueStats)
		}
	}

	a.router = router
}
