package services

import (
	"context"
	"fmt"

	"github.com/boomware/crosslist/internal/config"
	"github.com/boomware/crosslist/internal/database"
	"github.com/boomware/crosslist/internal/messaging"
	"github.com/boomware/crosslist/internal/platforms/ebay"
	"github.com/boomware/crosslist/internal/platforms/mock"
	"github.com/boomware/crosslist/internal/vision"
	"github.com/boomware/crosslist/pkg/models"

	"github.com/sirupsen/logrus"
)

type Services struct {
	Auth           *AuthService
	Health         *HealthService
	RateLimit      *RateLimitService
	MessageBus     *messaging.MessageBus
	Cache          *CacheService
	ImageProcessor *ImageProcessorService
	VisionAgent    *VisionAgentService
	MarketIntel    *MarketIntelService
	PriceOptimizer *PriceOptimizerService
	Inventory      *InventoryService
	Executor       *ListingExecutorService
	Pipeline       *PipelineService
	JobQueue       *JobQueueService
	Metrics        *MetricsCollector
	Ebay           *ebay.Client
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	authService := NewAuthService(cfg, logger, db.Redis.Hot)
	healthService := NewHealthService(cfg, logger, db)
	rateLimitService := NewRateLimitService(cfg, logger, db.Redis.Hot)

	messageBus, err := messaging.NewMessageBus(cfg, logger)
	if err != nil {
		return nil, err
	}

	metrics := NewMetricsCollector(logger)
	cache := NewCacheService(db.Redis, cfg.Vision.CacheTTL, cfg.Pricing.MarketCacheTTL, metrics, logger)
	images := NewImageProcessorService(cfg.Images, logger)

	visionClient := vision.NewClient(cfg.Vision.APIKey, cfg.Vision.BaseURL, cfg.Vision.Timeout, logger)
	visionAgent, err := NewVisionAgentService(cfg.Vision, visionClient, images, cache, metrics, logger)
	if err != nil {
		return nil, err
	}

	marketIntel := NewMarketIntelService(NewMockMarketProvider(), cache, logger)
	priceOptimizer := NewPriceOptimizerService(cache, logger)
	inventory := NewInventoryService(db.PG, logger)

	ebayClient := ebay.NewClient(cfg.Platforms.Ebay, logger)
	clients := platformClients(cfg, ebayClient, logger)
	executor := NewListingExecutorService(clients, inventory, logger)

	jobQueue := NewJobQueueService(db.Redis.Hot, cfg.Queue, logger)
	pipeline := NewPipelineService(
		images, visionAgent, marketIntel, priceOptimizer,
		inventory, executor, metrics, jobQueue, db.Redis.Hot, logger,
	)

	return &Services{
		Auth:           authService,
		Health:         healthService,
		RateLimit:      rateLimitService,
		MessageBus:     messageBus,
		Cache:          cache,
		ImageProcessor: images,
		VisionAgent:    visionAgent,
		MarketIntel:    marketIntel,
		PriceOptimizer: priceOptimizer,
		Inventory:      inventory,
		Executor:       executor,
		Pipeline:       pipeline,
		JobQueue:       jobQueue,
		Metrics:        metrics,
		Ebay:           ebayClient,
	}, nil
}

// platformClients wires mock clients for every platform in mock mode. In
// live mode only eBay has a real integration; the other platforms get a
// client that rejects submissions instead of faking success.
func platformClients(cfg *config.Config, ebayClient *ebay.Client, logger *logrus.Logger) map[models.Platform]PlatformClient {
	clients := make(map[models.Platform]PlatformClient, len(models.AllPlatforms))
	if cfg.Platforms.Mock {
		for _, p := range models.AllPlatforms {
			clients[p] = mock.NewClient(p, logger)
		}
		return clients
	}
	for _, p := range models.AllPlatforms {
		clients[p] = unsupportedPlatform{platform: p}
	}
	if cfg.Platforms.Ebay.ClientID != "" {
		clients[models.PlatformEbay] = ebayClient
	}
	return clients
}

// unsupportedPlatform stands in for marketplaces without a live
// integration yet, failing each submission so listing reports show the
// gap instead of fabricated external IDs.
type unsupportedPlatform struct {
	platform models.Platform
}

func (u unsupportedPlatform) CreateListing(ctx context.Context, payload *models.ListingPayload) (*models.ListingResult, error) {
	return nil, fmt.Errorf("%s integration not yet implemented", u.platform)
}
