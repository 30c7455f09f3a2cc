package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/boomware/crosslist/pkg/models"
)

// PlatformClient posts a listing to one marketplace. The eBay client talks
// to the real Sell API; everything else runs through mocks until those
// integrations land.
type PlatformClient interface {
	CreateListing(ctx context.Context, payload *models.ListingPayload) (*models.ListingResult, error)
}

var platformTitleLimits = map[models.Platform]int{
	models.PlatformEbay:     80,
	models.PlatformFacebook: 100,
	models.PlatformMercari:  80,
	models.PlatformPoshmark: 50,
	models.PlatformOfferUp:  64,
}

var platformDescriptionSuffixes = map[models.Platform]string{
	models.PlatformEbay:     "Ships within 1 business day. 30-day returns accepted.",
	models.PlatformFacebook: "Local pickup or shipping available. Message me with questions!",
	models.PlatformMercari:  "Bundle multiple items for a discount!",
	models.PlatformPoshmark: "From a smoke-free home. Bundle to save on shipping!",
	models.PlatformOfferUp:  "Pickup or shipping available through OfferUp.",
}

// ListingExecutorService fans one item out to the selected marketplaces.
// Platforms are submitted concurrently; one platform failing never blocks
// the others.
type ListingExecutorService struct {
	clients   map[models.Platform]PlatformClient
	inventory *InventoryService
	logger    *logrus.Logger
}

func NewListingExecutorService(clients map[models.Platform]PlatformClient, inventory *InventoryService, logger *logrus.Logger) *ListingExecutorService {
	return &ListingExecutorService{
		clients:   clients,
		inventory: inventory,
		logger:    logger,
	}
}

// FormatTitle enforces the platform's title limit, truncating on an
// ellipsis when over. Limits count characters, so truncation works on
// runes rather than bytes.
func FormatTitle(platform models.Platform, title string) string {
	limit, ok := platformTitleLimits[platform]
	if !ok {
		return title
	}
	runes := []rune(title)
	if len(runes) <= limit {
		return title
	}
	return string(runes[:limit-3]) + "..."
}

// FormatDescription appends the platform's standard closing blurb.
func FormatDescription(platform models.Platform, description string) string {
	suffix := platformDescriptionSuffixes[platform]
	if suffix == "" {
		return description
	}
	if description == "" {
		return suffix
	}
	return description + "\n\n" + suffix
}

// BuildPayload assembles the platform-specific submission from the item's
// analysis and pricing strategy.
func BuildPayload(item *models.InventoryItem, strategy *models.PricingStrategy, platform models.Platform) (*models.ListingPayload, error) {
	analysis := item.Analysis
	if analysis == nil {
		return nil, fmt.Errorf("item %s has no analysis", item.ID)
	}

	title := normalizeWhitespace(analysis.Product.Brand + " " + analysis.Product.Name)
	description := analysis.Condition.Notes
	var specifics map[string]string
	if content, ok := analysis.PlatformContent[platform]; ok {
		if content.Title != "" {
			title = content.Title
		}
		if content.Description != "" {
			description = content.Description
		}
		if len(content.ItemSpecifics) > 0 {
			specifics = content.ItemSpecifics
		}
	}

	price := strategy.ListPrice
	shipping := models.ShippingConfig{FreeShipping: true}
	if pp, ok := strategy.PlatformPricing[platform]; ok {
		price = pp.ListPrice
		if pp.Shipping > 0 {
			shipping = models.ShippingConfig{FlatRate: pp.Shipping}
		}
	}

	payload := &models.ListingPayload{
		SKU:           item.SKU,
		Title:         FormatTitle(platform, title),
		Description:   FormatDescription(platform, description),
		Price:         price,
		Format:        models.FormatFixedPrice,
		Condition:     analysis.Condition.State,
		Category:      analysis.Product.Category,
		Brand:         analysis.Product.Brand,
		ImageURLs:     item.ImagePaths,
		ItemSpecifics: specifics,
		Shipping:      shipping,
		Quantity:      1,
	}
	if strategy.UseAuction && strategy.Auction != nil {
		payload.Format = models.FormatAuction
		auction := *strategy.Auction
		payload.Auction = &auction
		payload.Price = auction.StartPrice
	}
	return payload, nil
}

// Execute lists the item on every requested platform and records the
// outcomes. Results keep the caller's platform order regardless of which
// submission finishes first. Items already listed on a platform are
// skipped with an error result rather than double-posted.
func (s *ListingExecutorService) Execute(ctx context.Context, item *models.InventoryItem, strategy *models.PricingStrategy, platforms []models.Platform) (*models.ExecutionReport, error) {
	report := &models.ExecutionReport{
		InventoryID: item.ID.String(),
		Results:     make([]models.ListingResult, len(platforms)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(models.AllPlatforms))

	for i, platform := range platforms {
		i, platform := i, platform
		g.Go(func() error {
			report.Results[i] = *s.listOnPlatform(gctx, item, strategy, platform)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, result := range report.Results {
		if result.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}

	s.logger.WithFields(logrus.Fields{
		"inventory_id": item.ID,
		"succeeded":    report.Succeeded,
		"failed":       report.Failed,
	}).Info("Listing execution completed")

	return report, nil
}

func (s *ListingExecutorService) listOnPlatform(ctx context.Context, item *models.InventoryItem, strategy *models.PricingStrategy, platform models.Platform) *models.ListingResult {
	start := time.Now()
	fail := func(err error) *models.ListingResult {
		s.logger.WithFields(logrus.Fields{
			"inventory_id": item.ID,
			"platform":     platform,
			"error":        err.Error(),
		}).Warn("Listing failed")
		return &models.ListingResult{
			Platform:   platform,
			Success:    false,
			Error:      err.Error(),
			DurationMs: time.Since(start).Milliseconds(),
			ListedAt:   time.Now(),
		}
	}

	client, ok := s.clients[platform]
	if !ok {
		return fail(fmt.Errorf("no client configured for %s", platform))
	}

	// Check before posting so a duplicate never reaches the marketplace.
	existing, err := s.inventory.ListingsForItem(ctx, item.ID)
	if err != nil {
		return fail(fmt.Errorf("failed to check existing listings: %w", err))
	}
	for _, l := range existing {
		if l.Platform == platform && l.Status != models.ListingFailed {
			return fail(&DuplicateListingError{Platform: platform})
		}
	}

	payload, err := BuildPayload(item, strategy, platform)
	if err != nil {
		return fail(err)
	}

	result, err := client.CreateListing(ctx, payload)
	if err != nil {
		result = fail(err)
	} else {
		result.DurationMs = time.Since(start).Milliseconds()
	}

	now := time.Now()
	listing := &models.Listing{
		InventoryID: item.ID,
		Platform:    platform,
		ExternalID:  result.ExternalID,
		URL:         result.URL,
		Title:       payload.Title,
		Price:       payload.Price,
		Status:      models.ListingFailed,
	}
	if result.Success {
		listing.Status = models.ListingActive
		listing.ListedAt = &now
	}

	if err := s.inventory.RecordListing(ctx, listing); err != nil {
		var dup *DuplicateListingError
		if errors.As(err, &dup) {
			return fail(dup)
		}
		return fail(fmt.Errorf("failed to record listing: %w", err))
	}
	return result
}

// normalizeWhitespace is shared by payload builders that fold multi-line
// analysis notes into single-line titles.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
