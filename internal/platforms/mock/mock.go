// Package mock provides stand-in marketplace clients for platforms whose
// real integrations are not built yet. They emulate a live API's latency
// and return stable-looking external IDs.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/boomware/crosslist/pkg/models"
)

type Client struct {
	platform models.Platform
	logger   *logrus.Logger
}

func NewClient(platform models.Platform, logger *logrus.Logger) *Client {
	return &Client{platform: platform, logger: logger}
}

func (c *Client) CreateListing(ctx context.Context, payload *models.ListingPayload) (*models.ListingResult, error) {
	// Simulate marketplace API latency.
	delay := time.Duration(1000+rand.Intn(1000)) * time.Millisecond
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	externalID := fmt.Sprintf("MOCK_%s_%d", strings.ToUpper(string(c.platform)), time.Now().UnixMilli())

	c.logger.WithFields(logrus.Fields{
		"platform":    c.platform,
		"sku":         payload.SKU,
		"external_id": externalID,
	}).Info("Mock listing created")

	return &models.ListingResult{
		Platform:   c.platform,
		Success:    true,
		ExternalID: externalID,
		URL:        fmt.Sprintf("https://%s.example.com/listing/%s", c.platform, externalID),
		ListedAt:   time.Now(),
	}, nil
}
