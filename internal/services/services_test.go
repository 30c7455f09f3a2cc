package services

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boomware/crosslist/internal/config"
	"github.com/boomware/crosslist/internal/platforms/ebay"
	"github.com/boomware/crosslist/internal/platforms/mock"
	"github.com/boomware/crosslist/pkg/models"
)

func TestPlatformClients_MockModeFakesEveryPlatform(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := &config.Config{}
	cfg.Platforms.Mock = true
	ebayClient := ebay.NewClient(cfg.Platforms.Ebay, logger)

	clients := platformClients(cfg, ebayClient, logger)
	require.Len(t, clients, len(models.AllPlatforms))
	for _, p := range models.AllPlatforms {
		assert.IsType(t, &mock.Client{}, clients[p], "platform %s", p)
	}
}

func TestPlatformClients_LiveModeRejectsUnintegratedPlatforms(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := &config.Config{}
	cfg.Platforms.Mock = false
	cfg.Platforms.Ebay.ClientID = "client-id"
	ebayClient := ebay.NewClient(cfg.Platforms.Ebay, logger)

	clients := platformClients(cfg, ebayClient, logger)

	assert.IsType(t, &ebay.Client{}, clients[models.PlatformEbay])

	result, err := clients[models.PlatformPoshmark].CreateListing(context.Background(), &models.ListingPayload{SKU: "X"})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "poshmark integration not yet implemented")
}

func TestPlatformClients_LiveModeWithoutEbayCredentials(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := &config.Config{}
	ebayClient := ebay.NewClient(cfg.Platforms.Ebay, logger)

	clients := platformClients(cfg, ebayClient, logger)

	_, err := clients[models.PlatformEbay].CreateListing(context.Background(), &models.ListingPayload{SKU: "X"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ebay integration not yet implemented")
}
