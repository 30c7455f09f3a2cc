package mock

import (
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boomware/crosslist/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestCreateListing(t *testing.T) {
	c := NewClient(models.PlatformMercari, testLogger())

	result, err := c.CreateListing(context.Background(), &models.ListingPayload{
		SKU:   "TEST-1",
		Title: "Test Item",
		Price: 25.00,
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, models.PlatformMercari, result.Platform)
	assert.True(t, strings.HasPrefix(result.ExternalID, "MOCK_MERCARI_"))
	assert.Equal(t, "https://mercari.example.com/listing/"+result.ExternalID, result.URL)
	assert.False(t, result.ListedAt.IsZero())
}

func TestCreateListing_ContextCancelled(t *testing.T) {
	c := NewClient(models.PlatformPoshmark, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.CreateListing(ctx, &models.ListingPayload{SKU: "TEST-1"})
	assert.ErrorIs(t, err, context.Canceled)
}
