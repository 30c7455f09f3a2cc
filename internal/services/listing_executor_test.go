package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boomware/crosslist/pkg/models"
)

type stubPlatformClient struct {
	platform models.Platform
	err      error
	payloads []*models.ListingPayload
}

func (c *stubPlatformClient) CreateListing(ctx context.Context, payload *models.ListingPayload) (*models.ListingResult, error) {
	c.payloads = append(c.payloads, payload)
	if c.err != nil {
		return nil, c.err
	}
	return &models.ListingResult{
		Platform:   c.platform,
		Success:    true,
		ExternalID: "EXT-1",
		URL:        "https://example.com/listing/EXT-1",
		ListedAt:   time.Now(),
	}, nil
}

func TestFormatTitle(t *testing.T) {
	long := strings.Repeat("Vintage Guitar ", 10) // 150 chars

	tests := []struct {
		platform models.Platform
		limit    int
	}{
		{models.PlatformEbay, 80},
		{models.PlatformFacebook, 100},
		{models.PlatformMercari, 80},
		{models.PlatformPoshmark, 50},
		{models.PlatformOfferUp, 64},
	}

	for _, tt := range tests {
		t.Run(string(tt.platform), func(t *testing.T) {
			got := FormatTitle(tt.platform, long)
			assert.Len(t, got, tt.limit)
			assert.True(t, strings.HasSuffix(got, "..."))
		})
	}
}

func TestFormatTitle_ShortTitleUntouched(t *testing.T) {
	assert.Equal(t, "Yamaha FG800", FormatTitle(models.PlatformEbay, "Yamaha FG800"))
}

func TestFormatTitle_MultibyteTruncatesOnRunes(t *testing.T) {
	long := strings.Repeat("é", 100)

	got := FormatTitle(models.PlatformEbay, long)

	require.True(t, utf8.ValidString(got))
	runes := []rune(got)
	assert.Len(t, runes, 80)
	assert.Equal(t, strings.Repeat("é", 77)+"...", got)
}

func TestFormatDescription(t *testing.T) {
	got := FormatDescription(models.PlatformMercari, "Light wear on the body.")
	assert.Equal(t, "Light wear on the body.\n\nBundle multiple items for a discount!", got)

	// Empty description still gets the blurb.
	got = FormatDescription(models.PlatformEbay, "")
	assert.Equal(t, "Ships within 1 business day. 30-day returns accepted.", got)
}

func executorTestItem() *models.InventoryItem {
	return &models.InventoryItem{
		ID:  uuid.New(),
		SKU: "YAMAHA-AB12CD34",
		Analysis: &models.ProductAnalysis{
			Product: models.ProductIdentity{
				Name:     "FG800 Acoustic Guitar",
				Brand:    "Yamaha",
				Category: "Musical Instruments",
			},
			Condition: models.ConditionAssessment{
				State: models.ConditionGood,
				Notes: "Light wear on the lower bout.",
			},
			PlatformContent: map[models.Platform]models.ListingContent{
				models.PlatformPoshmark: {
					Title:       "Yamaha FG800 Guitar",
					Description: "Poshmark-specific copy.",
				},
			},
		},
		ImagePaths: []string{"/tmp/guitar.jpg"},
	}
}

func executorTestStrategy() *models.PricingStrategy {
	return &models.PricingStrategy{
		ListPrice: 100,
		PlatformPricing: map[models.Platform]models.PlatformPrice{
			models.PlatformEbay:     {ListPrice: 115.46, Shipping: 8.00},
			models.PlatformFacebook: {ListPrice: 105.68},
		},
	}
}

func TestBuildPayload(t *testing.T) {
	item := executorTestItem()
	strategy := executorTestStrategy()

	payload, err := BuildPayload(item, strategy, models.PlatformEbay)
	require.NoError(t, err)

	assert.Equal(t, "Yamaha FG800 Acoustic Guitar", payload.Title)
	assert.Contains(t, payload.Description, "Light wear on the lower bout.")
	assert.Contains(t, payload.Description, "30-day returns")
	assert.InDelta(t, 115.46, payload.Price, 0.001)
	assert.InDelta(t, 8.00, payload.Shipping.FlatRate, 0.001)
	assert.False(t, payload.Shipping.FreeShipping)
	assert.Equal(t, models.ConditionGood, payload.Condition)
	assert.Equal(t, 1, payload.Quantity)
}

func TestBuildPayload_PlatformContentOverrides(t *testing.T) {
	item := executorTestItem()
	strategy := executorTestStrategy()

	payload, err := BuildPayload(item, strategy, models.PlatformPoshmark)
	require.NoError(t, err)

	assert.Equal(t, "Yamaha FG800 Guitar", payload.Title)
	assert.Contains(t, payload.Description, "Poshmark-specific copy.")
}

func TestBuildPayload_FallbackToListPrice(t *testing.T) {
	item := executorTestItem()
	strategy := executorTestStrategy()

	// Mercari has no platform pricing entry: base list price, free shipping.
	payload, err := BuildPayload(item, strategy, models.PlatformMercari)
	require.NoError(t, err)

	assert.InDelta(t, 100, payload.Price, 0.001)
	assert.True(t, payload.Shipping.FreeShipping)
}

func TestBuildPayload_ItemSpecificsCarriedThrough(t *testing.T) {
	item := executorTestItem()
	item.Analysis.PlatformContent[models.PlatformEbay] = models.ListingContent{
		Title:         "Yamaha FG800 Dreadnought",
		ItemSpecifics: map[string]string{"Body Type": "Dreadnought", "String Count": "6"},
	}

	payload, err := BuildPayload(item, executorTestStrategy(), models.PlatformEbay)
	require.NoError(t, err)

	assert.Equal(t, "Dreadnought", payload.ItemSpecifics["Body Type"])
	assert.Equal(t, "6", payload.ItemSpecifics["String Count"])
}

func TestBuildPayload_AuctionStrategy(t *testing.T) {
	item := executorTestItem()
	strategy := executorTestStrategy()
	strategy.UseAuction = true
	strategy.Auction = &models.AuctionConfig{
		StartPrice:   42.50,
		ReservePrice: 85.00,
		DurationDays: 7,
	}

	payload, err := BuildPayload(item, strategy, models.PlatformEbay)
	require.NoError(t, err)

	assert.Equal(t, models.FormatAuction, payload.Format)
	require.NotNil(t, payload.Auction)
	assert.InDelta(t, 42.50, payload.Auction.StartPrice, 0.001)
	assert.InDelta(t, 85.00, payload.Auction.ReservePrice, 0.001)
	assert.Equal(t, 7, payload.Auction.DurationDays)
	// Auctions open at the start price, not the buy-now price.
	assert.InDelta(t, 42.50, payload.Price, 0.001)
}

func TestBuildPayload_FixedPriceByDefault(t *testing.T) {
	payload, err := BuildPayload(executorTestItem(), executorTestStrategy(), models.PlatformEbay)
	require.NoError(t, err)

	assert.Equal(t, models.FormatFixedPrice, payload.Format)
	assert.Nil(t, payload.Auction)
}

func TestBuildPayload_RequiresAnalysis(t *testing.T) {
	_, err := BuildPayload(&models.InventoryItem{ID: uuid.New()}, executorTestStrategy(), models.PlatformEbay)
	assert.Error(t, err)
}

func newTestExecutor(t *testing.T, clients map[models.Platform]PlatformClient) (*ListingExecutorService, pgxmock.PgxPoolIface) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	inventory := NewInventoryService(mock, logger)
	return NewListingExecutorService(clients, inventory, logger), mock
}

func listingRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "inventory_id", "platform", "external_id", "url", "title",
		"price", "status", "listed_at", "ended_at", "created_at", "updated_at",
	})
}

func TestExecute_SuccessfulListing(t *testing.T) {
	client := &stubPlatformClient{platform: models.PlatformEbay}
	svc, mock := newTestExecutor(t, map[models.Platform]PlatformClient{
		models.PlatformEbay: client,
	})

	item := executorTestItem()

	// No existing listings, then the record insert path.
	mock.ExpectQuery("SELECT id, inventory_id, platform").
		WithArgs(item.ID).
		WillReturnRows(listingRows())
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO listings").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE inventory SET status = 'listed'").
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	report, err := svc.Execute(context.Background(), item, executorTestStrategy(), []models.Platform{models.PlatformEbay})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	require.Len(t, report.Results, 1)
	assert.True(t, report.Results[0].Success)
	assert.Equal(t, "EXT-1", report.Results[0].ExternalID)
	require.Len(t, client.payloads, 1)

	require.NoError(t, mock.ExpectationsWereMet())
}

// staggeredPlatformClient finishes after a fixed delay so tests can force
// platforms to complete out of submission order.
type staggeredPlatformClient struct {
	platform models.Platform
	delay    time.Duration
}

func (c *staggeredPlatformClient) CreateListing(ctx context.Context, payload *models.ListingPayload) (*models.ListingResult, error) {
	time.Sleep(c.delay)
	return &models.ListingResult{
		Platform:   c.platform,
		Success:    true,
		ExternalID: "EXT-" + strings.ToUpper(string(c.platform)),
		ListedAt:   time.Now(),
	}, nil
}

func TestExecute_ResultsKeepPlatformOrder(t *testing.T) {
	// Later platforms finish first; results must still follow the
	// requested order.
	platforms := []models.Platform{models.PlatformEbay, models.PlatformFacebook, models.PlatformMercari}
	svc, mock := newTestExecutor(t, map[models.Platform]PlatformClient{
		models.PlatformEbay:     &staggeredPlatformClient{platform: models.PlatformEbay, delay: 60 * time.Millisecond},
		models.PlatformFacebook: &staggeredPlatformClient{platform: models.PlatformFacebook, delay: 30 * time.Millisecond},
		models.PlatformMercari:  &staggeredPlatformClient{platform: models.PlatformMercari, delay: 0},
	})

	item := executorTestItem()

	mock.MatchExpectationsInOrder(false)
	for range platforms {
		mock.ExpectQuery("SELECT id, inventory_id, platform").
			WithArgs(item.ID).
			WillReturnRows(listingRows())
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec("INSERT INTO listings").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("UPDATE inventory SET status = 'listed'").
			WithArgs(pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	}

	report, err := svc.Execute(context.Background(), item, executorTestStrategy(), platforms)
	require.NoError(t, err)

	require.Len(t, report.Results, len(platforms))
	for i, platform := range platforms {
		assert.Equal(t, platform, report.Results[i].Platform)
	}
	assert.Equal(t, 3, report.Succeeded)
}

func TestExecute_SkipsAlreadyListedPlatform(t *testing.T) {
	client := &stubPlatformClient{platform: models.PlatformEbay}
	svc, mock := newTestExecutor(t, map[models.Platform]PlatformClient{
		models.PlatformEbay: client,
	})

	item := executorTestItem()
	now := time.Now()

	mock.ExpectQuery("SELECT id, inventory_id, platform").
		WithArgs(item.ID).
		WillReturnRows(listingRows().AddRow(
			uuid.New(), item.ID, models.PlatformEbay, "EXT-0", "https://example.com/0",
			"Yamaha FG800", 99.0, models.ListingActive, &now, nil, now, now,
		))

	report, err := svc.Execute(context.Background(), item, executorTestStrategy(), []models.Platform{models.PlatformEbay})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Results[0].Error, "Listing already exists for ebay")

	// The marketplace was never called.
	assert.Empty(t, client.payloads)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_PlatformFailureRecorded(t *testing.T) {
	client := &stubPlatformClient{platform: models.PlatformEbay, err: fmt.Errorf("api unavailable")}
	svc, mock := newTestExecutor(t, map[models.Platform]PlatformClient{
		models.PlatformEbay: client,
	})

	item := executorTestItem()

	mock.ExpectQuery("SELECT id, inventory_id, platform").
		WithArgs(item.ID).
		WillReturnRows(listingRows())
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO listings").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	report, err := svc.Execute(context.Background(), item, executorTestStrategy(), []models.Platform{models.PlatformEbay})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Results[0].Error, "api unavailable")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_UnknownPlatformClient(t *testing.T) {
	svc, mock := newTestExecutor(t, map[models.Platform]PlatformClient{})

	item := executorTestItem()
	report, err := svc.Execute(context.Background(), item, executorTestStrategy(), []models.Platform{models.PlatformOfferUp})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Results[0].Error, "no client configured")

	require.NoError(t, mock.ExpectationsWereMet())
}
