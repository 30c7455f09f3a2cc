package services

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boomware/crosslist/pkg/models"
)

func testAnalysis(condition models.ConditionState, low, high float64) *models.ProductAnalysis {
	return &models.ProductAnalysis{
		Product: models.ProductIdentity{
			Name:     "Acoustic Guitar",
			Brand:    "Yamaha",
			Model:    "FG800",
			Category: "Musical Instruments",
		},
		Condition: models.ConditionAssessment{State: condition},
		EstimatedValue: models.ValueRange{
			Low:  low,
			High: high,
		},
	}
}

func newTestOptimizer() *PriceOptimizerService {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewPriceOptimizerService(nil, logger)
}

func TestOptimize_EstimateOnly(t *testing.T) {
	s := newTestOptimizer()

	// No market data: base price is the estimate midpoint.
	analysis := testAnalysis(models.ConditionGood, 80, 120)
	strategy, err := s.Optimize(context.Background(), analysis, nil, models.PricingOptions{})
	require.NoError(t, err)

	// 100 * 0.70 condition * 1.0 urgency
	assert.InDelta(t, 70.00, strategy.ListPrice, 0.001)
	// balanced urgency accepts down to 85%
	assert.InDelta(t, 59.50, strategy.MinAcceptable, 0.001)
	assert.InDelta(t, 44.63, strategy.DeclineBelow, 0.01)
	assert.False(t, strategy.UseAuction)
}

func TestOptimize_BlendsAverageSoldPrice(t *testing.T) {
	s := newTestOptimizer()

	analysis := testAnalysis(models.ConditionNew, 80, 120)
	market := &models.MarketData{AverageSoldPrice: 150, MedianSoldPrice: 120}

	strategy, err := s.Optimize(context.Background(), analysis, market, models.PricingOptions{})
	require.NoError(t, err)

	// 0.6*150 + 0.4*100 = 130, NEW keeps the full multiplier
	assert.InDelta(t, 130.00, strategy.ListPrice, 0.001)
}

func TestOptimize_MedianFallsBackWhenNoAverage(t *testing.T) {
	s := newTestOptimizer()

	analysis := testAnalysis(models.ConditionNew, 80, 120)
	market := &models.MarketData{MedianSoldPrice: 150}

	strategy, err := s.Optimize(context.Background(), analysis, market, models.PricingOptions{})
	require.NoError(t, err)

	assert.InDelta(t, 130.00, strategy.ListPrice, 0.001)
}

func TestOptimize_ConditionMultipliers(t *testing.T) {
	s := newTestOptimizer()

	tests := []struct {
		condition models.ConditionState
		expected  float64
	}{
		{models.ConditionNew, 100.00},
		{models.ConditionLikeNew, 85.00},
		{models.ConditionGood, 70.00},
		{models.ConditionFair, 50.00},
		{models.ConditionPoor, 30.00},
		{models.ConditionState("UNKNOWN"), 70.00},
	}

	for _, tt := range tests {
		t.Run(string(tt.condition), func(t *testing.T) {
			analysis := testAnalysis(tt.condition, 80, 120)
			strategy, err := s.Optimize(context.Background(), analysis, nil, models.PricingOptions{})
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, strategy.ListPrice, 0.001)
		})
	}
}

func TestOptimize_Urgency(t *testing.T) {
	s := newTestOptimizer()
	analysis := testAnalysis(models.ConditionNew, 100, 100)

	tests := []struct {
		name          string
		opts          models.PricingOptions
		listPrice     float64
		minAcceptable float64
	}{
		{
			name:          "fast sale discounts the price and accepts lower offers",
			opts:          models.PricingOptions{Urgency: models.UrgencyFastSale},
			listPrice:     85.00,
			minAcceptable: 63.75,
		},
		{
			name:          "balanced keeps the blended price",
			opts:          models.PricingOptions{Urgency: models.UrgencyBalanced},
			listPrice:     100.00,
			minAcceptable: 85.00,
		},
		{
			name:          "maximize profit premiums the price and holds firm",
			opts:          models.PricingOptions{Urgency: models.UrgencyMaxProfit},
			listPrice:     110.00,
			minAcceptable: 99.00,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy, err := s.Optimize(context.Background(), analysis, nil, tt.opts)
			require.NoError(t, err)
			assert.InDelta(t, tt.listPrice, strategy.ListPrice, 0.001)
			assert.InDelta(t, tt.minAcceptable, strategy.MinAcceptable, 0.001)
		})
	}
}

func TestOptimize_MinCostFloorsAcceptablePrice(t *testing.T) {
	s := newTestOptimizer()
	analysis := testAnalysis(models.ConditionPoor, 20, 40)

	strategy, err := s.Optimize(context.Background(), analysis, nil, models.PricingOptions{MinCost: 15})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, strategy.MinAcceptable, 15.0)
	for _, drop := range strategy.DropSchedule {
		assert.GreaterOrEqual(t, drop.FloorPrice, strategy.MinAcceptable)
	}
}

func TestBuildDropSchedule(t *testing.T) {
	tests := []struct {
		urgency models.Urgency
		days    []int
	}{
		{models.UrgencyFastSale, []int{3, 7, 14}},
		{models.UrgencyBalanced, []int{7, 14, 21}},
		{models.UrgencyMaxProfit, []int{14, 30, 45}},
	}

	for _, tt := range tests {
		t.Run(string(tt.urgency), func(t *testing.T) {
			drops := buildDropSchedule(tt.urgency, 100, 50)
			require.Len(t, drops, 3)
			for i, drop := range drops {
				assert.Equal(t, tt.days[i], drop.AfterDays)
			}
			assert.InDelta(t, 95.00, drops[0].FloorPrice, 0.001)
			assert.InDelta(t, 90.00, drops[1].FloorPrice, 0.001)
			assert.InDelta(t, 85.00, drops[2].FloorPrice, 0.001)
		})
	}
}

func TestBuildDropSchedule_NeverDropsBelowFloor(t *testing.T) {
	drops := buildDropSchedule(models.UrgencyFastSale, 100, 92)
	for _, drop := range drops {
		assert.GreaterOrEqual(t, drop.FloorPrice, 92.0)
	}
}

func TestAuctionSignals(t *testing.T) {
	base := testAnalysis(models.ConditionGood, 80, 120)

	t.Run("no market data yields at most keyword and USP signals", func(t *testing.T) {
		signals := auctionSignals(base, nil)
		assert.Empty(t, signals)
	})

	t.Run("hot market trips the velocity signals", func(t *testing.T) {
		market := &models.MarketData{
			RecentSales:       8,
			AverageDaysToSell: 4,
			TotalActive:       5,
		}
		signals := auctionSignals(base, market)
		assert.Contains(t, signals, "high sales velocity")
		assert.Contains(t, signals, "sells quickly")
		assert.Contains(t, signals, "low competition")
	})

	t.Run("collectible keyword in name", func(t *testing.T) {
		analysis := testAnalysis(models.ConditionGood, 80, 120)
		analysis.Product.Name = "Vintage Yamaha FG800"
		signals := auctionSignals(analysis, nil)
		require.Len(t, signals, 1)
		assert.Contains(t, signals[0], "collectible keyword")
	})

	t.Run("price variability above 30 percent", func(t *testing.T) {
		market := &models.MarketData{
			SoldPrices: []float64{20, 50, 110, 200},
		}
		signals := auctionSignals(base, market)
		assert.Contains(t, signals, "high price variability")
	})

	t.Run("stable prices stay quiet", func(t *testing.T) {
		market := &models.MarketData{
			SoldPrices: []float64{99, 100, 101, 100},
		}
		signals := auctionSignals(base, market)
		assert.NotContains(t, signals, "high price variability")
	})
}

func TestOptimize_AuctionRecommendation(t *testing.T) {
	s := newTestOptimizer()

	analysis := testAnalysis(models.ConditionGood, 80, 120)
	analysis.Product.Name = "Rare Yamaha FG800"
	market := &models.MarketData{
		MedianSoldPrice:   100,
		RecentSales:       10,
		AverageDaysToSell: 3,
		TotalActive:       4,
	}

	strategy, err := s.Optimize(context.Background(), analysis, market, models.PricingOptions{})
	require.NoError(t, err)

	assert.True(t, strategy.UseAuction)
	require.NotNil(t, strategy.Auction)
	assert.InDelta(t, strategy.MinAcceptable*0.5, strategy.Auction.StartPrice, 0.01)
	assert.InDelta(t, strategy.MinAcceptable, strategy.Auction.ReservePrice, 0.001)
	assert.Equal(t, 3, strategy.Auction.DurationDays)
}

func TestPlatformPrice_GrossUpCoversFees(t *testing.T) {
	tests := []struct {
		platform models.Platform
		target   float64
	}{
		{models.PlatformEbay, 100},
		{models.PlatformFacebook, 100},
		{models.PlatformMercari, 100},
		{models.PlatformPoshmark, 100},
		{models.PlatformOfferUp, 100},
	}

	for _, tt := range tests {
		t.Run(string(tt.platform), func(t *testing.T) {
			price := platformPrice(tt.platform, tt.target)
			assert.Greater(t, price.ListPrice, 0.0)
			// Net proceeds should land within rounding of the target.
			assert.InDelta(t, tt.target, price.NetProceeds, 0.05)
		})
	}
}

func TestPlatformPrice_PoshmarkTakesTwentyPercent(t *testing.T) {
	price := platformPrice(models.PlatformPoshmark, 80)
	assert.InDelta(t, 100.00, price.ListPrice, 0.001)
	assert.InDelta(t, 20.00, price.Fees, 0.001)
	assert.InDelta(t, 7.97, price.Shipping, 0.001)
}

func TestPriceVariability(t *testing.T) {
	assert.Zero(t, priceVariability(nil))
	assert.Zero(t, priceVariability([]float64{50}))
	assert.InDelta(t, 0.0, priceVariability([]float64{100, 100, 100}), 0.0001)
	assert.Greater(t, priceVariability([]float64{10, 100, 300}), 0.3)
}

func TestCompetitivePrice(t *testing.T) {
	market := &models.MarketData{
		SoldPrices:   []float64{100, 150, 200},
		LowestActive: 120,
		HighestSold:  200,
	}
	svc := newTestOptimizer()

	// Aggressive undercuts the lowest live listing, not the lowest sale.
	aggressive, err := svc.CompetitivePrice(market, StanceAggressive)
	require.NoError(t, err)
	assert.Equal(t, 114.0, aggressive)

	avg, err := svc.CompetitivePrice(market, StanceMarket)
	require.NoError(t, err)
	assert.Equal(t, 150.0, avg)

	premium, err := svc.CompetitivePrice(market, StancePremium)
	require.NoError(t, err)
	assert.Equal(t, 180.0, premium)
}

func TestCompetitivePrice_SoldCompsOnly(t *testing.T) {
	// No active listings reported: sold comps carry every stance.
	market := &models.MarketData{SoldPrices: []float64{100, 150, 200}}
	svc := newTestOptimizer()

	aggressive, err := svc.CompetitivePrice(market, StanceAggressive)
	require.NoError(t, err)
	assert.Equal(t, 95.0, aggressive)

	premium, err := svc.CompetitivePrice(market, StancePremium)
	require.NoError(t, err)
	assert.Equal(t, 180.0, premium)
}

func TestCompetitivePrice_NoComps(t *testing.T) {
	svc := newTestOptimizer()

	_, err := svc.CompetitivePrice(nil, StanceMarket)
	assert.Error(t, err)

	_, err = svc.CompetitivePrice(&models.MarketData{}, StanceMarket)
	assert.Error(t, err)
}

func TestPriceReport(t *testing.T) {
	svc := newTestOptimizer()
	analysis := testAnalysis(models.ConditionGood, 80, 120)

	strategy, err := svc.Optimize(context.Background(), analysis, nil, models.PricingOptions{})
	require.NoError(t, err)

	report := svc.PriceReport(analysis, strategy)
	assert.Contains(t, report, "List price:      $70.00")
	assert.Contains(t, report, "Accept offers >= $59.50")
	assert.Contains(t, report, "Markdown schedule:")
	assert.Contains(t, report, "ebay")
	assert.Contains(t, report, "poshmark")
}

func TestNetProfit(t *testing.T) {
	svc := newTestOptimizer()

	// eBay: 100 - 13.15% - 0.30 = 86.55; free shipping subtracts 8.00.
	paid := svc.NetProfit(100, models.PlatformEbay, models.ShippingConfig{})
	assert.InDelta(t, 86.55, paid, 0.001)

	free := svc.NetProfit(100, models.PlatformEbay, models.ShippingConfig{FreeShipping: true})
	assert.InDelta(t, 78.55, free, 0.001)

	// Poshmark has no fixed per-order fee.
	posh := svc.NetProfit(50, models.PlatformPoshmark, models.ShippingConfig{})
	assert.InDelta(t, 40.00, posh, 0.001)
}
