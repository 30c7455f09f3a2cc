package services

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/boomware/crosslist/pkg/models"
)

// MarketProvider fetches comparable-sale data for a product. The production
// provider scrapes sold listings; the mock provider synthesizes plausible
// comps for development and tests.
type MarketProvider interface {
	FetchComps(ctx context.Context, analysis *models.ProductAnalysis) (*models.MarketData, error)
}

// MarketIntelService resolves market data for an item, caching results on
// the cold tier keyed by brand, model and condition.
type MarketIntelService struct {
	provider MarketProvider
	cache    *CacheService
	logger   *logrus.Logger
}

func NewMarketIntelService(provider MarketProvider, cache *CacheService, logger *logrus.Logger) *MarketIntelService {
	return &MarketIntelService{
		provider: provider,
		cache:    cache,
		logger:   logger,
	}
}

func (s *MarketIntelService) Research(ctx context.Context, analysis *models.ProductAnalysis) (*models.MarketData, error) {
	key := MarketKey(analysis.Product.Brand, analysis.Product.Model, analysis.Condition.State)
	if cached, ok := s.cache.GetMarket(ctx, key); ok {
		s.logger.WithField("key", key).Debug("Market cache hit")
		return cached, nil
	}

	data, err := s.provider.FetchComps(ctx, analysis)
	if err != nil {
		// Pricing degrades gracefully to the vision estimate, so a
		// research failure is logged but not fatal.
		s.logger.WithFields(logrus.Fields{
			"brand": analysis.Product.Brand,
			"model": analysis.Product.Model,
			"error": err.Error(),
		}).Warn("Market research failed")
		return nil, err
	}

	data.FetchedAt = time.Now()
	s.cache.SetMarket(ctx, key, data)
	return data, nil
}

// MockMarketProvider synthesizes deterministic comps around the vision
// model's retail estimate. The same product always sees the same market.
type MockMarketProvider struct{}

func NewMockMarketProvider() *MockMarketProvider {
	return &MockMarketProvider{}
}

func (p *MockMarketProvider) FetchComps(ctx context.Context, analysis *models.ProductAnalysis) (*models.MarketData, error) {
	sum := sha256.Sum256([]byte(analysis.Product.Brand + "|" + analysis.Product.Model + "|" + string(analysis.Condition.State)))
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	rng := rand.New(rand.NewSource(seed))

	mid := analysis.EstimatedValue.Midpoint()
	if mid <= 0 {
		mid = 25
	}

	count := 4 + rng.Intn(12)
	prices := make([]float64, count)
	highest := 0.0
	for i := range prices {
		// Cluster sold prices within ±25% of the estimate midpoint.
		prices[i] = mid * (0.75 + rng.Float64()*0.5)
		if prices[i] > highest {
			highest = prices[i]
		}
	}

	return &models.MarketData{
		MedianSoldPrice:   median(prices),
		AverageSoldPrice:  stat.Mean(prices, nil),
		HighestSold:       highest,
		LowestActive:      mid * (0.80 + rng.Float64()*0.15),
		AverageDaysToSell: 3 + rng.Float64()*18,
		RecentSales:       count,
		TotalActive:       1 + rng.Intn(40),
		SoldPrices:        prices,
	}, nil
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
