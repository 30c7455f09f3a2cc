package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boomware/crosslist/pkg/models"
)

func marketAnalysis(brand, model string) *models.ProductAnalysis {
	return &models.ProductAnalysis{
		Product: models.ProductIdentity{
			Brand: brand,
			Model: model,
		},
		Condition: models.ConditionAssessment{
			State: models.ConditionGood,
		},
		EstimatedValue: models.ValueRange{Low: 80, High: 120},
	}
}

func TestMockMarketProvider_PopulatesCompFields(t *testing.T) {
	provider := NewMockMarketProvider()

	data, err := provider.FetchComps(context.Background(), marketAnalysis("Sony", "WH-1000XM4"))
	require.NoError(t, err)

	require.NotEmpty(t, data.SoldPrices)
	assert.Greater(t, data.MedianSoldPrice, 0.0)
	assert.Greater(t, data.AverageSoldPrice, 0.0)
	assert.Greater(t, data.LowestActive, 0.0)
	assert.Greater(t, data.TotalActive, 0)

	highest := data.SoldPrices[0]
	for _, p := range data.SoldPrices[1:] {
		if p > highest {
			highest = p
		}
	}
	assert.Equal(t, highest, data.HighestSold)
}

func TestMockMarketProvider_Deterministic(t *testing.T) {
	provider := NewMockMarketProvider()
	analysis := marketAnalysis("Yamaha", "FG800")

	first, err := provider.FetchComps(context.Background(), analysis)
	require.NoError(t, err)
	second, err := provider.FetchComps(context.Background(), analysis)
	require.NoError(t, err)

	assert.Equal(t, first.SoldPrices, second.SoldPrices)
	assert.Equal(t, first.LowestActive, second.LowestActive)
	assert.Equal(t, first.AverageSoldPrice, second.AverageSoldPrice)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, median(nil))
	assert.Equal(t, 10.0, median([]float64{10}))
	assert.Equal(t, 15.0, median([]float64{10, 20}))
	assert.Equal(t, 20.0, median([]float64{30, 10, 20}))
}
