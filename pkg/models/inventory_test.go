package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlatform(t *testing.T) {
	for _, p := range AllPlatforms {
		got, err := ParsePlatform(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	_, err := ParsePlatform("etsy")
	assert.ErrorContains(t, err, "unknown platform")

	// Case sensitive on purpose: platform names are canonical lowercase.
	_, err = ParsePlatform("eBay")
	assert.Error(t, err)
}

func TestPlatformValid(t *testing.T) {
	assert.True(t, PlatformPoshmark.Valid())
	assert.False(t, Platform("craigslist").Valid())
	assert.False(t, Platform("").Valid())
}

func TestInventoryItemProfit(t *testing.T) {
	item := &InventoryItem{AcquiredPrice: 40}
	assert.Equal(t, 0.0, item.Profit())

	sold := 110.0
	item.SoldPrice = &sold
	assert.Equal(t, 70.0, item.Profit())
}

func TestValueRangeMidpoint(t *testing.T) {
	v := ValueRange{Low: 80, High: 120}
	assert.Equal(t, 100.0, v.Midpoint())
}

func TestJobTerminal(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{JobQueued, false},
		{JobProcessing, false},
		{JobCompleted, true},
		{JobFailed, true},
		{JobCancelled, true},
	}

	for _, tt := range tests {
		j := &Job{Status: tt.status}
		assert.Equal(t, tt.want, j.Terminal(), string(tt.status))
	}
}
