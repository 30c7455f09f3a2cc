package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boomware/crosslist/internal/database"
	"github.com/boomware/crosslist/pkg/models"
)

func TestVisionKey_OrderIndependent(t *testing.T) {
	a := VisionKey([]string{"aaa", "bbb", "ccc"}, "full")
	b := VisionKey([]string{"ccc", "aaa", "bbb"}, "full")
	assert.Equal(t, a, b)
}

func TestVisionKey_TierChangesKey(t *testing.T) {
	full := VisionKey([]string{"aaa"}, "full")
	lite := VisionKey([]string{"aaa"}, "lite")
	assert.NotEqual(t, full, lite)
}

func TestVisionKey_Format(t *testing.T) {
	key := VisionKey([]string{"aaa"}, "full")
	assert.True(t, strings.HasPrefix(key, "vision:"))
	assert.True(t, strings.HasSuffix(key, ":v1"))

	parts := strings.Split(key, ":")
	require.Len(t, parts, 3)
	assert.Len(t, parts[1], 16)
}

func TestMarketKey_NormalizesInputs(t *testing.T) {
	a := MarketKey("Yamaha", "FG800", models.ConditionGood)
	b := MarketKey("  yamaha ", "fg800", models.ConditionGood)
	assert.Equal(t, a, b)
	assert.Equal(t, "market:yamaha:fg800:good:v1", a)
}

func TestMarketKey_ConditionMatters(t *testing.T) {
	good := MarketKey("Yamaha", "FG800", models.ConditionGood)
	fair := MarketKey("Yamaha", "FG800", models.ConditionFair)
	assert.NotEqual(t, good, fair)
}

func TestPricingKey(t *testing.T) {
	key := PricingKey(models.PlatformEbay, "abc123")
	assert.Equal(t, "pricing:ebay:abc123:v1", key)
}

func TestHashOptions_Deterministic(t *testing.T) {
	opts := EnhanceOptions{Sharpen: true, AutoLevel: true, Quality: 90}

	a, err := HashOptions(opts)
	require.NoError(t, err)
	b, err := HashOptions(opts)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestHashOptions_MapsSerializeSorted(t *testing.T) {
	// encoding/json writes map keys in sorted order, so two equal maps
	// built in different insertion orders hash the same.
	m1 := map[string]int{"alpha": 1, "beta": 2, "gamma": 3}
	m2 := map[string]int{"gamma": 3, "alpha": 1, "beta": 2}

	a, err := HashOptions(m1)
	require.NoError(t, err)
	b, err := HashOptions(m2)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestHashOptions_DifferentValuesDiffer(t *testing.T) {
	a, err := HashOptions(EnhanceOptions{Quality: 85})
	require.NoError(t, err)
	b, err := HashOptions(EnhanceOptions{Quality: 90})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCacheLookupCounters(t *testing.T) {
	mr := miniredis.RunT(t)
	warm := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { warm.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	cache := NewCacheService(&database.RedisClients{Warm: warm}, time.Hour, time.Hour, NewMetricsCollector(logger), logger)

	hitsBefore := testutil.ToFloat64(cacheRequests.WithLabelValues("vision", "hit"))
	missesBefore := testutil.ToFloat64(cacheRequests.WithLabelValues("vision", "miss"))

	ctx := context.Background()
	key := VisionKey([]string{"abc"}, "full")
	_, ok := cache.GetVision(ctx, key)
	require.False(t, ok)

	cache.SetVision(ctx, key, &models.ProductAnalysis{})
	_, ok = cache.GetVision(ctx, key)
	require.True(t, ok)

	assert.Equal(t, hitsBefore+1, testutil.ToFloat64(cacheRequests.WithLabelValues("vision", "hit")))
	assert.Equal(t, missesBefore+1, testutil.ToFloat64(cacheRequests.WithLabelValues("vision", "miss")))
}
