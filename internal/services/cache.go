package services

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/boomware/crosslist/internal/database"
	"github.com/boomware/crosslist/pkg/models"
)

// CacheService layers a small in-process LRU over the redis tiers so that
// repeated lookups within one process skip the network entirely. Vision
// results live on the Warm tier, market research on the Cold tier.
type CacheService struct {
	redis   *database.RedisClients
	metrics *MetricsCollector
	logger  *logrus.Logger

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
	maxSize int

	visionTTL time.Duration
	marketTTL time.Duration
}

type localEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

func NewCacheService(redis *database.RedisClients, visionTTL, marketTTL time.Duration, metrics *MetricsCollector, logger *logrus.Logger) *CacheService {
	if visionTTL <= 0 {
		visionTTL = time.Hour
	}
	if marketTTL <= 0 {
		marketTTL = 24 * time.Hour
	}
	return &CacheService{
		redis:     redis,
		metrics:   metrics,
		logger:    logger,
		entries:   make(map[string]*list.Element),
		lru:       list.New(),
		maxSize:   1000,
		visionTTL: visionTTL,
		marketTTL: marketTTL,
	}
}

// VisionKey derives a stable cache key for a set of image hashes and the
// analysis tier. Inputs are sorted so argument order never changes the key.
func VisionKey(imageHashes []string, tier string) string {
	sorted := append([]string(nil), imageHashes...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(tier + ":" + strings.Join(sorted, ",")))
	return fmt.Sprintf("vision:%s:v1", hex.EncodeToString(sum[:])[:16])
}

// MarketKey identifies one product's market research slot.
func MarketKey(brand, model string, condition models.ConditionState) string {
	norm := func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return fmt.Sprintf("market:%s:%s:%s:v1", norm(brand), norm(model), norm(string(condition)))
}

// PricingKey identifies one platform-specific pricing computation.
func PricingKey(platform models.Platform, analysisHash string) string {
	return fmt.Sprintf("pricing:%s:%s:v1", platform, analysisHash)
}

// HashOptions canonicalizes an options struct for key derivation. Map keys
// are serialized in sorted order via encoding/json so two equal option sets
// always produce the same hash.
func HashOptions(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to serialize cache options: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16], nil
}

func (c *CacheService) GetVision(ctx context.Context, key string) (*models.ProductAnalysis, bool) {
	var analysis models.ProductAnalysis
	ok := c.get(ctx, c.redis.Warm, key, &analysis)
	c.recordLookup("vision", ok)
	if !ok {
		return nil, false
	}
	return &analysis, true
}

func (c *CacheService) SetVision(ctx context.Context, key string, analysis *models.ProductAnalysis) {
	c.set(ctx, c.redis.Warm, key, analysis, c.visionTTL)
}

func (c *CacheService) GetMarket(ctx context.Context, key string) (*models.MarketData, bool) {
	var data models.MarketData
	ok := c.get(ctx, c.redis.Cold, key, &data)
	c.recordLookup("market", ok)
	if !ok {
		return nil, false
	}
	return &data, true
}

func (c *CacheService) SetMarket(ctx context.Context, key string, data *models.MarketData) {
	c.set(ctx, c.redis.Cold, key, data, c.marketTTL)
}

func (c *CacheService) GetPricing(ctx context.Context, key string) (*models.PricingStrategy, bool) {
	var strategy models.PricingStrategy
	ok := c.get(ctx, c.redis.Cold, key, &strategy)
	c.recordLookup("pricing", ok)
	if !ok {
		return nil, false
	}
	return &strategy, true
}

func (c *CacheService) recordLookup(cache string, hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(cache, hit)
	}
}

func (c *CacheService) SetPricing(ctx context.Context, key string, strategy *models.PricingStrategy) {
	c.set(ctx, c.redis.Cold, key, strategy, c.marketTTL)
}

// Has reports whether the key exists on the given tier. The local layer
// is not consulted: existence checks must see what other processes see.
func (c *CacheService) Has(ctx context.Context, tier *redis.Client, key string) (bool, error) {
	n, err := tier.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache exists check failed: %w", err)
	}
	return n > 0, nil
}

// Incr atomically increments a counter, setting its TTL on first use so
// abandoned counters expire.
func (c *CacheService) Incr(ctx context.Context, tier *redis.Client, key string, ttl time.Duration) (int64, error) {
	n, err := tier.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("cache increment failed: %w", err)
	}
	if n == 1 && ttl > 0 {
		tier.Expire(ctx, key, ttl)
	}
	return n, nil
}

// Keys scans the tier for keys matching the pattern. SCAN, not KEYS, so
// large keyspaces don't block the server.
func (c *CacheService) Keys(ctx context.Context, tier *redis.Client, pattern string) ([]string, error) {
	var keys []string
	iter := tier.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("cache scan failed: %w", err)
	}
	return keys, nil
}

// Invalidate drops a key from both layers.
func (c *CacheService) Invalidate(ctx context.Context, tier *redis.Client, key string) {
	c.mu.Lock()
	if elem, ok := c.entries[key]; ok {
		c.lru.Remove(elem)
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if tier != nil {
		if err := tier.Del(ctx, key).Err(); err != nil {
			c.logger.WithFields(logrus.Fields{
				"key":   key,
				"error": err.Error(),
			}).Warn("Failed to invalidate cache key")
		}
	}
}

func (c *CacheService) get(ctx context.Context, tier *redis.Client, key string, out interface{}) bool {
	if data, ok := c.localGet(key); ok {
		if err := json.Unmarshal(data, out); err == nil {
			return true
		}
	}

	if tier == nil {
		return false
	}

	data, err := tier.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithFields(logrus.Fields{
				"key":   key,
				"error": err.Error(),
			}).Warn("Cache read failed")
		}
		return false
	}

	if err := json.Unmarshal(data, out); err != nil {
		c.logger.WithField("key", key).Warn("Discarding undecodable cache entry")
		return false
	}

	// Populate the local layer with a short TTL so hot keys stay cheap.
	c.localSet(key, data, 5*time.Minute)
	return true
}

func (c *CacheService) set(ctx context.Context, tier *redis.Client, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.WithField("key", key).Warn("Failed to serialize cache value")
		return
	}

	c.localSet(key, data, ttl)

	if tier == nil {
		return
	}
	if err := tier.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Warn("Cache write failed")
	}
}

func (c *CacheService) localGet(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*localEntry)
	if time.Now().After(entry.expiresAt) {
		c.lru.Remove(elem)
		delete(c.entries, key)
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return entry.value, true
}

func (c *CacheService) localSet(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*localEntry)
		entry.value = value
		entry.expiresAt = time.Now().Add(ttl)
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(&localEntry{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
	c.entries[key] = elem

	for c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*localEntry).key)
	}
}
