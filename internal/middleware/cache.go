package middleware

import (
	"context"
	"crypto/md5"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const reportCachePrefix = "httpcache:reports"

// ReportCache caches GET report responses in redis. Reports aggregate over
// the whole inventory table, so a short TTL keeps them cheap without going
// stale for long.
func ReportCache(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) gin.HandlerFunc {
	if redisClient == nil {
		logger.Warn("Redis client not available, report caching disabled")
		return func(c *gin.Context) { c.Next() }
	}
	if ttl == 0 {
		ttl = 5 * time.Minute
	}

	return func(c *gin.Context) {
		if c.Request.Method != "GET" {
			c.Next()
			return
		}

		cacheKey := reportCacheKey(c)

		cached := redisClient.Get(c.Request.Context(), cacheKey).Val()
		if cached != "" {
			if response, err := parseCachedResponse(cached); err == nil {
				c.Header("X-Cache", "HIT")
				c.Data(response.StatusCode, response.ContentType, response.Body)
				c.Abort()
				return
			}
		}

		writer := &cacheWriter{
			ResponseWriter: c.Writer,
			redis:          redisClient,
			cacheKey:       cacheKey,
			ttl:            ttl,
			logger:         logger,
		}
		c.Writer = writer
		c.Header("X-Cache", "MISS")

		c.Next()
	}
}

// ReportCacheInvalidation drops cached reports whenever inventory state
// changes, so a sale shows up in the next report request.
func ReportCacheInvalidation(redisClient *redis.Client, logger *logrus.Logger) gin.HandlerFunc {
	if redisClient == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		method := c.Request.Method

		c.Next()

		if method == "POST" || method == "PUT" || method == "DELETE" {
			if c.Writer.Status() >= 200 && c.Writer.Status() < 300 {
				go invalidateReportCache(redisClient, logger)
			}
		}
	}
}

func invalidateReportCache(redisClient *redis.Client, logger *logrus.Logger) {
	keys, err := redisClient.Keys(context.Background(), reportCachePrefix+":*").Result()
	if err != nil {
		logger.WithError(err).Warn("Failed to list report cache keys")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := redisClient.Del(context.Background(), keys...).Err(); err != nil {
		logger.WithError(err).Warn("Failed to invalidate report cache")
	}
}

// cacheWriter wraps gin.ResponseWriter to capture the response body.
type cacheWriter struct {
	gin.ResponseWriter
	redis    *redis.Client
	cacheKey string
	ttl      time.Duration
	logger   *logrus.Logger
	body     []byte
	status   int
}

type cachedResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

func (w *cacheWriter) Write(data []byte) (int, error) {
	w.body = append(w.body, data...)
	n, err := w.ResponseWriter.Write(data)
	if w.status == 0 {
		w.status = w.ResponseWriter.Status()
	}
	if err == nil && w.status >= 200 && w.status < 300 {
		w.cacheResponse()
	}
	return n, err
}

func (w *cacheWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *cacheWriter) cacheResponse() {
	if len(w.body) == 0 {
		return
	}

	response := &cachedResponse{
		StatusCode:  w.status,
		ContentType: w.Header().Get("Content-Type"),
		Body:        w.body,
	}

	data := serializeCachedResponse(response)
	if err := w.redis.Set(context.Background(), w.cacheKey, data, w.ttl).Err(); err != nil {
		w.logger.WithError(err).WithField("cache_key", w.cacheKey).Warn("Failed to cache report response")
	}
}

func reportCacheKey(c *gin.Context) string {
	keyStr := strings.Join([]string{
		c.Request.Method,
		c.Request.URL.Path,
		c.Request.URL.RawQuery,
	}, ":")
	hash := md5.Sum([]byte(keyStr))
	return fmt.Sprintf("%s:%x", reportCachePrefix, hash)
}

// Serialization format: statusCode|contentType|body
func serializeCachedResponse(response *cachedResponse) string {
	return fmt.Sprintf("%d|%s|%s",
		response.StatusCode,
		response.ContentType,
		string(response.Body),
	)
}

func parseCachedResponse(data string) (*cachedResponse, error) {
	parts := strings.SplitN(data, "|", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid cached response format")
	}

	statusCode, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid status code: %w", err)
	}

	return &cachedResponse{
		StatusCode:  statusCode,
		ContentType: parts[1],
		Body:        []byte(parts[2]),
	}, nil
}
