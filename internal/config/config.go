package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Vision     VisionConfig     `mapstructure:"vision"`
	Images     ImageConfig      `mapstructure:"images"`
	Pricing    PricingConfig    `mapstructure:"pricing"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Platforms  PlatformsConfig  `mapstructure:"platforms"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Security   SecurityConfig   `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	Hot  RedisInstanceConfig `mapstructure:"hot"`
	Warm RedisInstanceConfig `mapstructure:"warm"`
	Cold RedisInstanceConfig `mapstructure:"cold"`
}

type RedisInstanceConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		ListingSubmissions string `mapstructure:"listing_submissions"`
		DeadLetter         string `mapstructure:"dead_letter"`
	} `mapstructure:"topics"`
}

type AuthConfig struct {
	JWTSecret string            `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration     `mapstructure:"token_ttl"`
	APIKeys   map[string]string `mapstructure:"api_keys"`
	RateLimit RateLimitConfig   `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Default int           `mapstructure:"default"`
	Premium int           `mapstructure:"premium"`
	Window  time.Duration `mapstructure:"window"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// VisionConfig selects the inference models and request shaping for the
// product analysis stage.
type VisionConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	FullModel     string        `mapstructure:"full_model"`
	LiteModel     string        `mapstructure:"lite_model"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	Timeout       time.Duration `mapstructure:"timeout"`
	PromptCaching bool          `mapstructure:"prompt_caching"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

type ImageConfig struct {
	CacheDir       string `mapstructure:"cache_dir"`
	RemoveBgAPIKey string `mapstructure:"removebg_api_key"`
	JPEGQuality    int    `mapstructure:"jpeg_quality"`
}

type PricingConfig struct {
	MarketCacheTTL time.Duration `mapstructure:"market_cache_ttl"`
}

// QueueConfig tunes the redis job queues and the worker pool that drains them.
type QueueConfig struct {
	MaxAttempts        int           `mapstructure:"max_attempts"`
	BackoffBase        time.Duration `mapstructure:"backoff_base"`
	BackoffCap         time.Duration `mapstructure:"backoff_cap"`
	VisionConcurrency  int           `mapstructure:"vision_concurrency"`
	MarketConcurrency  int           `mapstructure:"market_concurrency"`
	ListingConcurrency int           `mapstructure:"listing_concurrency"`
	VisionLockTTL      time.Duration `mapstructure:"vision_lock_ttl"`
	VisionLockRenew    time.Duration `mapstructure:"vision_lock_renew"`
	MarketLockTTL      time.Duration `mapstructure:"market_lock_ttl"`
	MarketLockRenew    time.Duration `mapstructure:"market_lock_renew"`
	AutoscaleInterval  time.Duration `mapstructure:"autoscale_interval"`
	ScaleUpDepth       int           `mapstructure:"scale_up_depth"`
	ScaleDownDepth     int           `mapstructure:"scale_down_depth"`
	MaxWorkers         int           `mapstructure:"max_workers"`
	MinWorkers         int           `mapstructure:"min_workers"`
	ShutdownGrace      time.Duration `mapstructure:"shutdown_grace"`
}

type PlatformsConfig struct {
	Ebay EbayConfig `mapstructure:"ebay"`
	Mock bool       `mapstructure:"mock"`
}

type EbayConfig struct {
	ClientID            string `mapstructure:"client_id"`
	ClientSecret        string `mapstructure:"client_secret"`
	RedirectURI         string `mapstructure:"redirect_uri"`
	Sandbox             bool   `mapstructure:"sandbox"`
	FulfillmentPolicyID string `mapstructure:"fulfillment_policy_id"`
	PaymentPolicyID     string `mapstructure:"payment_policy_id"`
	ReturnPolicyID      string `mapstructure:"return_policy_id"`
	MerchantLocationKey string `mapstructure:"merchant_location_key"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Port        string `mapstructure:"port"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	// Set defaults
	setDefaults()

	// Environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.hot.max_retries", 3)
	viper.SetDefault("redis.hot.pool_size", 10)
	viper.SetDefault("redis.hot.timeout", "5s")
	viper.SetDefault("redis.warm.max_retries", 3)
	viper.SetDefault("redis.warm.pool_size", 5)
	viper.SetDefault("redis.warm.timeout", "10s")
	viper.SetDefault("redis.cold.max_retries", 3)
	viper.SetDefault("redis.cold.pool_size", 5)
	viper.SetDefault("redis.cold.timeout", "15s")

	// Kafka defaults
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topics.listing_submissions", "listing-submissions")
	viper.SetDefault("kafka.topics.dead_letter", "listing-submissions-dlq")

	// Auth defaults
	viper.SetDefault("auth.token_ttl", "24h")
	viper.SetDefault("auth.rate_limit.default", 1000)
	viper.SetDefault("auth.rate_limit.premium", 10000)
	viper.SetDefault("auth.rate_limit.window", "1h")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Vision defaults
	viper.SetDefault("vision.base_url", "https://api.anthropic.com")
	viper.SetDefault("vision.full_model", "claude-sonnet-4-20250514")
	viper.SetDefault("vision.lite_model", "claude-3-5-haiku-20241022")
	viper.SetDefault("vision.max_tokens", 4096)
	viper.SetDefault("vision.timeout", "120s")
	viper.SetDefault("vision.prompt_caching", true)
	viper.SetDefault("vision.cache_ttl", "1h")

	// Image defaults
	viper.SetDefault("images.cache_dir", "./image-cache")
	viper.SetDefault("images.jpeg_quality", 90)

	// Pricing defaults
	viper.SetDefault("pricing.market_cache_ttl", "24h")

	// Queue defaults
	viper.SetDefault("queue.max_attempts", 3)
	viper.SetDefault("queue.backoff_base", "2s")
	viper.SetDefault("queue.backoff_cap", "32s")
	viper.SetDefault("queue.vision_concurrency", 2)
	viper.SetDefault("queue.market_concurrency", 3)
	viper.SetDefault("queue.listing_concurrency", 5)
	viper.SetDefault("queue.vision_lock_ttl", "30s")
	viper.SetDefault("queue.vision_lock_renew", "15s")
	viper.SetDefault("queue.market_lock_ttl", "60s")
	viper.SetDefault("queue.market_lock_renew", "30s")
	viper.SetDefault("queue.autoscale_interval", "30s")
	viper.SetDefault("queue.scale_up_depth", 10)
	viper.SetDefault("queue.scale_down_depth", 2)
	viper.SetDefault("queue.max_workers", 8)
	viper.SetDefault("queue.min_workers", 1)
	viper.SetDefault("queue.shutdown_grace", "30s")

	// Platform defaults
	viper.SetDefault("platforms.mock", true)
	viper.SetDefault("platforms.ebay.sandbox", true)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.port", "9090")
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
