package services

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/boomware/crosslist/internal/config"
	"github.com/boomware/crosslist/internal/database"
)

var (
	dependencyUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crosslist_dependency_up",
		Help: "Dependency health (1 = healthy, 0 = unhealthy)",
	}, []string{"dependency"})

	dependencyCheckedAt = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crosslist_dependency_checked_at",
		Help: "Unix timestamp of the last health probe per dependency",
	}, []string{"dependency"})

	processStats = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crosslist_process_stats",
		Help: "Process-level runtime statistics",
	}, []string{"stat"})

	pgPoolStats = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crosslist_pg_pool_conns",
		Help: "PostgreSQL connection pool state",
	}, []string{"state"})
)

// HealthService probes the dependencies the pipeline needs. Critical
// checks gate readiness; non-critical ones only degrade the reported
// status, since the pipeline keeps working without the warm caches and a
// missing vision key still serves cached analyses.
type HealthService struct {
	config *config.Config
	logger *logrus.Logger
	db     *database.Database
}

type HealthStatus struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Services    map[string]string      `json:"services"`
	Critical    []string               `json:"critical_failures,omitempty"`
	NonCritical []string               `json:"non_critical_failures,omitempty"`
	Latency     time.Duration          `json:"latency,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

type healthCheck struct {
	name     string
	critical bool
	probe    func(ctx context.Context) error
}

func NewHealthService(cfg *config.Config, logger *logrus.Logger, db *database.Database) *HealthService {
	hs := &HealthService{
		config: cfg,
		logger: logger,
		db:     db,
	}

	go hs.collectProcessStats()
	go hs.collectPoolStats()

	return hs
}

func (s *HealthService) checks() []healthCheck {
	return []healthCheck{
		{"postgresql", true, func(ctx context.Context) error { return s.db.PG.Ping(ctx) }},
		{"redis_hot", true, func(ctx context.Context) error { return s.db.Redis.Hot.Ping(ctx).Err() }},
		{"redis_warm", false, func(ctx context.Context) error { return s.db.Redis.Warm.Ping(ctx).Err() }},
		{"redis_cold", false, func(ctx context.Context) error { return s.db.Redis.Cold.Ping(ctx).Err() }},
		{"vision_api", false, s.checkVisionConfig},
		{"kafka", false, s.checkKafkaConfig},
	}
}

func (s *HealthService) CheckHealth() *HealthStatus {
	start := time.Now()
	status := &HealthStatus{
		Timestamp: start,
		Services:  make(map[string]string),
	}

	criticalHealthy := true
	for _, check := range s.checks() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := check.probe(ctx)
		cancel()

		dependencyCheckedAt.WithLabelValues(check.name).Set(float64(time.Now().Unix()))
		if err == nil {
			status.Services[check.name] = "healthy"
			dependencyUp.WithLabelValues(check.name).Set(1)
			continue
		}

		status.Services[check.name] = "unhealthy"
		dependencyUp.WithLabelValues(check.name).Set(0)
		if check.critical {
			criticalHealthy = false
			status.Critical = append(status.Critical, check.name)
			s.logger.WithError(err).Errorf("Critical dependency %s is unhealthy", check.name)
		} else {
			status.NonCritical = append(status.NonCritical, check.name)
			s.logger.WithError(err).Warnf("Non-critical dependency %s is unhealthy", check.name)
		}
	}

	switch {
	case !criticalHealthy:
		status.Status = "unhealthy"
	case len(status.NonCritical) > 0:
		status.Status = "degraded"
	default:
		status.Status = "healthy"
	}
	status.Latency = time.Since(start)

	return status
}

// checkVisionConfig verifies the vision tier can make live calls. It is a
// configuration check, not a billable API round trip.
func (s *HealthService) checkVisionConfig(_ context.Context) error {
	if s.config.Vision.APIKey == "" {
		return fmt.Errorf("vision API key not configured")
	}
	if s.config.Vision.FullModel == "" {
		return fmt.Errorf("vision full model not configured")
	}
	return nil
}

func (s *HealthService) checkKafkaConfig(_ context.Context) error {
	if len(s.config.Kafka.Brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	return nil
}

func (s *HealthService) collectProcessStats() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	var memStats runtime.MemStats
	for range ticker.C {
		runtime.ReadMemStats(&memStats)

		processStats.WithLabelValues("memory_alloc_bytes").Set(float64(memStats.Alloc))
		processStats.WithLabelValues("memory_sys_bytes").Set(float64(memStats.Sys))
		processStats.WithLabelValues("goroutines").Set(float64(runtime.NumGoroutine()))
		processStats.WithLabelValues("gc_runs_total").Set(float64(memStats.NumGC))
	}
}

func (s *HealthService) collectPoolStats() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if s.db == nil || s.db.PG == nil {
			continue
		}
		stats := s.db.PG.Stat()
		pgPoolStats.WithLabelValues("acquired").Set(float64(stats.AcquiredConns()))
		pgPoolStats.WithLabelValues("idle").Set(float64(stats.IdleConns()))
		pgPoolStats.WithLabelValues("max").Set(float64(stats.MaxConns()))
		pgPoolStats.WithLabelValues("total").Set(float64(stats.TotalConns()))
	}
}
