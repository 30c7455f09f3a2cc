package services

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/boomware/crosslist/pkg/models"
)

// Latency percentiles are computed over samples no older than this.
const metricsWindow = time.Hour

type operationSample struct {
	at         time.Time
	durationMs float64
	success    bool
}

// Registered once at package init so building multiple collectors is safe.
var (
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crosslist_operation_duration_seconds",
		Help:    "Duration of pipeline operations",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"operation", "success"})

	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crosslist_jobs_processed_total",
		Help: "Queue jobs processed by type and outcome",
	}, []string{"type", "status"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crosslist_queue_depth",
		Help: "Ready plus scheduled jobs per queue",
	}, []string{"type"})

	workerCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crosslist_worker_count",
		Help: "Active workers per queue",
	}, []string{"type"})

	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crosslist_cache_requests_total",
		Help: "Cache lookups by cache name and result",
	}, []string{"cache", "result"})

	listingResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crosslist_listing_results_total",
		Help: "Listing submissions by platform and outcome",
	}, []string{"platform", "outcome"})

	visionTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crosslist_vision_tokens_total",
		Help: "Vision API tokens consumed by tier and direction",
	}, []string{"tier", "direction"})

	visionCost = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crosslist_vision_cost_dollars_total",
		Help: "Estimated vision API spend by tier",
	}, []string{"tier"})
)

// MetricsCollector tracks pipeline operation outcomes two ways: prometheus
// series for scraping, and an in-memory one-hour rolling window for the
// percentile stats the reports API serves.
type MetricsCollector struct {
	logger *logrus.Logger

	mu      sync.RWMutex
	samples map[string][]operationSample
	now     func() time.Time
}

func NewMetricsCollector(logger *logrus.Logger) *MetricsCollector {
	return &MetricsCollector{
		logger:  logger,
		samples: make(map[string][]operationSample),
		now:     time.Now,
	}
}

func (m *MetricsCollector) RecordOperation(operation string, duration time.Duration, success bool) {
	label := "false"
	if success {
		label = "true"
	}
	operationDuration.WithLabelValues(operation, label).Observe(duration.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[operation] = append(m.samples[operation], operationSample{
		at:         m.now(),
		durationMs: float64(duration.Milliseconds()),
		success:    success,
	})
}

func (m *MetricsCollector) RecordJob(jobType models.JobType, status models.JobStatus) {
	jobsProcessed.WithLabelValues(string(jobType), string(status)).Inc()
}

func (m *MetricsCollector) SetQueueDepth(jobType models.JobType, depth int64) {
	queueDepth.WithLabelValues(string(jobType)).Set(float64(depth))
}

func (m *MetricsCollector) SetWorkerCount(jobType models.JobType, count int) {
	workerCount.WithLabelValues(string(jobType)).Set(float64(count))
}

func (m *MetricsCollector) RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheRequests.WithLabelValues(cache, result).Inc()
}

// RecordVisionUsage tracks token consumption and estimated spend per
// analysis tier.
func (m *MetricsCollector) RecordVisionUsage(tier string, inputTokens, outputTokens int, cost float64) {
	visionTokens.WithLabelValues(tier, "input").Add(float64(inputTokens))
	visionTokens.WithLabelValues(tier, "output").Add(float64(outputTokens))
	visionCost.WithLabelValues(tier).Add(cost)
}

func (m *MetricsCollector) RecordListing(platform models.Platform, success bool) {
	outcome := "failed"
	if success {
		outcome = "succeeded"
	}
	listingResults.WithLabelValues(string(platform), outcome).Inc()
}

// Stats summarizes the rolling window for one operation.
func (m *MetricsCollector) Stats(operation string) models.OperationStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	samples := m.prune(operation)
	stats := models.OperationStats{Operation: operation}
	if len(samples) == 0 {
		return stats
	}

	durations := make([]float64, 0, len(samples))
	var total float64
	for _, s := range samples {
		stats.Count++
		if s.success {
			stats.SuccessCount++
		} else {
			stats.ErrorCount++
		}
		durations = append(durations, s.durationMs)
		total += s.durationMs
	}
	sort.Float64s(durations)

	stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.Count)
	stats.AvgMs = total / float64(stats.Count)
	stats.P50Ms = stat.Quantile(0.50, stat.Empirical, durations, nil)
	stats.P95Ms = stat.Quantile(0.95, stat.Empirical, durations, nil)
	stats.P99Ms = stat.Quantile(0.99, stat.Empirical, durations, nil)
	return stats
}

// AllStats returns the rolling window summary for every tracked operation.
func (m *MetricsCollector) AllStats() []models.OperationStats {
	m.mu.RLock()
	operations := make([]string, 0, len(m.samples))
	for op := range m.samples {
		operations = append(operations, op)
	}
	m.mu.RUnlock()
	sort.Strings(operations)

	all := make([]models.OperationStats, 0, len(operations))
	for _, op := range operations {
		all = append(all, m.Stats(op))
	}
	return all
}

// prune drops expired samples; callers must hold the write lock.
func (m *MetricsCollector) prune(operation string) []operationSample {
	cutoff := m.now().Add(-metricsWindow)
	samples := m.samples[operation]
	keep := samples[:0]
	for _, s := range samples {
		if s.at.After(cutoff) {
			keep = append(keep, s)
		}
	}
	if len(keep) == 0 {
		delete(m.samples, operation)
		return nil
	}
	m.samples[operation] = keep
	return keep
}
