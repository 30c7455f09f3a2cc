package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/boomware/crosslist/internal/services"
	"github.com/boomware/crosslist/pkg/models"
)

// MetricsHandler exposes the in-process operational metrics alongside the
// Prometheus scrape endpoint.
type MetricsHandler struct {
	logger           *logrus.Logger
	metricsCollector *services.MetricsCollector
	jobQueue         *services.JobQueueService
}

func NewMetricsHandler(logger *logrus.Logger, metricsCollector *services.MetricsCollector, jobQueue *services.JobQueueService) *MetricsHandler {
	return &MetricsHandler{
		logger:           logger,
		metricsCollector: metricsCollector,
		jobQueue:         jobQueue,
	}
}

// GetOperationStats returns rolling-window latency percentiles and success
// rates for every recorded operation.
func (h *MetricsHandler) GetOperationStats(c *gin.Context) {
	if h.metricsCollector == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Metrics service not available",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"operations": h.metricsCollector.AllStats(),
		"timestamp":  time.Now().UTC(),
	})
}

// GetQueueStats returns waiting/active/delayed gauges and lifetime
// completed/failed counters per job type.
func (h *MetricsHandler) GetQueueStats(c *gin.Context) {
	queues := make(map[string]*services.QueueStats)
	for _, jobType := range []models.JobType{
		models.JobVisionAnalysis,
		models.JobMarketResearch,
		models.JobListingSubmit,
	} {
		stats, err := h.jobQueue.Stats(c.Request.Context(), jobType)
		if err != nil {
			h.logger.WithError(err).WithField("job_type", jobType).Warn("Failed to read queue stats")
			continue
		}
		queues[string(jobType)] = stats
	}

	c.JSON(http.StatusOK, gin.H{
		"queues":    queues,
		"timestamp": time.Now().UTC(),
	})
}
