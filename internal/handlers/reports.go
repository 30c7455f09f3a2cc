package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/boomware/crosslist/internal/services"
)

// ReportsHandler serves the sales, platform and operation reports.
type ReportsHandler struct {
	inventory *services.InventoryService
	metrics   *services.MetricsCollector
	logger    *logrus.Logger
}

func NewReportsHandler(inventory *services.InventoryService, metrics *services.MetricsCollector, logger *logrus.Logger) *ReportsHandler {
	return &ReportsHandler{
		inventory: inventory,
		metrics:   metrics,
		logger:    logger,
	}
}

// Sales aggregates realized sales over a date range, defaulting to the
// last 30 days.
func (h *ReportsHandler) Sales(c *gin.Context) {
	startStr := c.DefaultQuery("start_date", time.Now().AddDate(0, 0, -30).Format("2006-01-02"))
	endStr := c.DefaultQuery("end_date", time.Now().Format("2006-01-02"))

	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid start_date format. Use YYYY-MM-DD",
		})
		return
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid end_date format. Use YYYY-MM-DD",
		})
		return
	}
	end = end.Add(24 * time.Hour)

	report, err := h.inventory.SalesReport(c.Request.Context(), start, end)
	if err != nil {
		h.logger.WithError(err).Error("Failed to build sales report")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to build sales report",
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

// Platforms returns per-marketplace listing aggregates.
func (h *ReportsHandler) Platforms(c *gin.Context) {
	metrics, err := h.inventory.PlatformMetrics(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load platform metrics")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load platform metrics",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"platforms": metrics,
		"timestamp": time.Now().UTC(),
	})
}

// Operations returns the rolling-window latency and success stats for the
// pipeline stages.
func (h *ReportsHandler) Operations(c *gin.Context) {
	if op := c.Query("operation"); op != "" {
		c.JSON(http.StatusOK, h.metrics.Stats(op))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"operations": h.metrics.AllStats(),
		"window":     "1h",
		"timestamp":  time.Now().UTC(),
	})
}
