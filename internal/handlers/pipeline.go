package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/boomware/crosslist/internal/messaging"
	"github.com/boomware/crosslist/internal/services"
	"github.com/boomware/crosslist/pkg/models"
)

type PipelineHandler struct {
	pipeline   *services.PipelineService
	messageBus *messaging.MessageBus
	validator  *validator.Validate
	logger     *logrus.Logger
}

type SubmissionResponse struct {
	JobID   uuid.UUID `json:"job_id"`
	Status  string    `json:"status"`
	Message string    `json:"message"`
}

func NewPipelineHandler(pipeline *services.PipelineService, messageBus *messaging.MessageBus, logger *logrus.Logger) *PipelineHandler {
	return &PipelineHandler{
		pipeline:   pipeline,
		messageBus: messageBus,
		validator:  validator.New(),
		logger:     logger,
	}
}

// Submit accepts a new item submission and queues it for the worker fleet.
func (h *PipelineHandler) Submit(c *gin.Context) {
	var request models.SubmissionRequest

	if err := c.ShouldBindJSON(&request); err != nil {
		h.logger.WithError(err).Warn("Invalid JSON in submission request")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_JSON",
				"message": "Invalid JSON format",
				"details": err.Error(),
			},
		})
		return
	}

	if err := h.validator.Struct(&request); err != nil {
		h.logger.WithError(err).Warn("Submission validation failed")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Submission validation failed",
				"details": err.Error(),
			},
		})
		return
	}

	progress, err := h.pipeline.CreateSubmission(c.Request.Context(), &request)
	if err != nil {
		h.logger.WithError(err).Warn("Submission rejected")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_SUBMISSION",
				"message": err.Error(),
			},
		})
		return
	}

	if err := h.messageBus.PublishSubmission(progress.JobID, request); err != nil {
		h.logger.WithError(err).WithField("job_id", progress.JobID).Error("Failed to publish submission to message bus")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "PROCESSING_QUEUE_FAILED",
				"message": "Failed to queue submission for processing",
			},
		})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"job_id":    progress.JobID,
		"images":    len(request.ImagePaths),
		"platforms": len(request.Platforms),
	}).Info("Submission queued for processing")

	c.JSON(http.StatusAccepted, SubmissionResponse{
		JobID:   progress.JobID,
		Status:  string(progress.Status),
		Message: "Submission queued for processing",
	})
}

// GetJob reports a pipeline job's stage-by-stage progress.
func (h *PipelineHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("jobId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_JOB_ID",
				"message": "Job id must be a UUID",
			},
		})
		return
	}

	progress, err := h.pipeline.GetProgress(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "Pipeline job not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job":       progress,
		"timestamp": time.Now().UTC(),
	})
}
