package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/boomware/crosslist/pkg/models"
)

// Completed pipeline records stay queryable this long.
const progressTTL = 7 * 24 * time.Hour

// PipelineService drives a submission through every stage: image cleanup,
// vision analysis, market research, pricing, inventory persistence and
// platform listing. Progress is tracked per stage in redis so the API can
// report where a job is while workers grind through it.
type PipelineService struct {
	images    *ImageProcessorService
	vision    *VisionAgentService
	market    *MarketIntelService
	pricer    *PriceOptimizerService
	inventory *InventoryService
	executor  *ListingExecutorService
	metrics   *MetricsCollector
	queue     *JobQueueService
	redis     *redis.Client
	logger    *logrus.Logger
}

// NewPipelineService wires the stage services together. A nil queue runs
// the vision and market stages inline instead of dispatching them to the
// stage worker pools.
func NewPipelineService(
	images *ImageProcessorService,
	vision *VisionAgentService,
	market *MarketIntelService,
	pricer *PriceOptimizerService,
	inventory *InventoryService,
	executor *ListingExecutorService,
	metrics *MetricsCollector,
	queue *JobQueueService,
	redisClient *redis.Client,
	logger *logrus.Logger,
) *PipelineService {
	return &PipelineService{
		images:    images,
		vision:    vision,
		market:    market,
		pricer:    pricer,
		inventory: inventory,
		executor:  executor,
		metrics:   metrics,
		queue:     queue,
		redis:     redisClient,
		logger:    logger,
	}
}

func progressKey(jobID uuid.UUID) string {
	return "pipeline:" + jobID.String()
}

// CreateSubmission validates the request and registers a queued pipeline
// job. The caller is responsible for putting the submission on the bus.
func (s *PipelineService) CreateSubmission(ctx context.Context, req *models.SubmissionRequest) (*models.PipelineProgress, error) {
	if len(req.ImagePaths) == 0 {
		return nil, fmt.Errorf("at least one image is required")
	}
	if len(req.Platforms) == 0 {
		return nil, fmt.Errorf("at least one platform is required")
	}
	for _, p := range req.Platforms {
		if !p.Valid() {
			return nil, fmt.Errorf("unknown platform: %q", p)
		}
	}

	now := time.Now()
	progress := &models.PipelineProgress{
		JobID:        uuid.New(),
		Status:       models.JobQueued,
		StageTimings: make(map[models.PipelineStage]int64),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.saveProgress(ctx, progress); err != nil {
		return nil, err
	}
	return progress, nil
}

// GetProgress loads a pipeline job's current state.
func (s *PipelineService) GetProgress(ctx context.Context, jobID uuid.UUID) (*models.PipelineProgress, error) {
	data, err := s.redis.Get(ctx, progressKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("pipeline job not found")
		}
		return nil, fmt.Errorf("failed to load pipeline progress: %w", err)
	}
	var progress models.PipelineProgress
	if err := json.Unmarshal(data, &progress); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline progress: %w", err)
	}
	return &progress, nil
}

// Process runs the submission end to end, recording stage timings and the
// final listing results.
func (s *PipelineService) Process(ctx context.Context, jobID uuid.UUID, req *models.SubmissionRequest) error {
	progress, err := s.GetProgress(ctx, jobID)
	if err != nil {
		return err
	}
	progress.Status = models.JobProcessing

	fail := func(stage models.PipelineStage, err error) error {
		msg := err.Error()
		progress.Status = models.JobFailed
		progress.CurrentStage = stage
		progress.ErrorMessage = &msg
		progress.UpdatedAt = time.Now()
		if saveErr := s.saveProgress(ctx, progress); saveErr != nil {
			s.logger.WithField("error", saveErr.Error()).Error("Failed to persist pipeline failure")
		}
		s.logger.WithFields(logrus.Fields{
			"job_id": jobID,
			"stage":  stage,
			"error":  msg,
		}).Error("Pipeline failed")
		return err
	}

	// Image processing
	processed, err := runStage(ctx, s, progress, models.StageImageProcessing, func() ([]string, error) {
		return s.images.ProcessGallery(ctx, req.ImagePaths, DefaultGalleryOptions())
	})
	if err != nil {
		return fail(models.StageImageProcessing, err)
	}

	// Vision analysis runs on its own worker pool; the result lands in
	// the shared cache, so reading it back here is a cache hit.
	analysis, err := runStage(ctx, s, progress, models.StageVisionAnalysis, func() (*models.ProductAnalysis, error) {
		if s.queue != nil {
			if err := s.runQueued(ctx, models.JobVisionAnalysis, map[string]interface{}{
				"image_paths": processed,
				"tier":        string(TierFull),
			}); err != nil {
				return nil, err
			}
		}
		return s.vision.AnalyzeProduct(ctx, processed, TierFull)
	})
	if err != nil {
		return fail(models.StageVisionAnalysis, err)
	}

	// Market research is best-effort: pricing falls back to the vision
	// estimate when no comps come back.
	market, _ := runStage(ctx, s, progress, models.StageMarketResearch, func() (*models.MarketData, error) {
		if s.queue != nil {
			if err := s.runQueued(ctx, models.JobMarketResearch, map[string]interface{}{
				"analysis": analysis,
			}); err != nil {
				return nil, err
			}
		}
		return s.market.Research(ctx, analysis)
	})

	// Pricing
	strategy, err := runStage(ctx, s, progress, models.StagePricing, func() (*models.PricingStrategy, error) {
		return s.pricer.Optimize(ctx, analysis, market, req.Pricing)
	})
	if err != nil {
		return fail(models.StagePricing, err)
	}

	// Inventory
	item, err := runStage(ctx, s, progress, models.StageInventory, func() (*models.InventoryItem, error) {
		item := &models.InventoryItem{
			Analysis:      analysis,
			ImagePaths:    processed,
			AcquiredPrice: req.AcquiredPrice,
			AcquiredFrom:  req.AcquiredFrom,
		}
		if err := s.inventory.AddItem(ctx, item, false); err != nil {
			return nil, err
		}
		return item, nil
	})
	if err != nil {
		return fail(models.StageInventory, err)
	}
	progress.InventoryID = &item.ID

	// Listing
	report, err := runStage(ctx, s, progress, models.StageListing, func() (*models.ExecutionReport, error) {
		return s.executor.Execute(ctx, item, strategy, req.Platforms)
	})
	if err != nil {
		return fail(models.StageListing, err)
	}

	for _, result := range report.Results {
		s.metrics.RecordListing(result.Platform, result.Success)
	}

	progress.Status = models.JobCompleted
	progress.CurrentStage = ""
	progress.Results = report.Results
	progress.UpdatedAt = time.Now()
	if err := s.saveProgress(ctx, progress); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"job_id":       jobID,
		"inventory_id": item.ID,
		"succeeded":    report.Succeeded,
		"failed":       report.Failed,
	}).Info("Pipeline completed")

	return nil
}

// HandleJob dispatches a queued job to the stage it belongs to. Submission
// jobs run the full pipeline; vision and market jobs re-run a single stage,
// which warms the shared caches for later submissions.
func (s *PipelineService) HandleJob(ctx context.Context, job *models.Job) error {
	switch job.Type {
	case models.JobListingSubmit:
		var payload struct {
			JobID      uuid.UUID                `json:"job_id"`
			Submission models.SubmissionRequest `json:"submission"`
		}
		if err := decodePayload(job.Payload, &payload); err != nil {
			return fmt.Errorf("invalid submission payload: %w", err)
		}
		return s.Process(ctx, payload.JobID, &payload.Submission)

	case models.JobVisionAnalysis:
		var payload struct {
			ImagePaths []string `json:"image_paths"`
			Tier       string   `json:"tier"`
		}
		if err := decodePayload(job.Payload, &payload); err != nil {
			return fmt.Errorf("invalid vision payload: %w", err)
		}
		tier := TierFull
		if payload.Tier == string(TierLite) {
			tier = TierLite
		}
		_, err := s.vision.AnalyzeProduct(ctx, payload.ImagePaths, tier)
		return err

	case models.JobMarketResearch:
		var payload struct {
			Analysis *models.ProductAnalysis `json:"analysis"`
		}
		if err := decodePayload(job.Payload, &payload); err != nil {
			return fmt.Errorf("invalid market payload: %w", err)
		}
		if payload.Analysis == nil {
			return fmt.Errorf("market research job missing analysis")
		}
		_, err := s.market.Research(ctx, payload.Analysis)
		return err

	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// runQueued dispatches a stage job to its worker pool and waits for it to
// settle. Retries stay inside the queue; this only sees the final status.
func (s *PipelineService) runQueued(ctx context.Context, jobType models.JobType, payload map[string]interface{}) error {
	job, err := s.queue.Enqueue(ctx, jobType, payload, models.PriorityNormal)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			current, err := s.queue.GetJob(ctx, job.ID)
			if err != nil {
				return fmt.Errorf("failed to track %s job: %w", jobType, err)
			}
			if current == nil {
				return fmt.Errorf("%s job %s disappeared from the queue", jobType, job.ID)
			}
			if !current.Terminal() {
				continue
			}
			if current.Status != models.JobCompleted {
				if current.LastError != "" {
					return fmt.Errorf("%s job failed: %s", jobType, current.LastError)
				}
				return fmt.Errorf("%s job ended with status %s", jobType, current.Status)
			}
			return nil
		}
	}
}

func decodePayload(payload map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// runStage executes one pipeline stage, advancing the progress record and
// capturing its duration in the stage timings, the metrics window and the
// operation log.
func runStage[T any](ctx context.Context, s *PipelineService, progress *models.PipelineProgress, stage models.PipelineStage, fn func() (T, error)) (T, error) {
	progress.CurrentStage = stage
	progress.UpdatedAt = time.Now()
	if err := s.saveProgress(ctx, progress); err != nil {
		s.logger.WithField("error", err.Error()).Warn("Failed to persist stage transition")
	}

	start := time.Now()
	result, err := fn()
	duration := time.Since(start)

	progress.StageTimings[stage] = duration.Milliseconds()
	s.metrics.RecordOperation(string(stage), duration, err == nil)

	entry := &models.OperationLog{
		JobID:       progress.JobID.String(),
		InventoryID: progress.InventoryID,
		Stage:       string(stage),
		Success:     err == nil,
		DurationMs:  duration.Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.inventory.LogOperation(ctx, entry)

	return result, err
}

func (s *PipelineService) saveProgress(ctx context.Context, progress *models.PipelineProgress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to encode pipeline progress: %w", err)
	}
	if err := s.redis.Set(ctx, progressKey(progress.JobID), data, progressTTL).Err(); err != nil {
		return fmt.Errorf("failed to store pipeline progress: %w", err)
	}
	return nil
}
