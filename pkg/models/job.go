package models

import (
	"time"

	"github.com/google/uuid"
)

// JobType names the queue a job runs on.
type JobType string

const (
	JobVisionAnalysis JobType = "vision_analysis"
	JobMarketResearch JobType = "market_research"
	JobListingSubmit  JobType = "listing_submit"
)

// JobPriority orders jobs within a queue. High-priority jobs go to the
// front of the ready list and dequeue ahead of everything already waiting.
type JobPriority string

const (
	PriorityNormal JobPriority = "normal"
	PriorityHigh   JobPriority = "high"
)

// JobStatus is the lifecycle of a queued job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Job is the unit of work carried on the redis queues. Payload is
// type-specific and stays opaque to the queue itself.
type Job struct {
	ID          uuid.UUID              `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	Priority    JobPriority            `json:"priority,omitempty"`
	Attempts    int                    `json:"attempts"`
	MaxAttempts int                    `json:"maxAttempts"`
	LastError   string                 `json:"lastError,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
	RunAfter    time.Time              `json:"runAfter"`
}

// Terminal reports whether the job will not run again.
func (j *Job) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed || j.Status == JobCancelled
}

// SubmissionRequest is the API payload that kicks off the full pipeline
// for one item.
type SubmissionRequest struct {
	ImagePaths    []string       `json:"imagePaths" validate:"required,min=1"`
	AcquiredPrice float64        `json:"acquiredPrice" validate:"gte=0"`
	AcquiredFrom  string         `json:"acquiredFrom,omitempty"`
	Platforms     []Platform     `json:"platforms" validate:"required,min=1"`
	Pricing       PricingOptions `json:"pricing"`
	Priority      JobPriority    `json:"priority,omitempty" validate:"omitempty,oneof=normal high"`
}

// PipelineStage names the ordered phases of a submission.
type PipelineStage string

const (
	StageImageProcessing PipelineStage = "image_processing"
	StageVisionAnalysis  PipelineStage = "vision_analysis"
	StageMarketResearch  PipelineStage = "market_research"
	StagePricing         PipelineStage = "pricing"
	StageInventory       PipelineStage = "inventory"
	StageListing         PipelineStage = "listing"
)

// PipelineProgress is the job-status view returned by the API, tracking the
// item through every stage with per-stage timings.
type PipelineProgress struct {
	JobID        uuid.UUID               `json:"jobId"`
	Status       JobStatus               `json:"status"`
	CurrentStage PipelineStage           `json:"currentStage,omitempty"`
	InventoryID  *uuid.UUID              `json:"inventoryId,omitempty"`
	StageTimings map[PipelineStage]int64 `json:"stageTimings,omitempty"`
	Results      []ListingResult         `json:"results,omitempty"`
	ErrorMessage *string                 `json:"errorMessage,omitempty"`
	CreatedAt    time.Time               `json:"createdAt"`
	UpdatedAt    time.Time               `json:"updatedAt"`
}
