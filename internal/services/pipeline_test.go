package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boomware/crosslist/pkg/models"
)

func newQueuedPipeline(t *testing.T) (*PipelineService, *JobQueueService) {
	t.Helper()
	queue, _ := newTestQueue(t)
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return &PipelineService{queue: queue, logger: logger}, queue
}

func TestRunQueued_WaitsForWorkerCompletion(t *testing.T) {
	s, queue := newQueuedPipeline(t)
	ctx := context.Background()

	go func() {
		job, err := queue.Dequeue(ctx, models.JobVisionAnalysis, 5*time.Second)
		if err != nil || job == nil {
			return
		}
		queue.Complete(ctx, job)
	}()

	err := s.runQueued(ctx, models.JobVisionAnalysis, map[string]interface{}{
		"image_paths": []string{"a.jpg"},
		"tier":        "full",
	})
	assert.NoError(t, err)
}

func TestRunQueued_SurfacesWorkerFailure(t *testing.T) {
	s, queue := newQueuedPipeline(t)
	ctx := context.Background()

	go func() {
		for {
			job, err := queue.Dequeue(ctx, models.JobMarketResearch, 5*time.Second)
			if err != nil {
				return
			}
			if job == nil {
				continue
			}
			retrying, _ := queue.Fail(ctx, job, errors.New("comps provider unreachable"))
			if !retrying {
				return
			}
		}
	}()

	err := s.runQueued(ctx, models.JobMarketResearch, map[string]interface{}{"analysis": nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "comps provider unreachable")
}

func TestRunQueued_HonorsContextCancellation(t *testing.T) {
	s, _ := newQueuedPipeline(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := s.runQueued(ctx, models.JobVisionAnalysis, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
