package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boomware/crosslist/internal/config"
	"github.com/boomware/crosslist/pkg/models"
)

func newTestQueue(t *testing.T) (*JobQueueService, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := config.QueueConfig{
		MaxAttempts:   3,
		BackoffBase:   time.Millisecond,
		BackoffCap:    4 * time.Millisecond,
		VisionLockTTL: 30 * time.Second,
		MarketLockTTL: 30 * time.Second,
	}
	return NewJobQueueService(client, cfg, logger), mr
}

func TestBackoffDelay(t *testing.T) {
	base := 2 * time.Second
	cap := 32 * time.Second

	tests := []struct {
		attempts int
		expected time.Duration
	}{
		{0, 2 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 32 * time.Second},
		{6, 32 * time.Second},
		{20, 32 * time.Second},
	}

	for _, tt := range tests {
		got := BackoffDelay(tt.attempts, base, cap)
		assert.Equal(t, tt.expected, got, "attempts=%d", tt.attempts)
	}
}

func TestBackoffDelay_CapBelowBase(t *testing.T) {
	got := BackoffDelay(1, 10*time.Second, 5*time.Second)
	assert.Equal(t, 5*time.Second, got)
}

func TestQueueKeys(t *testing.T) {
	assert.Equal(t, "queue:vision_analysis", queueKey("vision_analysis"))
	assert.Equal(t, "queue:vision_analysis:delayed", delayedKey("vision_analysis"))
}

func TestEnqueueDequeue_ClaimsJob(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	queued, err := q.Enqueue(ctx, models.JobVisionAnalysis, map[string]interface{}{"image_paths": []string{"/tmp/a.jpg"}}, models.PriorityNormal)
	require.NoError(t, err)

	job, err := q.Dequeue(ctx, models.JobVisionAnalysis, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, queued.ID, job.ID)
	assert.Equal(t, models.JobProcessing, job.Status)
	assert.Equal(t, 1, job.Attempts)

	// The claim holds the processing lock and the active marker.
	assert.True(t, mr.Exists("lock:job:"+job.ID.String()))
	active, err := mr.SMembers("queue:vision_analysis:active")
	require.NoError(t, err)
	assert.Contains(t, active, job.ID.String())
}

func TestDequeue_EmptyQueueReturnsNil(t *testing.T) {
	q, _ := newTestQueue(t)

	job, err := q.Dequeue(context.Background(), models.JobVisionAnalysis, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestEnqueue_HighPriorityJumpsQueue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, models.JobListingSubmit, nil, models.PriorityNormal)
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, models.JobListingSubmit, nil, models.PriorityNormal)
	require.NoError(t, err)
	urgent, err := q.Enqueue(ctx, models.JobListingSubmit, nil, models.PriorityHigh)
	require.NoError(t, err)

	var order []string
	for i := 0; i < 3; i++ {
		job, err := q.Dequeue(ctx, models.JobListingSubmit, 100*time.Millisecond)
		require.NoError(t, err)
		require.NotNil(t, job)
		order = append(order, job.ID.String())
	}

	assert.Equal(t, []string{urgent.ID.String(), first.ID.String(), second.ID.String()}, order)
}

func TestComplete_SettlesJob(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, models.JobMarketResearch, nil, models.PriorityNormal)
	require.NoError(t, err)
	job, err := q.Dequeue(ctx, models.JobMarketResearch, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, q.Complete(ctx, job))

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, stored.Status)
	assert.False(t, mr.Exists("lock:job:"+job.ID.String()))

	stats, err := q.Stats(ctx, models.JobMarketResearch)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Zero(t, stats.Active)
}

func TestFail_ExhaustsAfterMaxAttempts(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	queued, err := q.Enqueue(ctx, models.JobVisionAnalysis, nil, models.PriorityNormal)
	require.NoError(t, err)

	// Three attempts, each failing: two retries, then permanent failure.
	for attempt := 1; attempt <= 3; attempt++ {
		var job *models.Job
		// Retries sit in the delayed zset for the backoff window; poll
		// until promotion catches up.
		require.Eventually(t, func() bool {
			job, err = q.Dequeue(ctx, models.JobVisionAnalysis, 50*time.Millisecond)
			require.NoError(t, err)
			return job != nil
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, attempt, job.Attempts)

		retrying, failErr := q.Fail(ctx, job, fmt.Errorf("vision api unavailable"))
		require.NoError(t, failErr)
		assert.Equal(t, attempt < 3, retrying)
	}

	stored, err := q.GetJob(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, stored.Status)
	assert.Equal(t, "vision api unavailable", stored.LastError)

	// Nothing left to run: no fourth attempt.
	depth, err := q.Depth(ctx, models.JobVisionAnalysis)
	require.NoError(t, err)
	assert.Zero(t, depth)

	stats, err := q.Stats(ctx, models.JobVisionAnalysis)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Failed)
}

func TestDequeue_SkipsCancelledJob(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	queued, err := q.Enqueue(ctx, models.JobVisionAnalysis, nil, models.PriorityNormal)
	require.NoError(t, err)
	require.NoError(t, q.Cancel(ctx, queued.ID))

	job, err := q.Dequeue(ctx, models.JobVisionAnalysis, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestReclaimStalled_RequeuesExpiredClaims(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	queued, err := q.Enqueue(ctx, models.JobVisionAnalysis, nil, models.PriorityNormal)
	require.NoError(t, err)
	job, err := q.Dequeue(ctx, models.JobVisionAnalysis, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)

	// Simulate a worker dying mid-job: the lock expires while the job is
	// still marked active.
	mr.FastForward(time.Minute)
	require.False(t, mr.Exists("lock:job:"+job.ID.String()))

	reclaimed, err := q.ReclaimStalled(ctx, models.JobVisionAnalysis)
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	stored, err := q.GetJob(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, stored.Status)

	requeued, err := q.Dequeue(ctx, models.JobVisionAnalysis, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, requeued)
	assert.Equal(t, queued.ID, requeued.ID)
	assert.Equal(t, 2, requeued.Attempts)
}

func TestReclaimStalled_LeavesHeldJobsAlone(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, models.JobVisionAnalysis, nil, models.PriorityNormal)
	require.NoError(t, err)
	job, err := q.Dequeue(ctx, models.JobVisionAnalysis, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)

	reclaimed, err := q.ReclaimStalled(ctx, models.JobVisionAnalysis)
	require.NoError(t, err)
	assert.Zero(t, reclaimed)

	stats, err := q.Stats(ctx, models.JobVisionAnalysis)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Active)
}
