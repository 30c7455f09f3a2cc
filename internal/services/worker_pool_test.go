package services

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boomware/crosslist/internal/config"
	"github.com/boomware/crosslist/pkg/models"
)

func TestAutoScaler_Desired(t *testing.T) {
	scaler := AutoScaler{
		Min:            1,
		Max:            5,
		ScaleUpDepth:   10,
		ScaleDownDepth: 2,
	}

	tests := []struct {
		name    string
		current int
		depth   int64
		want    int
	}{
		{"below minimum snaps to minimum", 0, 0, 1},
		{"deep backlog adds one worker", 2, 50, 3},
		{"depth at threshold scales up", 2, 10, 3},
		{"at max stays at max", 5, 100, 5},
		{"drained queue sheds one worker", 3, 0, 2},
		{"depth at low threshold scales down", 3, 2, 2},
		{"at min stays at min", 1, 0, 1},
		{"steady depth holds", 3, 5, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scaler.Desired(tt.current, tt.depth))
		})
	}
}

func TestAutoScaler_OneStepAtATime(t *testing.T) {
	scaler := AutoScaler{Min: 1, Max: 10, ScaleUpDepth: 5, ScaleDownDepth: 0}

	// A huge backlog still only adds one worker per interval.
	assert.Equal(t, 2, scaler.Desired(1, 10000))
	assert.Equal(t, 3, scaler.Desired(2, 10000))
}

func TestWorkerPool_StopWaitsForInflightJob(t *testing.T) {
	queue, _ := newTestQueue(t)
	ctx := context.Background()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	started := make(chan struct{})
	release := make(chan struct{})
	var handlerCtxErr error
	handler := func(hctx context.Context, job *models.Job) error {
		close(started)
		<-release
		handlerCtxErr = hctx.Err()
		return nil
	}

	cfg := config.QueueConfig{
		MinWorkers:    1,
		MaxWorkers:    1,
		ShutdownGrace: 5 * time.Second,
		VisionLockTTL: 30 * time.Second,
	}
	pool := NewWorkerPool(models.JobVisionAnalysis, queue, handler, 1, cfg, nil, logger)
	pool.Start(ctx, 1)

	job, err := queue.Enqueue(ctx, models.JobVisionAnalysis, nil, models.PriorityNormal)
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never picked up the job")
	}

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()

	// Give Stop time to cancel the workers before letting the handler run
	// to completion. Its context must still be live at that point.
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the handler finished")
	}

	assert.NoError(t, handlerCtxErr, "shutdown aborted an in-flight handler")

	stored, err := queue.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, stored.Status)
}
