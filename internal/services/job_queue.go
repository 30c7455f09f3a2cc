package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/boomware/crosslist/internal/config"
	"github.com/boomware/crosslist/pkg/models"
)

// JobQueueService runs typed job queues on the hot redis tier. Each type
// has a ready list, a delayed zset scored by run-after time, and per-job
// processing locks so a crashed worker's job can be reclaimed after the
// lock expires.
type JobQueueService struct {
	redis  *redis.Client
	cfg    config.QueueConfig
	logger *logrus.Logger
}

func NewJobQueueService(redisClient *redis.Client, cfg config.QueueConfig, logger *logrus.Logger) *JobQueueService {
	return &JobQueueService{
		redis:  redisClient,
		cfg:    cfg,
		logger: logger,
	}
}

func queueKey(jobType models.JobType) string     { return "queue:" + string(jobType) }
func delayedKey(jobType models.JobType) string   { return "queue:" + string(jobType) + ":delayed" }
func activeKey(jobType models.JobType) string    { return "queue:" + string(jobType) + ":active" }
func completedKey(jobType models.JobType) string { return "queue:" + string(jobType) + ":completed" }
func failedKey(jobType models.JobType) string    { return "queue:" + string(jobType) + ":failed" }
func jobKey(id uuid.UUID) string                 { return "job:" + id.String() }
func lockKey(id uuid.UUID) string                { return "lock:job:" + id.String() }

// BackoffDelay computes the exponential retry delay for the given attempt
// count: base, 2x base, 4x base... capped.
func BackoffDelay(attempts int, base, cap time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}

// LockTTL returns how long a worker may hold a job of this type before it
// is considered stalled.
func (q *JobQueueService) LockTTL(jobType models.JobType) time.Duration {
	switch jobType {
	case models.JobVisionAnalysis:
		return q.cfg.VisionLockTTL
	case models.JobMarketResearch:
		return q.cfg.MarketLockTTL
	default:
		return q.cfg.VisionLockTTL
	}
}

// Enqueue stores the job and pushes it onto its type's ready list.
// Workers pop from the right, so high-priority jobs are pushed there to
// jump ahead of everything already waiting.
func (q *JobQueueService) Enqueue(ctx context.Context, jobType models.JobType, payload map[string]interface{}, priority models.JobPriority) (*models.Job, error) {
	if priority == "" {
		priority = models.PriorityNormal
	}
	now := time.Now()
	job := &models.Job{
		ID:          uuid.New(),
		Type:        jobType,
		Status:      models.JobQueued,
		Payload:     payload,
		Priority:    priority,
		MaxAttempts: q.cfg.MaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
		RunAfter:    now,
	}

	if err := q.storeJob(ctx, job); err != nil {
		return nil, err
	}
	push := q.redis.LPush
	if priority == models.PriorityHigh {
		push = q.redis.RPush
	}
	if err := push(ctx, queueKey(jobType), job.ID.String()).Err(); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"type":     jobType,
		"priority": priority,
	}).Debug("Job enqueued")

	return job, nil
}

// Dequeue blocks up to timeout for the next ready job, claiming it with a
// processing lock. Delayed retries whose time has come are promoted first.
func (q *JobQueueService) Dequeue(ctx context.Context, jobType models.JobType, timeout time.Duration) (*models.Job, error) {
	if err := q.promoteDelayed(ctx, jobType); err != nil {
		q.logger.WithField("error", err.Error()).Warn("Failed to promote delayed jobs")
	}

	result, err := q.redis.BRPop(ctx, timeout, queueKey(jobType)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	id, err := uuid.Parse(result[1])
	if err != nil {
		return nil, fmt.Errorf("malformed job id on queue: %w", err)
	}

	job, err := q.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil || job.Status == models.JobCancelled {
		return nil, nil
	}

	ok, err := q.redis.SetNX(ctx, lockKey(job.ID), "1", q.LockTTL(jobType)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire job lock: %w", err)
	}
	if !ok {
		// Another worker holds it; skip.
		return nil, nil
	}

	job.Status = models.JobProcessing
	job.Attempts++
	job.UpdatedAt = time.Now()
	if err := q.storeJob(ctx, job); err != nil {
		return nil, err
	}
	q.redis.SAdd(ctx, activeKey(jobType), job.ID.String())
	return job, nil
}

// RenewLock extends a processing lock for a long-running job.
func (q *JobQueueService) RenewLock(ctx context.Context, job *models.Job) error {
	return q.redis.Expire(ctx, lockKey(job.ID), q.LockTTL(job.Type)).Err()
}

// Complete marks the job done and releases its lock.
func (q *JobQueueService) Complete(ctx context.Context, job *models.Job) error {
	job.Status = models.JobCompleted
	job.UpdatedAt = time.Now()
	if err := q.storeJob(ctx, job); err != nil {
		return err
	}
	q.redis.SRem(ctx, activeKey(job.Type), job.ID.String())
	q.redis.Incr(ctx, completedKey(job.Type))
	return q.redis.Del(ctx, lockKey(job.ID)).Err()
}

// Fail records the error and either schedules a retry with exponential
// backoff or, once attempts are exhausted, marks the job failed for good.
// It reports whether the job will retry.
func (q *JobQueueService) Fail(ctx context.Context, job *models.Job, cause error) (bool, error) {
	job.LastError = cause.Error()
	job.UpdatedAt = time.Now()

	defer q.redis.Del(ctx, lockKey(job.ID))
	q.redis.SRem(ctx, activeKey(job.Type), job.ID.String())

	if job.Attempts >= job.MaxAttempts {
		job.Status = models.JobFailed
		q.redis.Incr(ctx, failedKey(job.Type))
		if err := q.storeJob(ctx, job); err != nil {
			return false, err
		}
		q.logger.WithFields(logrus.Fields{
			"job_id":   job.ID,
			"type":     job.Type,
			"attempts": job.Attempts,
			"error":    cause.Error(),
		}).Error("Job failed permanently")
		return false, nil
	}

	delay := BackoffDelay(job.Attempts, q.cfg.BackoffBase, q.cfg.BackoffCap)
	job.Status = models.JobQueued
	job.RunAfter = time.Now().Add(delay)
	if err := q.storeJob(ctx, job); err != nil {
		return false, err
	}

	score := float64(job.RunAfter.UnixMilli())
	if err := q.redis.ZAdd(ctx, delayedKey(job.Type), redis.Z{Score: score, Member: job.ID.String()}).Err(); err != nil {
		return false, fmt.Errorf("failed to schedule retry: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"type":     job.Type,
		"attempts": job.Attempts,
		"retry_in": delay.String(),
		"error":    cause.Error(),
	}).Warn("Job failed, retry scheduled")

	return true, nil
}

// ReclaimStalled requeues active jobs whose processing lock has expired,
// which happens when a worker dies mid-job without failing it. Returns how
// many jobs went back on the ready list.
func (q *JobQueueService) ReclaimStalled(ctx context.Context, jobType models.JobType) (int, error) {
	ids, err := q.redis.SMembers(ctx, activeKey(jobType)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list active jobs: %w", err)
	}

	reclaimed := 0
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			q.redis.SRem(ctx, activeKey(jobType), raw)
			continue
		}

		held, err := q.redis.Exists(ctx, lockKey(id)).Result()
		if err != nil {
			return reclaimed, fmt.Errorf("failed to check job lock: %w", err)
		}
		if held > 0 {
			continue
		}

		// Lock expired: the claim is dead either way, so drop the active
		// marker even when the job record is gone or already settled.
		q.redis.SRem(ctx, activeKey(jobType), raw)

		job, err := q.GetJob(ctx, id)
		if err != nil {
			return reclaimed, err
		}
		if job == nil || job.Terminal() {
			continue
		}

		job.Status = models.JobQueued
		job.UpdatedAt = time.Now()
		if err := q.storeJob(ctx, job); err != nil {
			return reclaimed, err
		}
		if err := q.redis.LPush(ctx, queueKey(jobType), raw).Err(); err != nil {
			return reclaimed, fmt.Errorf("failed to requeue stalled job: %w", err)
		}
		reclaimed++

		q.logger.WithFields(logrus.Fields{
			"job_id":   id,
			"type":     jobType,
			"attempts": job.Attempts,
		}).Warn("Reclaimed stalled job")
	}
	return reclaimed, nil
}

// Cancel prevents a queued job from running.
func (q *JobQueueService) Cancel(ctx context.Context, id uuid.UUID) error {
	job, err := q.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job not found")
	}
	if job.Terminal() {
		return fmt.Errorf("job already %s", job.Status)
	}
	job.Status = models.JobCancelled
	job.UpdatedAt = time.Now()
	return q.storeJob(ctx, job)
}

// Depth counts ready plus scheduled jobs for a type. The auto-scaler polls
// this to size the worker pool.
func (q *JobQueueService) Depth(ctx context.Context, jobType models.JobType) (int64, error) {
	ready, err := q.redis.LLen(ctx, queueKey(jobType)).Result()
	if err != nil {
		return 0, err
	}
	delayed, err := q.redis.ZCard(ctx, delayedKey(jobType)).Result()
	if err != nil {
		return 0, err
	}
	return ready + delayed, nil
}

// QueueStats is a point-in-time snapshot of one typed queue.
type QueueStats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Stats reads the queue's gauges and lifetime counters.
func (q *JobQueueService) Stats(ctx context.Context, jobType models.JobType) (*QueueStats, error) {
	stats := &QueueStats{}
	var err error

	if stats.Waiting, err = q.redis.LLen(ctx, queueKey(jobType)).Result(); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}
	if stats.Delayed, err = q.redis.ZCard(ctx, delayedKey(jobType)).Result(); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}
	if stats.Active, err = q.redis.SCard(ctx, activeKey(jobType)).Result(); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}
	stats.Completed, _ = q.redis.Get(ctx, completedKey(jobType)).Int64()
	stats.Failed, _ = q.redis.Get(ctx, failedKey(jobType)).Int64()

	return stats, nil
}

func (q *JobQueueService) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	data, err := q.redis.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

func (q *JobQueueService) storeJob(ctx context.Context, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	// Terminal jobs linger for a day so status queries keep working.
	ttl := 7 * 24 * time.Hour
	if job.Terminal() {
		ttl = 24 * time.Hour
	}
	if err := q.redis.Set(ctx, jobKey(job.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store job: %w", err)
	}
	return nil
}

func (q *JobQueueService) promoteDelayed(ctx context.Context, jobType models.JobType) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := q.redis.ZRangeByScore(ctx, delayedKey(jobType), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		removed, err := q.redis.ZRem(ctx, delayedKey(jobType), id).Result()
		if err != nil {
			return err
		}
		// Only the remover pushes, so concurrent workers can't double-
		// promote the same job.
		if removed > 0 {
			if err := q.redis.LPush(ctx, queueKey(jobType), id).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}
