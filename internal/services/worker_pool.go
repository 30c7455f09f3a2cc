package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/boomware/crosslist/internal/config"
	"github.com/boomware/crosslist/pkg/models"
)

// JobHandler processes one claimed job. Returning an error sends the job
// through the queue's retry path.
type JobHandler func(ctx context.Context, job *models.Job) error

// AutoScaler decides the worker count from observed queue depth. It is a
// pure function of its inputs so scaling policy is testable without
// goroutines or timers.
type AutoScaler struct {
	Min            int
	Max            int
	ScaleUpDepth   int
	ScaleDownDepth int
}

// Desired returns the next worker count given the current count and depth.
// Scaling moves one worker at a time in either direction.
func (a AutoScaler) Desired(current int, depth int64) int {
	if current < a.Min {
		return a.Min
	}
	if depth >= int64(a.ScaleUpDepth) && current < a.Max {
		return current + 1
	}
	if depth <= int64(a.ScaleDownDepth) && current > a.Min {
		return current - 1
	}
	return current
}

// WorkerPool drains one job type's queue with a dynamic number of workers.
// Scale-down is graceful: a retiring worker finishes the job it holds
// before exiting.
type WorkerPool struct {
	jobType models.JobType
	queue   *JobQueueService
	handler JobHandler
	scaler  AutoScaler
	metrics *MetricsCollector
	cfg     config.QueueConfig
	logger  *logrus.Logger

	// forceCtx aborts in-flight handlers when the shutdown grace period
	// runs out; worker cancellation alone never reaches a running job.
	forceCtx    context.Context
	forceCancel context.CancelFunc

	mu          sync.Mutex
	cancels     map[int]context.CancelFunc
	nextID      int
	scaleCancel context.CancelFunc
	wg          sync.WaitGroup
}

func NewWorkerPool(jobType models.JobType, queue *JobQueueService, handler JobHandler, concurrency int, cfg config.QueueConfig, metrics *MetricsCollector, logger *logrus.Logger) *WorkerPool {
	if concurrency < 1 {
		concurrency = 1
	}
	minWorkers := cfg.MinWorkers
	if minWorkers < 1 {
		minWorkers = 1
	}
	maxWorkers := cfg.MaxWorkers
	if maxWorkers < concurrency {
		maxWorkers = concurrency
	}
	forceCtx, forceCancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobType:     jobType,
		queue:       queue,
		handler:     handler,
		forceCtx:    forceCtx,
		forceCancel: forceCancel,
		scaler: AutoScaler{
			Min:            minWorkers,
			Max:            maxWorkers,
			ScaleUpDepth:   cfg.ScaleUpDepth,
			ScaleDownDepth: cfg.ScaleDownDepth,
		},
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
		cancels: make(map[int]context.CancelFunc),
	}
}

// Start launches the initial workers and the auto-scale loop, then returns.
func (p *WorkerPool) Start(ctx context.Context, initial int) {
	if initial < p.scaler.Min {
		initial = p.scaler.Min
	}
	for i := 0; i < initial; i++ {
		p.addWorker(ctx)
	}

	scaleCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.scaleCancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go p.autoscale(scaleCtx)

	p.logger.WithFields(logrus.Fields{
		"type":    p.jobType,
		"workers": initial,
	}).Info("Worker pool started")
}

// Stop cancels every worker and waits for in-flight jobs to finish. Jobs
// still running when the shutdown grace period elapses are aborted; the
// queue's lock expiry hands them to another worker later.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.scaleCancel != nil {
		p.scaleCancel()
		p.scaleCancel = nil
	}
	for id, cancel := range p.cancels {
		cancel()
		delete(p.cancels, id)
	}
	p.mu.Unlock()

	grace := p.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		p.logger.WithField("type", p.jobType).Warn("Shutdown grace elapsed, aborting in-flight jobs")
		p.forceCancel()
		<-done
	}
	p.logger.WithField("type", p.jobType).Info("Worker pool stopped")
}

// WorkerCount reports the current pool size.
func (p *WorkerPool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cancels)
}

func (p *WorkerPool) addWorker(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.cancels[id] = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go p.runWorker(workerCtx, id)
}

func (p *WorkerPool) removeWorker() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, cancel := range p.cancels {
		cancel()
		delete(p.cancels, id)
		return
	}
}

func (p *WorkerPool) autoscale(ctx context.Context) {
	defer p.wg.Done()

	interval := p.cfg.AutoscaleInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if reclaimed, err := p.queue.ReclaimStalled(ctx, p.jobType); err != nil {
				p.logger.WithFields(logrus.Fields{
					"type":  p.jobType,
					"error": err.Error(),
				}).Warn("Failed to reclaim stalled jobs")
			} else if reclaimed > 0 {
				p.logger.WithFields(logrus.Fields{
					"type":      p.jobType,
					"reclaimed": reclaimed,
				}).Info("Requeued stalled jobs")
			}

			depth, err := p.queue.Depth(ctx, p.jobType)
			if err != nil {
				p.logger.WithFields(logrus.Fields{
					"type":  p.jobType,
					"error": err.Error(),
				}).Warn("Failed to read queue depth")
				continue
			}

			current := p.WorkerCount()
			desired := p.scaler.Desired(current, depth)

			if p.metrics != nil {
				p.metrics.SetQueueDepth(p.jobType, depth)
				p.metrics.SetWorkerCount(p.jobType, desired)
			}

			switch {
			case desired > current:
				p.addWorker(ctx)
				p.logger.WithFields(logrus.Fields{
					"type":    p.jobType,
					"depth":   depth,
					"workers": desired,
				}).Info("Scaled up worker pool")
			case desired < current:
				p.removeWorker()
				p.logger.WithFields(logrus.Fields{
					"type":    p.jobType,
					"depth":   depth,
					"workers": desired,
				}).Info("Scaled down worker pool")
			}
		}
	}
}

func (p *WorkerPool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()

	log := p.logger.WithFields(logrus.Fields{
		"type":   p.jobType,
		"worker": id,
	})

	for {
		// Cancellation is only honored between jobs so a claimed job
		// always runs to completion or retry.
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, p.jobType, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithField("error", err.Error()).Warn("Dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		p.processJob(ctx, job, log)
	}
}

func (p *WorkerPool) processJob(ctx context.Context, job *models.Job, log *logrus.Entry) {
	// The handler is shielded from worker cancellation so scale-down and
	// ordinary shutdown never abort a claimed job mid-flight. Only the
	// pool's force context, fired when the grace period runs out, can
	// still cancel it.
	jobCtx, finish := context.WithCancel(context.WithoutCancel(ctx))
	defer finish()
	stop := context.AfterFunc(p.forceCtx, finish)
	defer stop()

	go p.renewLock(jobCtx, job)

	start := time.Now()
	err := p.handler(jobCtx, job)
	duration := time.Since(start)

	if p.metrics != nil {
		p.metrics.RecordOperation("job_"+string(p.jobType), duration, err == nil)
	}

	if err != nil {
		retrying, failErr := p.queue.Fail(context.Background(), job, err)
		if failErr != nil {
			log.WithField("error", failErr.Error()).Error("Failed to record job failure")
		}
		if p.metrics != nil && !retrying {
			p.metrics.RecordJob(p.jobType, models.JobFailed)
		}
		return
	}

	if err := p.queue.Complete(context.Background(), job); err != nil {
		log.WithField("error", err.Error()).Error("Failed to mark job complete")
		return
	}
	if p.metrics != nil {
		p.metrics.RecordJob(p.jobType, models.JobCompleted)
	}
}

func (p *WorkerPool) renewLock(ctx context.Context, job *models.Job) {
	interval := p.cfg.VisionLockRenew
	if job.Type == models.JobMarketResearch {
		interval = p.cfg.MarketLockRenew
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.queue.RenewLock(ctx, job); err != nil && ctx.Err() == nil {
				p.logger.WithFields(logrus.Fields{
					"job_id": job.ID,
					"error":  err.Error(),
				}).Warn("Failed to renew job lock")
			}
		}
	}
}
