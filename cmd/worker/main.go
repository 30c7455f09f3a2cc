package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boomware/crosslist/internal/app"
	"github.com/boomware/crosslist/internal/config"
	"github.com/boomware/crosslist/internal/messaging"
	"github.com/boomware/crosslist/internal/services"
	"github.com/boomware/crosslist/pkg/models"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Reuse the application wiring; the worker just never serves HTTP.
	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	logger := application.Logger()
	svc := application.Services()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Worker pools per job type, each with its own concurrency and scaling.
	pools := []*services.WorkerPool{
		services.NewWorkerPool(models.JobVisionAnalysis, svc.JobQueue, svc.Pipeline.HandleJob,
			cfg.Queue.VisionConcurrency, cfg.Queue, svc.Metrics, logger),
		services.NewWorkerPool(models.JobMarketResearch, svc.JobQueue, svc.Pipeline.HandleJob,
			cfg.Queue.MarketConcurrency, cfg.Queue, svc.Metrics, logger),
		services.NewWorkerPool(models.JobListingSubmit, svc.JobQueue, svc.Pipeline.HandleJob,
			cfg.Queue.ListingConcurrency, cfg.Queue, svc.Metrics, logger),
	}
	for _, pool := range pools {
		pool.Start(ctx, cfg.Queue.MinWorkers)
	}

	// Kafka submissions feed the listing queue; the pools handle retries,
	// locking and backoff from there.
	go func() {
		err := svc.MessageBus.ConsumeMessages(ctx, func(msg messaging.SubmissionMessage) error {
			_, err := svc.JobQueue.Enqueue(ctx, models.JobListingSubmit, map[string]interface{}{
				"job_id":     msg.JobID,
				"submission": msg.Submission,
			}, msg.Priority)
			return err
		})
		if err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("Message consumer stopped")
		}
	}()

	logger.Info("Worker started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()

	for _, pool := range pools {
		pool.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Worker exited")
}
