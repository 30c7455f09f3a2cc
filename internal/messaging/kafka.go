package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/boomware/crosslist/internal/config"
	"github.com/boomware/crosslist/pkg/models"
)

const (
	ListingSubmissionsTopic    = "listing-submissions"
	ListingSubmissionsDLQTopic = "listing-submissions-dlq"
	ConsumerGroup              = "submission-processors"
)

// SubmissionMessage carries one pipeline submission from the API to the
// worker fleet.
type SubmissionMessage struct {
	JobID      uuid.UUID                `json:"job_id"`
	Submission models.SubmissionRequest `json:"submission"`
	Priority   models.JobPriority       `json:"priority,omitempty"`
	Timestamp  time.Time                `json:"timestamp"`
	RetryCount int                      `json:"retry_count"`
	Hints      map[string]interface{}   `json:"hints,omitempty"`
}

type KafkaProducer struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

type KafkaConsumer struct {
	reader *kafka.Reader
	logger *logrus.Logger
}

type MessageBus struct {
	producer  *KafkaProducer
	consumer  *KafkaConsumer
	dlqWriter *kafka.Writer
	logger    *logrus.Logger
}

func NewMessageBus(cfg *config.Config, logger *logrus.Logger) (*MessageBus, error) {
	topic := cfg.Kafka.Topics.ListingSubmissions
	if topic == "" {
		topic = ListingSubmissionsTopic
	}
	dlqTopic := cfg.Kafka.Topics.DeadLetter
	if dlqTopic == "" {
		dlqTopic = ListingSubmissionsDLQTopic
	}

	// Create producer
	producer := &KafkaProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // Key by job id so retries land on the same partition
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		},
		logger: logger,
	}

	// Create consumer
	consumer := &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          topic,
			GroupID:        ConsumerGroup,
			MinBytes:       10e3, // 10KB
			MaxBytes:       10e6, // 10MB
			CommitInterval: time.Second,
			StartOffset:    kafka.LastOffset,
		}),
		logger: logger,
	}

	// Create DLQ writer
	dlqWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        dlqTopic,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &MessageBus{
		producer:  producer,
		consumer:  consumer,
		dlqWriter: dlqWriter,
		logger:    logger,
	}, nil
}

// PublishSubmission puts a validated submission on the bus for the worker
// fleet to pick up.
func (mb *MessageBus) PublishSubmission(jobID uuid.UUID, submission models.SubmissionRequest) error {
	message := SubmissionMessage{
		JobID:      jobID,
		Submission: submission,
		Priority:   submission.Priority,
		Timestamp:  time.Now(),
		RetryCount: 0,
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	kafkaMessage := kafka.Message{
		Key:   []byte(jobID.String()),
		Value: messageBytes,
		Headers: []kafka.Header{
			{Key: "job_id", Value: []byte(jobID.String())},
			{Key: "timestamp", Value: []byte(message.Timestamp.Format(time.RFC3339))},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mb.producer.writer.WriteMessages(ctx, kafkaMessage); err != nil {
		mb.logger.WithError(err).WithField("job_id", jobID).Error("Failed to publish message to Kafka")
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"job_id": jobID,
		"topic":  mb.producer.writer.Topic,
	}).Info("Submission published to Kafka")

	return nil
}

func (mb *MessageBus) ConsumeMessages(ctx context.Context, handler func(SubmissionMessage) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			message, err := mb.consumer.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				mb.logger.WithError(err).Error("Failed to read message from Kafka")
				continue
			}

			var submission SubmissionMessage
			if err := json.Unmarshal(message.Value, &submission); err != nil {
				mb.logger.WithError(err).Error("Failed to unmarshal Kafka message")
				continue
			}

			// Process message with retry logic
			if err := mb.processWithRetry(ctx, submission, handler); err != nil {
				mb.logger.WithError(err).WithField("job_id", submission.JobID).Error("Failed to process message after retries")

				if dlqErr := mb.sendToDLQ(ctx, submission, err); dlqErr != nil {
					mb.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
				}
			}
		}
	}
}

func (mb *MessageBus) processWithRetry(ctx context.Context, message SubmissionMessage, handler func(SubmissionMessage) error) error {
	maxRetries := 3
	baseDelay := time.Second

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			mb.logger.WithFields(logrus.Fields{
				"job_id":  message.JobID,
				"attempt": attempt,
				"delay":   delay,
			}).Info("Retrying message processing")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		message.RetryCount = attempt
		if err := handler(message); err != nil {
			mb.logger.WithError(err).WithFields(logrus.Fields{
				"job_id":  message.JobID,
				"attempt": attempt,
			}).Warn("Message processing failed")

			if attempt == maxRetries {
				return fmt.Errorf("max retries exceeded: %w", err)
			}
			continue
		}

		mb.logger.WithFields(logrus.Fields{
			"job_id":  message.JobID,
			"attempt": attempt,
		}).Info("Message processed successfully")
		return nil
	}

	return fmt.Errorf("unexpected retry loop exit")
}

func (mb *MessageBus) sendToDLQ(ctx context.Context, message SubmissionMessage, originalError error) error {
	dlqMessage := map[string]interface{}{
		"original_message": message,
		"error":            originalError.Error(),
		"dlq_timestamp":    time.Now(),
	}

	dlqBytes, err := json.Marshal(dlqMessage)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	kafkaMessage := kafka.Message{
		Key:   []byte(message.JobID.String()),
		Value: dlqBytes,
		Headers: []kafka.Header{
			{Key: "job_id", Value: []byte(message.JobID.String())},
			{Key: "original_topic", Value: []byte(mb.producer.writer.Topic)},
			{Key: "error", Value: []byte(originalError.Error())},
		},
	}

	if err := mb.dlqWriter.WriteMessages(ctx, kafkaMessage); err != nil {
		return fmt.Errorf("failed to write message to DLQ: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"job_id": message.JobID,
		"error":  originalError.Error(),
	}).Warn("Message sent to DLQ")

	return nil
}

func (mb *MessageBus) Close() error {
	var errors []error

	if err := mb.producer.writer.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close producer: %w", err))
	}

	if err := mb.consumer.reader.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close consumer: %w", err))
	}

	if err := mb.dlqWriter.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close DLQ writer: %w", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("errors closing message bus: %v", errors)
	}

	return nil
}

// GetMetrics returns Kafka metrics for monitoring
func (mb *MessageBus) GetMetrics() map[string]interface{} {
	stats := mb.consumer.reader.Stats()
	return map[string]interface{}{
		"consumer_lag":    stats.Lag,
		"consumer_offset": stats.Offset,
		"messages_read":   stats.Messages,
		"bytes_read":      stats.Bytes,
		"rebalances":      stats.Rebalances,
		"timeouts":        stats.Timeouts,
		"errors":          stats.Errors,
	}
}
