package messaging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boomware/crosslist/pkg/models"
)

func TestSubmissionMessage_Serialization(t *testing.T) {
	jobID := uuid.New()
	message := SubmissionMessage{
		JobID: jobID,
		Submission: models.SubmissionRequest{
			ImagePaths:    []string{"/tmp/front.jpg", "/tmp/back.jpg"},
			AcquiredPrice: 12.50,
			AcquiredFrom:  "estate sale",
			Platforms:     []models.Platform{models.PlatformEbay, models.PlatformMercari},
			Pricing: models.PricingOptions{
				Urgency: models.UrgencyBalanced,
			},
		},
		Timestamp:  time.Now(),
		RetryCount: 0,
		Hints: map[string]interface{}{
			"source": "test",
		},
	}

	messageBytes, err := json.Marshal(message)
	require.NoError(t, err)
	assert.NotEmpty(t, messageBytes)

	var deserialized SubmissionMessage
	err = json.Unmarshal(messageBytes, &deserialized)
	require.NoError(t, err)

	assert.Equal(t, message.JobID, deserialized.JobID)
	assert.Equal(t, message.Submission.ImagePaths, deserialized.Submission.ImagePaths)
	assert.Equal(t, message.Submission.Platforms, deserialized.Submission.Platforms)
	assert.Equal(t, message.RetryCount, deserialized.RetryCount)
	assert.Equal(t, message.Hints["source"], deserialized.Hints["source"])
}

func TestSubmissionMessage_Validation(t *testing.T) {
	tests := []struct {
		name    string
		message SubmissionMessage
		isValid bool
	}{
		{
			name: "valid message",
			message: SubmissionMessage{
				JobID: uuid.New(),
				Submission: models.SubmissionRequest{
					ImagePaths: []string{"/tmp/a.jpg"},
					Platforms:  []models.Platform{models.PlatformEbay},
				},
				Timestamp: time.Now(),
			},
			isValid: true,
		},
		{
			name: "empty job ID",
			message: SubmissionMessage{
				JobID: uuid.Nil,
				Submission: models.SubmissionRequest{
					ImagePaths: []string{"/tmp/a.jpg"},
					Platforms:  []models.Platform{models.PlatformEbay},
				},
				Timestamp: time.Now(),
			},
			isValid: false,
		},
		{
			name: "no images",
			message: SubmissionMessage{
				JobID: uuid.New(),
				Submission: models.SubmissionRequest{
					Platforms: []models.Platform{models.PlatformEbay},
				},
				Timestamp: time.Now(),
			},
			isValid: false,
		},
		{
			name: "no platforms",
			message: SubmissionMessage{
				JobID: uuid.New(),
				Submission: models.SubmissionRequest{
					ImagePaths: []string{"/tmp/a.jpg"},
				},
				Timestamp: time.Now(),
			},
			isValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobIDValid := tt.message.JobID != uuid.Nil
			submissionValid := len(tt.message.Submission.ImagePaths) > 0 &&
				len(tt.message.Submission.Platforms) > 0
			timestampValid := !tt.message.Timestamp.IsZero()

			isValid := jobIDValid && submissionValid && timestampValid

			if tt.isValid {
				assert.True(t, isValid, "Message should be valid")
			} else {
				assert.False(t, isValid, "Message should be invalid")
			}
		})
	}
}

func TestRetryLogic(t *testing.T) {
	tests := []struct {
		name          string
		retryCount    int
		maxRetries    int
		shouldRetry   bool
		expectedDelay time.Duration
	}{
		{
			name:          "first retry",
			retryCount:    1,
			maxRetries:    3,
			shouldRetry:   true,
			expectedDelay: 1 * time.Second,
		},
		{
			name:          "second retry",
			retryCount:    2,
			maxRetries:    3,
			shouldRetry:   true,
			expectedDelay: 2 * time.Second,
		},
		{
			name:          "third retry",
			retryCount:    3,
			maxRetries:    3,
			shouldRetry:   true,
			expectedDelay: 4 * time.Second,
		},
		{
			name:          "max retries exceeded",
			retryCount:    4,
			maxRetries:    3,
			shouldRetry:   false,
			expectedDelay: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shouldRetry := tt.retryCount <= tt.maxRetries
			assert.Equal(t, tt.shouldRetry, shouldRetry)

			if shouldRetry && tt.retryCount > 0 {
				baseDelay := time.Second
				expectedDelay := baseDelay * time.Duration(1<<uint(tt.retryCount-1))
				assert.Equal(t, tt.expectedDelay, expectedDelay)
			}
		})
	}
}

func TestDLQMessage(t *testing.T) {
	originalMessage := SubmissionMessage{
		JobID: uuid.New(),
		Submission: models.SubmissionRequest{
			ImagePaths: []string{"/tmp/a.jpg"},
			Platforms:  []models.Platform{models.PlatformEbay},
		},
		Timestamp:  time.Now(),
		RetryCount: 3,
	}

	originalError := "processing failed"

	dlqMessage := map[string]interface{}{
		"original_message": originalMessage,
		"error":            originalError,
		"dlq_timestamp":    time.Now(),
	}

	dlqBytes, err := json.Marshal(dlqMessage)
	require.NoError(t, err)
	assert.NotEmpty(t, dlqBytes)

	var deserializedDLQ map[string]interface{}
	err = json.Unmarshal(dlqBytes, &deserializedDLQ)
	require.NoError(t, err)

	assert.Contains(t, deserializedDLQ, "original_message")
	assert.Contains(t, deserializedDLQ, "error")
	assert.Contains(t, deserializedDLQ, "dlq_timestamp")
	assert.Equal(t, originalError, deserializedDLQ["error"])
}

func TestTopicConfiguration(t *testing.T) {
	assert.Equal(t, "listing-submissions", ListingSubmissionsTopic)
	assert.Equal(t, "listing-submissions-dlq", ListingSubmissionsDLQTopic)
	assert.Equal(t, "submission-processors", ConsumerGroup)

	assert.Contains(t, ListingSubmissionsDLQTopic, "dlq")
	assert.Contains(t, ConsumerGroup, "processors")
}
