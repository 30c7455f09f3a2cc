package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestCreateMessage(t *testing.T) {
	var gotReq MessagesRequest
	var gotKey, gotVersion string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "msg_01",
			"model": gotReq.Model,
			"content": []map[string]string{
				{"type": "text", "text": `{"name": "Yamaha FG800"}`},
			},
			"stop_reason": "end_turn",
			"usage": map[string]int{
				"input_tokens":            1500,
				"output_tokens":           200,
				"cache_read_input_tokens": 1200,
			},
		})
	}))
	defer server.Close()

	c := NewClient("key-1", server.URL, 10*time.Second, testLogger())

	resp, err := c.CreateMessage(context.Background(), &MessagesRequest{
		Model:     "test-model",
		MaxTokens: 1024,
		System: []SystemBlock{
			{Type: "text", Text: "Identify the product.", CacheControl: EphemeralCache()},
		},
		Messages: []Message{
			{Role: "user", Content: []ContentBlock{
				ImageBlock("image/jpeg", "aGVsbG8="),
				TextBlock("What is this?"),
			}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, apiVersion, gotVersion)
	assert.Equal(t, "ephemeral", gotReq.System[0].CacheControl.Type)
	assert.Equal(t, "base64", gotReq.Messages[0].Content[0].Source.Type)

	assert.Equal(t, `{"name": "Yamaha FG800"}`, resp.Text())
	assert.Equal(t, 1200, resp.Usage.CacheReadInputTokens)
}

func TestCreateMessage_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{
				"type":    "rate_limit_error",
				"message": "Too many requests",
			},
		})
	}))
	defer server.Close()

	c := NewClient("key-1", server.URL, 10*time.Second, testLogger())

	_, err := c.CreateMessage(context.Background(), &MessagesRequest{Model: "test-model"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit_error")
	assert.Contains(t, err.Error(), "Too many requests")
}

func TestMessagesResponse_TextSkipsNonTextBlocks(t *testing.T) {
	resp := &MessagesResponse{}
	resp.Content = []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{
		{Type: "text", Text: "part one "},
		{Type: "tool_use", Text: "ignored"},
		{Type: "text", Text: "part two"},
	}

	assert.Equal(t, "part one part two", resp.Text())
}
