package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestCreateMessage(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		writeJSON(t, w, http.StatusOK, map[string]any{
			"id":   "msg_01",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": `{"entries":`},
				{"type": "text", "text": `[]}`},
			},
			"model":       "claude-haiku-4-5",
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 1200, "output_tokens": 80},
		})
	}))
	defer srv.Close()

	temp := 0.0
	resp, err := NewClient("test-key", option.WithBaseURL(srv.URL)).CreateMessage(context.Background(), MessageRequest{
		Model:       "claude-haiku-4-5",
		MaxTokens:   4096,
		System:      "Respond with valid JSON only.",
		Prompt:      "Compare",
		Temperature: &temp,
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_01", resp.ID)
	assert.Equal(t, `{"entries":[]}`, resp.Text)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, Usage{InputTokens: 1200, OutputTokens: 80}, resp.Usage)

	assert.EqualValues(t, 4096, body["max_tokens"])
	assert.EqualValues(t, 0, body["temperature"])
	assert.NotEmpty(t, body["system"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 1)
}

func TestCreateMessage_NoSDKRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		writeJSON(t, w, http.StatusTooManyRequests, map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "rate_limit_error", "message": "slow down"},
		})
	}))
	defer srv.Close()

	_, err := NewClient("test-key", option.WithBaseURL(srv.URL)).CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5",
		MaxTokens: 16,
		Prompt:    "Hello",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: create message")
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))
	assert.Equal(t, 1, calls)
}

func TestStatusCode_PlainErrors(t *testing.T) {
	assert.Zero(t, StatusCode(errors.New("boom")))
	assert.Zero(t, StatusCode(nil))
}

func TestUsage_Cost(t *testing.T) {
	u := Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.InDelta(t, 6.0, u.Cost("claude-haiku-4-5"), 1e-9)
	assert.InDelta(t, 18.0, u.Cost("claude-sonnet-4-5"), 1e-9)
	assert.Zero(t, u.Cost("some-future-model"))

	assert.NotPanics(t, func() { u.Log("claude-haiku-4-5", "verify") })
}
