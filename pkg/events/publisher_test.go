package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateIfNeeded(t *testing.T) {
	t.Run("passes through normal payload", func(t *testing.T) {
		payload, _ := json.Marshal(ExecutionProgressPayload{
			Type:        EventTypeExecutionProgress,
			ExecutionID: "exec-123",
			TenantID:    "acme",
		})

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)
		assert.Contains(t, result, EventTypeExecutionProgress)
		assert.Contains(t, result, "exec-123")
	})

	t.Run("truncates oversized payload", func(t *testing.T) {
		longDetails := make([]byte, 8000)
		for i := range longDetails {
			longDetails[i] = 'a'
		}
		raw := map[string]any{
			"type":         EventTypeExecutionProgress,
			"execution_id": "exec-123",
			"tenant_id":    "acme",
			"details":      string(longDetails),
		}
		payload, _ := json.Marshal(raw)

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)
		assert.Contains(t, result, "truncated")
		assert.Less(t, len(result), 8000)
	})

	t.Run("does not truncate small payload", func(t *testing.T) {
		payload, _ := json.Marshal(QueueDepthPayload{Type: EventTypeQueueDepth, TenantID: "acme", Depth: 1})

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)
		assert.NotContains(t, result, "truncated")
	})

	t.Run("truncated payload preserves routing fields", func(t *testing.T) {
		longDetails := make([]byte, 8000)
		for i := range longDetails {
			longDetails[i] = 'x'
		}
		raw := map[string]any{
			"type":         EventTypeExecutionProgress,
			"execution_id": "exec-456",
			"tenant_id":    "acme",
			"details":      string(longDetails),
		}
		payload, _ := json.Marshal(raw)

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)

		assert.Contains(t, result, EventTypeExecutionProgress)
		assert.Contains(t, result, "exec-456")
		assert.Contains(t, result, `"truncated":true`)
		assert.NotContains(t, result, "xxxx")
	})

	t.Run("empty JSON object", func(t *testing.T) {
		result, err := truncateIfNeeded("{}")
		require.NoError(t, err)
		assert.Equal(t, "{}", result)
	})
}

func TestNewEventPublisher(t *testing.T) {
	publisher := NewEventPublisher(nil)
	assert.NotNil(t, publisher)
	assert.Nil(t, publisher.db)
}

func TestQueueDepthPayload_JSON(t *testing.T) {
	payload := QueueDepthPayload{
		Type:      EventTypeQueueDepth,
		TenantID:  "acme",
		Depth:     5,
		Timestamp: "2026-02-10T12:00:00Z",
	}

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var decoded QueueDepthPayload
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, EventTypeQueueDepth, decoded.Type)
	assert.Equal(t, "acme", decoded.TenantID)
	assert.Equal(t, 5, decoded.Depth)
	assert.Equal(t, "2026-02-10T12:00:00Z", decoded.Timestamp)
}

func TestExecutionProgressPayload_JSON(t *testing.T) {
	payload := ExecutionProgressPayload{
		Type:            EventTypeExecutionProgress,
		ExecutionID:     "exec-1",
		TenantID:        "acme",
		TotalSteps:      5,
		CompletedSteps:  3,
		PercentComplete: 60,
		Timestamp:       "2026-02-13T10:00:00Z",
	}

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var decoded ExecutionProgressPayload
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, EventTypeExecutionProgress, decoded.Type)
	assert.Equal(t, "exec-1", decoded.ExecutionID)
	assert.Equal(t, "acme", decoded.TenantID)
	assert.Equal(t, 5, decoded.TotalSteps)
	assert.Equal(t, 3, decoded.CompletedSteps)
	assert.Equal(t, float64(60), decoded.PercentComplete)
}
