package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExecutionProgressPayload(t *testing.T) {
	t.Run("creates execution progress payload with all fields", func(t *testing.T) {
		payload := ExecutionProgressPayload{
			Type:            EventTypeExecutionProgress,
			ExecutionID:     "exec-123",
			TenantID:        "acme",
			TotalSteps:      4,
			CompletedSteps:  2,
			FailedSteps:     0,
			SkippedSteps:    0,
			PercentComplete: 50,
			Timestamp:       time.Now().Format(time.RFC3339Nano),
		}

		assert.Equal(t, EventTypeExecutionProgress, payload.Type)
		assert.Equal(t, "exec-123", payload.ExecutionID)
		assert.Equal(t, "acme", payload.TenantID)
		assert.Equal(t, 4, payload.TotalSteps)
		assert.Equal(t, 2, payload.CompletedSteps)
		assert.Equal(t, float64(50), payload.PercentComplete)
		assert.NotEmpty(t, payload.Timestamp)
	})

	t.Run("counts failed and skipped steps independently of completed", func(t *testing.T) {
		payload := ExecutionProgressPayload{
			TotalSteps:     4,
			CompletedSteps: 1,
			FailedSteps:    1,
			SkippedSteps:   2,
		}

		assert.Equal(t, 4, payload.CompletedSteps+payload.FailedSteps+payload.SkippedSteps)
	})
}

func TestQueueDepthPayload(t *testing.T) {
	t.Run("creates queue depth payload", func(t *testing.T) {
		payload := QueueDepthPayload{
			Type:      EventTypeQueueDepth,
			TenantID:  "acme",
			Depth:     7,
			Timestamp: time.Now().Format(time.RFC3339Nano),
		}

		assert.Equal(t, EventTypeQueueDepth, payload.Type)
		assert.Equal(t, "acme", payload.TenantID)
		assert.Equal(t, 7, payload.Depth)
		assert.NotEmpty(t, payload.Timestamp)
	})

	t.Run("zero depth is a valid empty-queue snapshot", func(t *testing.T) {
		payload := QueueDepthPayload{TenantID: "acme", Depth: 0}
		assert.Equal(t, 0, payload.Depth)
	})
}
