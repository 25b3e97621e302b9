package events

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// mockEventLister implements eventLister for testing the adapter.
type mockEventLister struct {
	events []*models.ExecutionEvent
	err    error
}

func (m *mockEventLister) ListSince(_ context.Context, _, _ string) ([]*models.ExecutionEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.events, nil
}

func TestEventStoreAdapter_EventsSince(t *testing.T) {
	lister := &mockEventLister{
		events: []*models.ExecutionEvent{
			{ID: "10", ExecutionID: "exec-1", EventType: models.EventStepSucceeded, ToStatus: models.StatusCompleted, CreatedAt: time.Now()},
			{ID: "20", ExecutionID: "exec-1", EventType: models.EventStepFailed, ToStatus: models.StatusFailed, CreatedAt: time.Now()},
		},
	}

	adapter := NewEventStoreAdapter(lister)
	events, err := adapter.EventsSince(context.Background(), "exec-1", "", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "10", events[0].ID)
	assert.Equal(t, "20", events[1].ID)
	assert.Equal(t, models.EventStepSucceeded, events[0].Payload["event_type"])
	assert.Equal(t, "exec-1", events[0].Payload["execution_id"])
	assert.Equal(t, EventTypeExecutionEvent, events[0].Payload["type"])
}

func TestEventStoreAdapter_EventsSince_WithLimit(t *testing.T) {
	lister := &mockEventLister{
		events: []*models.ExecutionEvent{
			{ID: "1", ExecutionID: "exec-1", CreatedAt: time.Now()},
			{ID: "2", ExecutionID: "exec-1", CreatedAt: time.Now()},
			{ID: "3", ExecutionID: "exec-1", CreatedAt: time.Now()},
		},
	}

	adapter := NewEventStoreAdapter(lister)
	events, err := adapter.EventsSince(context.Background(), "exec-1", "", 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, "1", events[0].ID)
	assert.Equal(t, "2", events[1].ID)
}

func TestEventStoreAdapter_EventsSince_Error(t *testing.T) {
	lister := &mockEventLister{err: fmt.Errorf("database connection lost")}

	adapter := NewEventStoreAdapter(lister)
	events, err := adapter.EventsSince(context.Background(), "exec-1", "", 10)
	assert.Error(t, err)
	assert.Nil(t, events)
	assert.Contains(t, err.Error(), "database connection lost")
}

func TestEventStoreAdapter_EventsSince_Empty(t *testing.T) {
	adapter := NewEventStoreAdapter(&mockEventLister{events: []*models.ExecutionEvent{}})
	events, err := adapter.EventsSince(context.Background(), "exec-1", "", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
