package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// eventLister abstracts the cursor query pkg/store.EventStore exposes.
type eventLister interface {
	ListSince(ctx context.Context, executionID, afterID string) ([]*models.ExecutionEvent, error)
}

// EventStoreAdapter implements CatchupQuerier over the durable audit trail:
// it re-renders stored ExecutionEvent rows into the same wire payload their
// original pg_notify carried, so a replayed event and a live one look
// identical to the client.
type EventStoreAdapter struct {
	lister eventLister
}

// NewEventStoreAdapter creates a CatchupQuerier from an EventStore.
func NewEventStoreAdapter(lister eventLister) *EventStoreAdapter {
	return &EventStoreAdapter{lister: lister}
}

// EventsSince returns up to limit of an execution's audit events recorded
// after afterEventID, oldest first.
func (a *EventStoreAdapter) EventsSince(ctx context.Context, executionID, afterEventID string, limit int) ([]CatchupEvent, error) {
	rows, err := a.lister.ListSince(ctx, executionID, afterEventID)
	if err != nil {
		return nil, fmt.Errorf("listing events for catchup: %w", err)
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}

	result := make([]CatchupEvent, len(rows))
	for i, ev := range rows {
		result[i] = CatchupEvent{
			ID:      ev.ID,
			Payload: wirePayloadOf(ev),
		}
	}
	return result, nil
}

// wirePayloadOf renders a durable ExecutionEvent row the way
// pkg/store.EventStore.Append rendered it for the original pg_notify.
func wirePayloadOf(ev *models.ExecutionEvent) map[string]any {
	payload := map[string]any{
		"type":         EventTypeExecutionEvent,
		"event_id":     ev.ID,
		"execution_id": ev.ExecutionID,
		"event_type":   ev.EventType,
		"from_status":  ev.FromStatus,
		"to_status":    ev.ToStatus,
		"timestamp":    ev.CreatedAt.Format(time.RFC3339Nano),
	}
	if ev.ErrorMessage != "" {
		payload["error_message"] = ev.ErrorMessage
	}
	if len(ev.Details) > 0 {
		if b, err := json.Marshal(ev.Details); err == nil {
			var decoded map[string]any
			if json.Unmarshal(b, &decoded) == nil {
				payload["details"] = decoded
			}
		}
	}
	return payload
}
