package secrets

import (
	"context"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// Appender is the subset of pkg/store.EventStore the audit adapter needs,
// the same Append signature pkg/engine.EventRecorder already depends on.
type Appender interface {
	Append(ctx context.Context, ev *models.ExecutionEvent, channel string, wirePayload map[string]any) error
}

// StoreEventRecorder satisfies EventRecorder by appending
// secret_accessed / secret_resolution_failed audit rows over whatever
// Appender the caller already has wired for step events
// (pkg/store.EventStore in production).
type StoreEventRecorder struct {
	Events Appender
}

// NewStoreEventRecorder constructs a StoreEventRecorder.
func NewStoreEventRecorder(events Appender) *StoreEventRecorder {
	return &StoreEventRecorder{Events: events}
}

// RecordSecretAccessed appends a secret_accessed event. Only the path is
// recorded, never the resolved value.
func (r *StoreEventRecorder) RecordSecretAccessed(ctx context.Context, tenantID, executionID, path string) {
	r.append(ctx, tenantID, executionID, models.EventSecretAccessed, path, "")
}

// RecordSecretResolutionFailed appends a secret_resolution_failed event.
func (r *StoreEventRecorder) RecordSecretResolutionFailed(ctx context.Context, tenantID, executionID, path string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	r.append(ctx, tenantID, executionID, models.EventSecretResolutionFailed, path, msg)
}

func (r *StoreEventRecorder) append(ctx context.Context, tenantID, executionID, eventType, path, errMsg string) {
	if r == nil || r.Events == nil {
		return
	}
	ev := &models.ExecutionEvent{
		ExecutionID:  executionID,
		EventType:    eventType,
		ErrorMessage: errMsg,
		Details:      map[string]any{"path": path},
	}
	channel := "execution:" + tenantID + ":" + executionID
	payload := map[string]any{"event_type": eventType, "execution_id": executionID}
	_ = r.Events.Append(ctx, ev, channel, payload)
}
