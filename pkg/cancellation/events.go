package cancellation

import (
	"context"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// Appender is the subset of pkg/store.EventStore the audit adapter needs,
// the same Append signature pkg/engine.EventRecorder depends on.
type Appender interface {
	Append(ctx context.Context, ev *models.ExecutionEvent, channel string, wirePayload map[string]any) error
}

// StoreEventRecorder satisfies EventRecorder by appending a step_cleanup
// audit row for every step a cancelled execution's cleanup pass walked.
type StoreEventRecorder struct {
	Events Appender
}

// NewStoreEventRecorder constructs a StoreEventRecorder.
func NewStoreEventRecorder(events Appender) *StoreEventRecorder {
	return &StoreEventRecorder{Events: events}
}

// RecordStepCleanup appends a step_cleanup event. err is nil on a
// successful compensation hook invocation; non-nil records the hook's
// failure without aborting the rest of the cleanup walk.
func (r *StoreEventRecorder) RecordStepCleanup(ctx context.Context, executionID, stepID string, err error) {
	if r == nil || r.Events == nil {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	ev := &models.ExecutionEvent{
		ExecutionID:  executionID,
		EventType:    models.EventStepCleanup,
		ErrorMessage: msg,
		Details:      map[string]any{"step_id": stepID},
	}
	channel := "execution::" + executionID
	payload := map[string]any{"event_type": models.EventStepCleanup, "execution_id": executionID, "step_id": stepID}
	_ = r.Events.Append(ctx, ev, channel, payload)
}
