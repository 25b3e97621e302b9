package monitoring

import (
	"context"
	"log/slog"

	"github.com/codeready-toolchain/execution-core/pkg/events"
	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// ProgressPublisher pairs the change-detecting Tracker with the transient
// event publisher, so live subscribers only receive snapshots that actually
// changed since the last emission. Publishing is best-effort: a NOTIFY
// failure is logged and never fails the step that triggered it.
type ProgressPublisher struct {
	tracker *Tracker
	pub     *events.EventPublisher
}

// NewProgressPublisher constructs a ProgressPublisher over the transient
// event publisher.
func NewProgressPublisher(pub *events.EventPublisher) *ProgressPublisher {
	return &ProgressPublisher{tracker: NewTracker(), pub: pub}
}

// PublishProgress derives the execution's current progress from its step
// states and broadcasts it to the execution's stream channel if it changed.
// Once every step is terminal the cached snapshot is dropped.
func (p *ProgressPublisher) PublishProgress(ctx context.Context, tenantID, executionID string, steps []*models.ExecutionStep) {
	progress, changed := p.tracker.Update(executionID, steps)
	if !changed {
		return
	}
	if err := p.pub.PublishExecutionProgress(ctx, progress.Payload(tenantID, executionID)); err != nil {
		slog.Debug("progress publish failed", "execution_id", executionID, "error", err)
	}
	if progress.Done() {
		p.tracker.Forget(executionID)
	}
}
