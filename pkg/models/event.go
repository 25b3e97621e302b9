package models

import "time"

// ExecutionEvent is an append-only audit entry. At least one is recorded
// for every status transition.
type ExecutionEvent struct {
	ID           string
	ExecutionID  string
	EventType    string
	FromStatus   Status
	ToStatus     Status
	ActorID      string
	ActorType    string
	Details      map[string]any
	ErrorMessage string
	TraceID      string
	CreatedAt    time.Time
}

// Event type constants used by ExecutionEvent.EventType. Kept distinct from
// the pub/sub payload types in pkg/events, which are the wire shape for live
// subscribers rather than the durable audit record.
const (
	EventStatusChanged          = "status_changed"
	EventStepStarted            = "step_started"
	EventStepSucceeded          = "step_succeeded"
	EventStepFailed             = "step_failed"
	EventStepSkipped            = "step_skipped"
	EventStepCleanup            = "step_cleanup"
	EventSecretAccessed         = "secret_accessed"
	EventSecretResolutionFailed = "secret_resolution_failed"
	EventRBACDenied             = "rbac_denied"
)
