package api

import (
	"time"

	"github.com/codeready-toolchain/execution-core/pkg/models"
	"github.com/codeready-toolchain/execution-core/pkg/monitoring"
)

// ExecutionResponse is returned by the submission and get-execution
// endpoints. ErrorMessage is always the masked form of the execution's
// stored error, never the raw adapter output.
type ExecutionResponse struct {
	ExecutionID   string                `json:"execution_id"`
	TenantID      string                `json:"tenant_id"`
	Status        models.Status         `json:"status"`
	SLAClass      models.SLAClass       `json:"sla_class"`
	ExecutionMode models.ExecutionMode  `json:"execution_mode"`
	ApprovalLevel int                   `json:"approval_level"`
	CreatedAt     time.Time             `json:"created_at"`
	StartedAt     *time.Time            `json:"started_at,omitempty"`
	CompletedAt   *time.Time            `json:"completed_at,omitempty"`
	TimeoutAt     *time.Time            `json:"timeout_at,omitempty"`
	Result        map[string]any        `json:"result,omitempty"`
	ErrorMessage  string                `json:"error_message,omitempty"`
	TraceID       string                `json:"trace_id,omitempty"`
	Tags          []string              `json:"tags,omitempty"`
	Deduped       bool                  `json:"deduped"`
	Progress      *ProgressResponse     `json:"progress,omitempty"`
}

// ProgressResponse is the wire shape of monitoring.Progress, derived on
// demand from step states rather than persisted.
type ProgressResponse struct {
	TotalSteps      int `json:"total_steps"`
	CompletedSteps  int `json:"completed_steps"`
	FailedSteps     int `json:"failed_steps"`
	SkippedSteps    int `json:"skipped_steps"`
	PercentComplete int `json:"percent_complete"`
}

func progressResponse(p monitoring.Progress) *ProgressResponse {
	return &ProgressResponse{
		TotalSteps:      p.Total,
		CompletedSteps:  p.Completed,
		FailedSteps:     p.Failed,
		SkippedSteps:    p.Skipped,
		PercentComplete: p.PercentComplete(),
	}
}

// ExecutionListResponse is the wire shape for GET /executions.
type ExecutionListResponse struct {
	Executions []ExecutionResponse `json:"executions"`
}

// EventResponse is the HTTP wire shape of models.ExecutionEvent for
// GET /v1/executions/:id/events.
type EventResponse struct {
	EventID      string        `json:"event_id"`
	ExecutionID  string        `json:"execution_id"`
	EventType    string        `json:"event_type"`
	FromStatus   models.Status `json:"from_status,omitempty"`
	ToStatus     models.Status `json:"to_status,omitempty"`
	ActorID      string        `json:"actor_id,omitempty"`
	ActorType    string        `json:"actor_type,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// EventListResponse is the paginated wire shape for GET
// /execution/:id/events.
type EventListResponse struct {
	Events []EventResponse `json:"events"`
	Next   string          `json:"next_cursor,omitempty"`
}

// CancelResponse is returned by POST /v1/executions/:id/cancel.
type CancelResponse struct {
	ExecutionID string `json:"execution_id"`
	Message     string `json:"message"`
}

// ApprovalResponse is returned by POST /v1/approvals/:id.
type ApprovalResponse struct {
	ApprovalID  string                 `json:"approval_id"`
	ExecutionID string                 `json:"execution_id"`
	Status      models.ApprovalStatus  `json:"status"`
}

// HealthResponse is returned by GET /health. It reports only this
// process's own components, never external collaborators.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// HealthCheck reports the status of a single health check component.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the standard JSON error body for every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
