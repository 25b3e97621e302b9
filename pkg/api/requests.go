package api

import "github.com/codeready-toolchain/execution-core/pkg/models"

// SubmitRequest is the HTTP request body for POST /submission.
type SubmitRequest struct {
	TenantID          string               `json:"tenant_id" binding:"required"`
	ActorID           string               `json:"actor_id,omitempty"`
	Plan              models.Plan          `json:"plan" binding:"required"`
	SLAClass          models.SLAClass      `json:"sla_class,omitempty" binding:"slaclass"`
	ApprovalLevel     int                  `json:"approval_level" binding:"gte=0"`
	ExecutionMode     models.ExecutionMode `json:"execution_mode,omitempty" binding:"execmode"`
	Priority          *models.Priority     `json:"priority,omitempty" binding:"omitempty,priority"`
	TraceID           string               `json:"trace_id,omitempty"`
	ParentExecutionID string               `json:"parent_execution_id,omitempty"`
	Tags              []string             `json:"tags,omitempty"`
	Metadata          map[string]any       `json:"metadata,omitempty"`
}

// CancelRequest is the HTTP request body for POST /v1/executions/:id/cancel.
type CancelRequest struct {
	Reason  models.CancellationReason `json:"reason,omitempty"`
	Message string                    `json:"message,omitempty"`
}

// ApprovalDecisionRequest is the HTTP request body for POST /v1/approvals/:id.
type ApprovalDecisionRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason,omitempty"`
}
