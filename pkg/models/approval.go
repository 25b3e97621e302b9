package models

import "time"

// ApprovalStatus is the lifecycle state of an Approval gate.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalGranted  ApprovalStatus = "granted"
	ApprovalDenied   ApprovalStatus = "denied"
	ApprovalExpired  ApprovalStatus = "expired"
)

// Approval records a human decision gating an Execution whose
// ApprovalLevel is greater than zero.
type Approval struct {
	ID          string
	ExecutionID string
	PlanHash    string // must equal the execution's plan hash at decision time
	Status      ApprovalStatus
	RequestedAt time.Time
	DecidedAt   *time.Time
	DecidedBy   string
	Reason      string
	ExpiresAt   *time.Time
}
