// Package models holds the durable domain types shared across the execution
// core: executions, steps, events, queue items, locks, approvals, and timeout
// policies. Types here carry no persistence or transport concerns — those
// live in pkg/store and pkg/api respectively.
package models

import "time"

// Status is the lifecycle state of an Execution: pending-approval and
// approved are pre-run states, queued/running are in-flight, and the
// remainder are terminal.
type Status string

const (
	StatusPendingApproval Status = "pending-approval"
	StatusApproved        Status = "approved"
	StatusQueued          Status = "queued"
	StatusRunning          Status = "running"
	StatusCompleted       Status = "completed"
	StatusPartial         Status = "partial"
	StatusFailed          Status = "failed"
	StatusCancelled       Status = "cancelled"
	StatusTimedOut        Status = "timed-out"
)

// Terminal reports whether status has no outgoing transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	default:
		return false
	}
}

// transitions enumerates the execution state machine as a single dispatch
// table rather than conditionals scattered at call sites.
var transitions = map[Status]map[Status]bool{
	StatusPendingApproval: {StatusApproved: true, StatusCancelled: true},
	StatusApproved:        {StatusQueued: true, StatusRunning: true, StatusCancelled: true},
	StatusQueued:          {StatusRunning: true, StatusCancelled: true, StatusFailed: true},
	StatusRunning: {
		StatusCompleted: true,
		StatusPartial:   true,
		StatusFailed:    true,
		StatusCancelled: true,
		StatusTimedOut:  true,
		// Queue-level retry: the whole execution is re-dispatched after a
		// failed attempt that still has retry budget.
		StatusQueued: true,
	},
}

// ValidTransition reports whether an execution may move from 'from' to 'to'.
func ValidTransition(from, to Status) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// InitialStatus derives the starting status for an execution from its
// approval level: 0 means approved, 1 or more means pending-approval.
func InitialStatus(approvalLevel int) Status {
	if approvalLevel <= 0 {
		return StatusApproved
	}
	return StatusPendingApproval
}

// SLAClass is the coarse time budget driving timeouts and retry bounds.
type SLAClass string

const (
	SLAFast   SLAClass = "fast"
	SLAMedium SLAClass = "medium"
	SLALong   SLAClass = "long"
)

// MaxAttempts returns the queue-level attempt bound for this SLA class
// (fast=2, medium=3, long=5).
func (c SLAClass) MaxAttempts() int {
	switch c {
	case SLAFast:
		return 2
	case SLAMedium:
		return 3
	case SLALong:
		return 5
	default:
		return 3
	}
}

// ExecutionMode selects whether an execution runs inline or via the queue.
type ExecutionMode string

const (
	ModeInline ExecutionMode = "inline"
	ModeQueued ExecutionMode = "queued"
)

// CancellationReason identifies why an execution was cancelled.
type CancellationReason string

const (
	ReasonUserInitiated   CancellationReason = "user-initiated"
	ReasonTimeout         CancellationReason = "timeout"
	ReasonSystemShutdown  CancellationReason = "system-shutdown"
	ReasonResourceLimit   CancellationReason = "resource-limit"
	ReasonError           CancellationReason = "error"
	ReasonDuplicate       CancellationReason = "duplicate"
	ReasonApprovalDenied  CancellationReason = "approval-denied"
)

// Execution is the durable record of one plan invocation.
type Execution struct {
	ID                 string
	TenantID           string
	ActorID            string
	IdempotencyKey      string
	PlanSnapshot       Plan
	PlanHash           string
	ExecutionMode      ExecutionMode
	SLAClass           SLAClass
	ApprovalLevel      int
	Status             Status
	PreviousStatus     Status
	StatusChangedAt    time.Time
	CreatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
	TimeoutAt          *time.Time
	Result             map[string]any
	ErrorMessage       string
	ErrorDetails       map[string]any
	TraceID            string
	ParentExecutionID  string
	Tags               []string
	Metadata           map[string]any
	WorkerID           string
	CancellationReason CancellationReason
}
