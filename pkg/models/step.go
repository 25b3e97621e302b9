package models

import "time"

// StepStatus is the lifecycle state of one ExecutionStep.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// Terminal reports whether the step has stopped changing state.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
		return true
	default:
		return false
	}
}

// ExecutionStep is one ordered, persisted unit inside an execution.
type ExecutionStep struct {
	ID             string
	ExecutionID    string
	StepIndex      int
	StepType       StepType
	TargetAssetID  string
	TargetHostname string
	InputData      map[string]any
	Status         StepStatus
	Attempt        int
	MaxRetries     int
	Critical       bool
	ErrorMessage   string
	OutputData     map[string]any
	DurationMS     int64
	StartedAt      *time.Time
	CompletedAt    *time.Time
}
