package models

import "errors"

// Sentinel errors shared by every component operating on domain types.
var (
	ErrInvalidTransition = errors.New("models: invalid status transition")
	ErrUnknownStepType   = errors.New("models: unknown step type")
	ErrEmptyPlan         = errors.New("models: plan has no steps")
)
