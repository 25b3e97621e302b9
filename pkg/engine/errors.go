package engine

import "errors"

// Sentinel errors the Execution Engine attaches to a failed step or
// execution, mirroring the flat sentinel-error shape of
// pkg/services/errors.go that models.ErrUnknownStepType already follows.
var (
	ErrMissingTarget      = errors.New("engine: step has no resolvable target asset")
	ErrValidationFailed   = errors.New("engine: step output failed validation")
	ErrCancelled          = errors.New("engine: execution was cancelled")
	ErrStepTimedOut       = errors.New("engine: step exceeded its timeout")
	ErrExecutionTimedOut  = errors.New("engine: execution exceeded its timeout")
)
