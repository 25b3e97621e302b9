package models

import "time"

// TimeoutPolicy is the resolved timeout budget for one (SLAClass,
// ActionClass) pair, looked up by pkg/timeoutpolicy and armed per step and
// per execution.
type TimeoutPolicy struct {
	SLAClass         SLAClass
	ActionClass      ActionClass
	StepTimeout      time.Duration
	ExecutionTimeout time.Duration
	BufferFraction   float64
}
