// Package timeoutpolicy resolves a (SLAClass, ActionClass) pair to a
// concrete step timeout, and sums a plan's step timeouts into a single
// per-execution deadline. Arming and firing that deadline is
// pkg/cancellation's job; this package only computes durations.
package timeoutpolicy

import (
	"fmt"
	"time"

	"github.com/codeready-toolchain/execution-core/pkg/config"
	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// minimumExecutionFloor is the class-dependent minimum under the
// summed-step estimate, so a one-step fast plan never gets an
// unrealistically tight execution deadline.
var minimumExecutionFloor = map[models.SLAClass]time.Duration{
	models.SLAFast:   30 * time.Second,
	models.SLAMedium: 2 * time.Minute,
	models.SLALong:   10 * time.Minute,
}

// Table resolves timeout policies from the configured SLA×ActionClass
// matrix. Built once at startup from config.TimeoutConfig and read-only at
// runtime; the matrix is config-seeded rather than a database table since
// it has no per-tenant variance.
type Table struct {
	cfg *config.TimeoutConfig
}

// NewTable constructs a Table over the given timeout matrix.
func NewTable(cfg *config.TimeoutConfig) *Table {
	if cfg == nil {
		cfg = config.DefaultTimeoutConfig()
	}
	return &Table{cfg: cfg}
}

// StepTimeout returns the per-step timeout for (sla, action).
func (t *Table) StepTimeout(sla models.SLAClass, action models.ActionClass) (time.Duration, error) {
	row, ok := t.cfg.Matrix[string(sla)]
	if !ok {
		return 0, fmt.Errorf("timeoutpolicy: no matrix row for sla class %q", sla)
	}
	d, ok := row[string(action)]
	if !ok {
		return 0, fmt.Errorf("timeoutpolicy: no matrix entry for sla class %q action class %q", sla, action)
	}
	return d.Duration, nil
}

// ExecutionTimeout sums the per-step timeout of every step in the plan,
// applies the configured buffer fraction, and floors the result at the
// class-dependent minimum.
func (t *Table) ExecutionTimeout(sla models.SLAClass, steps []models.StepDef, classify func(models.StepDef) models.ActionClass) (time.Duration, error) {
	var total time.Duration
	for _, step := range steps {
		action := step.Action
		if action == "" {
			action = classify(step)
		}
		d, err := t.StepTimeout(sla, action)
		if err != nil {
			return 0, err
		}
		total += d
	}

	buffered := time.Duration(float64(total) * (1 + t.cfg.BufferFraction))

	floor := minimumExecutionFloor[sla]
	if buffered < floor {
		return floor, nil
	}
	return buffered, nil
}

// Policy is the resolved models.TimeoutPolicy for one (sla, action) pair,
// convenient for callers (e.g. pkg/engine) that want the full record rather
// than a single duration.
func (t *Table) Policy(sla models.SLAClass, action models.ActionClass, execTimeout time.Duration) (models.TimeoutPolicy, error) {
	stepTimeout, err := t.StepTimeout(sla, action)
	if err != nil {
		return models.TimeoutPolicy{}, err
	}
	return models.TimeoutPolicy{
		SLAClass:         sla,
		ActionClass:      action,
		StepTimeout:      stepTimeout,
		ExecutionTimeout: execTimeout,
		BufferFraction:   t.cfg.BufferFraction,
	}, nil
}
