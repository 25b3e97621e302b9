// Package rbac implements worker-side authorization of every step against
// (actor, tenant, asset, action, environment), enforced as
// defense-in-depth against an API-layer bypass.
package rbac

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/execution-core/pkg/config"
	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// PermissionChecker is the narrow external collaborator this package
// depends on — the credential/permission catalog is only ever reached
// through this interface, never imported directly.
type PermissionChecker interface {
	HasPermission(ctx context.Context, actorID, tenantID, assetID string, action models.ActionClass, environment string) (bool, error)
}

// ErrDenied is returned when the actor lacks the required permission.
var ErrDenied = fmt.Errorf("rbac: permission denied")

// Tuple is one distinct (asset, action, environment) permission check
// derived from a plan or a single step.
type Tuple struct {
	AssetID     string
	Action      models.ActionClass
	Environment string
}

// Validator checks actor permissions in strict (deny-by-default, production)
// or permissive (allow-by-default, development-only) mode.
type Validator struct {
	checker PermissionChecker
	mode    config.RBACMode
}

// NewValidator constructs a Validator and logs which mode is active at
// startup.
func NewValidator(checker PermissionChecker, cfg *config.RBACConfig) *Validator {
	if cfg == nil {
		cfg = config.DefaultRBACConfig()
	}
	slog.Info("rbac validator initialized", "mode", cfg.Mode)
	return &Validator{checker: checker, mode: cfg.Mode}
}

// Check authorizes one tuple for an actor/tenant. In permissive mode a
// checker error or a false result is logged and allowed; in strict mode
// either denies.
func (v *Validator) Check(ctx context.Context, actorID, tenantID string, tuple Tuple) error {
	allowed, err := v.checker.HasPermission(ctx, actorID, tenantID, tuple.AssetID, tuple.Action, tuple.Environment)
	if err != nil {
		if v.mode == config.RBACModePermissive {
			slog.Warn("rbac permission check failed, allowing in permissive mode",
				"actor_id", actorID, "asset_id", tuple.AssetID, "error", err)
			return nil
		}
		return fmt.Errorf("checking permission: %w", err)
	}
	if !allowed {
		if v.mode == config.RBACModePermissive {
			slog.Warn("rbac permission denied, allowing in permissive mode",
				"actor_id", actorID, "asset_id", tuple.AssetID, "action", tuple.Action)
			return nil
		}
		return fmt.Errorf("%w: actor %s action %s on asset %s", ErrDenied, actorID, tuple.Action, tuple.AssetID)
	}
	return nil
}

// CheckPlan authorizes every distinct (asset, action, environment) tuple
// in a plan before any step runs.
func (v *Validator) CheckPlan(ctx context.Context, actorID, tenantID string, steps []models.StepDef) error {
	for _, tuple := range DistinctTuples(steps) {
		if err := v.Check(ctx, actorID, tenantID, tuple); err != nil {
			return err
		}
	}
	return nil
}

// CheckStep re-validates a single step just before dispatch, in case plan
// targets were expanded late.
func (v *Validator) CheckStep(ctx context.Context, actorID, tenantID string, step models.StepDef) error {
	asset := step.TargetAssetID
	if asset == "" {
		asset = step.TargetHostname
	}
	return v.Check(ctx, actorID, tenantID, Tuple{AssetID: asset, Action: step.Action, Environment: step.Environment})
}

// DistinctTuples collapses a plan's steps into distinct permission tuples.
func DistinctTuples(steps []models.StepDef) []Tuple {
	seen := make(map[Tuple]bool)
	var tuples []Tuple
	for _, step := range steps {
		asset := step.TargetAssetID
		if asset == "" {
			asset = step.TargetHostname
		}
		t := Tuple{AssetID: asset, Action: step.Action, Environment: step.Environment}
		if seen[t] {
			continue
		}
		seen[t] = true
		tuples = append(tuples, t)
	}
	return tuples
}
