package idempotency

import (
	"testing"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

func TestDeriveKey_StableAcrossMapOrdering(t *testing.T) {
	plan := models.Plan{
		Steps: []models.StepDef{
			{Type: models.StepHTTP, Input: map[string]any{"b": 2, "a": 1}},
		},
	}
	k1 := DeriveKey(plan, "tenant-1", "actor-1")
	k2 := DeriveKey(plan, "tenant-1", "actor-1")
	if k1 != k2 {
		t.Fatalf("expected stable key, got %q vs %q", k1, k2)
	}
}

func TestDeriveKey_DiffersByTenantOrActor(t *testing.T) {
	plan := models.Plan{Steps: []models.StepDef{{Type: models.StepLocalCommand}}}
	k1 := DeriveKey(plan, "tenant-1", "actor-1")
	k2 := DeriveKey(plan, "tenant-2", "actor-1")
	if k1 == k2 {
		t.Fatal("expected different tenant to produce a different key")
	}
}

func TestDeriveKey_OrderIndependentPlanIgnoresStepOrder(t *testing.T) {
	stepA := models.StepDef{Type: models.StepLocalCommand, TargetHostname: "a"}
	stepB := models.StepDef{Type: models.StepLocalCommand, TargetHostname: "b"}

	plan1 := models.Plan{OrderIndependent: true, Steps: []models.StepDef{stepA, stepB}}
	plan2 := models.Plan{OrderIndependent: true, Steps: []models.StepDef{stepB, stepA}}

	if DeriveKey(plan1, "t", "a") != DeriveKey(plan2, "t", "a") {
		t.Fatal("expected order-independent plans with swapped steps to hash identically")
	}
}

func TestDeriveKey_OrderDependentPlanDiffersByStepOrder(t *testing.T) {
	stepA := models.StepDef{Type: models.StepLocalCommand, TargetHostname: "a"}
	stepB := models.StepDef{Type: models.StepLocalCommand, TargetHostname: "b"}

	plan1 := models.Plan{Steps: []models.StepDef{stepA, stepB}}
	plan2 := models.Plan{Steps: []models.StepDef{stepB, stepA}}

	if DeriveKey(plan1, "t", "a") == DeriveKey(plan2, "t", "a") {
		t.Fatal("expected order-dependent plans with swapped steps to hash differently")
	}
}
