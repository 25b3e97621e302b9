// Package idempotency implements stable hashing of a submission into a
// dedup key, and the window-based duplicate check that lets the submission
// front door return an existing execution unchanged on resubmission.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// DeriveKey computes the stable idempotency key for (plan, tenantID,
// actorID): a hash of the plan's canonical serialization. Canonical form
// sorts map keys, fixes the number format via Go's json encoding of
// float64, and, when the plan declares itself order-independent, sorts
// steps by a stable content key first so two semantically identical plans
// submitted with steps in a different order hash identically.
func DeriveKey(plan models.Plan, tenantID, actorID string) string {
	canonical := canonicalize(plan)
	doc := map[string]any{
		"plan":      canonical,
		"tenant_id": tenantID,
		"actor_id":  actorID,
	}
	// json.Marshal on a map[string]any sorts keys alphabetically, giving a
	// deterministic byte stream independent of insertion order.
	b, err := json.Marshal(doc)
	if err != nil {
		// Plan input is always pre-validated structured JSON by this point;
		// a marshal failure here means a caller bug, not a runtime condition
		// to recover from.
		panic("idempotency: canonical plan failed to marshal: " + err.Error())
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// DerivePlanHash computes the stable hash of the canonical plan alone,
// without the tenant/actor scoping DeriveKey adds. Stored as
// Execution.PlanHash and stamped onto the Approval gate, which must still
// match at approval time.
func DerivePlanHash(plan models.Plan) string {
	b, err := json.Marshal(canonicalize(plan))
	if err != nil {
		panic("idempotency: canonical plan failed to marshal: " + err.Error())
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func canonicalize(plan models.Plan) map[string]any {
	steps := make([]map[string]any, len(plan.Steps))
	for i, st := range plan.Steps {
		steps[i] = canonicalizeStep(st)
	}
	if plan.OrderIndependent {
		sort.Slice(steps, func(i, j int) bool {
			ki, _ := json.Marshal(steps[i])
			kj, _ := json.Marshal(steps[j])
			return string(ki) < string(kj)
		})
	}
	return map[string]any{
		"name":  plan.Name,
		"steps": steps,
	}
}

func canonicalizeStep(st models.StepDef) map[string]any {
	required := append([]string(nil), st.RequiredAssets...)
	sort.Strings(required)
	return map[string]any{
		"type":            st.Type,
		"target_asset_id": st.TargetAssetID,
		"target_hostname": st.TargetHostname,
		"input":           st.Input,
		"max_retries":     st.MaxRetries,
		"critical":        st.Critical,
		"action":          st.Action,
		"environment":     st.Environment,
		"required_assets": required,
	}
}
