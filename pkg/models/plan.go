package models

// StepType classifies an execution step. The "unknown type ⇒ treat as
// local-command" fallback lives in one place: pkg/engine/classify.go.
type StepType string

const (
	StepRemoteShell      StepType = "remote-shell"
	StepRemotePowerShell StepType = "remote-powershell"
	StepHTTP             StepType = "http"
	StepAssetQuery       StepType = "asset-query"
	StepValidation       StepType = "validation"
	StepLocalCommand     StepType = "local-command"
	StepFileOp           StepType = "file-op"
)

// ActionClass is the coarse mutation profile of a step, used together with
// an SLAClass to look up a TimeoutPolicy.
type ActionClass string

const (
	ActionRead    ActionClass = "read"
	ActionWrite   ActionClass = "write"
	ActionComplex ActionClass = "complex"
)

// SecretRef is the structured marker for a secret reference embedded in
// plan/step input. It is the only form a secret may take inside a
// PlanSnapshot — resolution to the underlying value happens at step
// execution time (pkg/secrets), never at plan capture time.
type SecretRef struct {
	Kind string `json:"kind"` // always "secret"
	Path string `json:"path"`
}

// IsSecretRef reports whether a decoded JSON value is a SecretRef marker.
func IsSecretRef(v any) (SecretRef, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return SecretRef{}, false
	}
	kind, _ := m["kind"].(string)
	if kind != "secret" {
		return SecretRef{}, false
	}
	path, _ := m["path"].(string)
	return SecretRef{Kind: kind, Path: path}, true
}

// StepDef is one step of a submitted plan, before execution-time expansion
// into a persisted ExecutionStep row.
type StepDef struct {
	Type           StepType       `json:"type"`
	TargetAssetID  string         `json:"target_asset_id,omitempty"`
	TargetHostname string         `json:"target_hostname,omitempty"`
	Input          map[string]any `json:"input"`
	MaxRetries     int            `json:"max_retries"`
	Critical       bool           `json:"critical"`
	Action         ActionClass    `json:"action,omitempty"`
	Environment    string         `json:"environment,omitempty"`
	RequiredAssets []string       `json:"required_assets,omitempty"` // extra assets to lock beyond the target
	Validation     *StepValidation `json:"validation,omitempty"`
}

// StepValidation describes the assertions applied after an adapter call
// completes; a step may succeed at the adapter level yet still fail
// validation.
type StepValidation struct {
	ExpectedExitCode  *int     `json:"expected_exit_code,omitempty"`
	RequiredOutputs   []string `json:"required_output_contains,omitempty"`
	ExpectedStatusMin int      `json:"expected_status_min,omitempty"` // HTTP steps
	ExpectedStatusMax int      `json:"expected_status_max,omitempty"`
}

// Plan is the ordered list of steps submitted as one unit, along with the
// flags the Idempotency Guard needs for canonicalization.
type Plan struct {
	Steps             []StepDef `json:"steps"`
	OrderIndependent  bool      `json:"order_independent,omitempty"`
	Name              string    `json:"name,omitempty"`
}
