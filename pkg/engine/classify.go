package engine

import (
	"github.com/codeready-toolchain/execution-core/pkg/adapters"
	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// knownStepTypes is the set of step types the engine can dispatch, checked
// before trusting a plan's declared type.
var knownStepTypes = map[models.StepType]bool{
	models.StepRemoteShell:      true,
	models.StepRemotePowerShell: true,
	models.StepHTTP:             true,
	models.StepAssetQuery:       true,
	models.StepValidation:       true,
	models.StepLocalCommand:     true,
	models.StepFileOp:           true,
}

// shapeDetector maps a set of input-shape keys to the step type whose input
// looks that way. Checked in order so a more specific shape (e.g. "script"
// for PowerShell) is tried before a more generic one (e.g. "command").
type shapeDetector struct {
	keys []string
	typ  models.StepType
}

var shapeDetectors = []shapeDetector{
	{keys: []string{"query"}, typ: models.StepAssetQuery},
	{keys: []string{"assertions"}, typ: models.StepValidation},
	{keys: []string{"url"}, typ: models.StepHTTP},
	{keys: []string{"script"}, typ: models.StepRemotePowerShell},
	{keys: []string{"path", "content"}, typ: models.StepFileOp},
	{keys: []string{"command"}, typ: models.StepRemoteShell},
}

// osFallback routes a step with no declared type and no recognizable input
// shape to a transport based on the target asset's operating system.
var osFallback = map[string]models.StepType{
	"windows": models.StepRemotePowerShell,
	"linux":   models.StepRemoteShell,
	"darwin":  models.StepRemoteShell,
}

// Classify resolves the step type to dispatch: declared type, then input
// shape, then target OS metadata, with an unconditional fallback to
// local-command. The unknown-type fallback lives in exactly this one place.
func Classify(step models.StepDef, asset *adapters.Asset) models.StepType {
	if step.Type != "" && knownStepTypes[step.Type] {
		return step.Type
	}

	for _, d := range shapeDetectors {
		if hasAllKeys(step.Input, d.keys) {
			return d.typ
		}
	}

	if asset != nil {
		if t, ok := osFallback[asset.OS]; ok {
			return t
		}
	}

	return models.StepLocalCommand
}

// DefaultActionClass resolves a step's dispatch type the same way Run does
// (declared type, then input shape — asset OS metadata isn't available yet
// at submission time, so that leg of Classify is skipped) and derives its
// ActionClass from it via the same defaultAction rule the engine itself
// uses mid-run. This is what satisfies the StepClassifier callback
// pkg/timeoutpolicy.Table.ExecutionTimeout and pkg/stagee.Executor take,
// keeping submission-time timeout estimates consistent with the
// action-class lookup Run performs per step.
func DefaultActionClass(step models.StepDef) models.ActionClass {
	return defaultAction(step, Classify(step, nil))
}

func hasAllKeys(input map[string]any, keys []string) bool {
	if input == nil {
		return false
	}
	for _, k := range keys {
		if _, ok := input[k]; !ok {
			return false
		}
	}
	return true
}
