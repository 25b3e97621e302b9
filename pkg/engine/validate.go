package engine

import (
	"fmt"
	"strings"

	"github.com/codeready-toolchain/execution-core/pkg/adapters"
	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// validateResult applies a step's declared validation rules against the
// adapter result that dispatch produced. A step may succeed at the adapter
// level yet still fail here.
func validateResult(rules *models.StepValidation, res *adapters.Result) error {
	if rules == nil || res == nil {
		return nil
	}

	if rules.ExpectedExitCode != nil {
		if res.ExitCode == nil || *res.ExitCode != *rules.ExpectedExitCode {
			return fmt.Errorf("%w: expected exit code %d, got %v", ErrValidationFailed, *rules.ExpectedExitCode, res.ExitCode)
		}
	}

	for _, want := range rules.RequiredOutputs {
		if !strings.Contains(res.Stdout, want) && !strings.Contains(res.Body, want) {
			return fmt.Errorf("%w: required output %q not found", ErrValidationFailed, want)
		}
	}

	if rules.ExpectedStatusMin > 0 && res.StatusCode < rules.ExpectedStatusMin {
		return fmt.Errorf("%w: status %d below expected minimum %d", ErrValidationFailed, res.StatusCode, rules.ExpectedStatusMin)
	}
	if rules.ExpectedStatusMax > 0 && res.StatusCode > rules.ExpectedStatusMax {
		return fmt.Errorf("%w: status %d above expected maximum %d", ErrValidationFailed, res.StatusCode, rules.ExpectedStatusMax)
	}

	return nil
}
