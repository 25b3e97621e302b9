package engine

import (
	"testing"

	"github.com/codeready-toolchain/execution-core/pkg/adapters"
	"github.com/codeready-toolchain/execution-core/pkg/models"
)

func TestClassify_DeclaredTypeWins(t *testing.T) {
	step := models.StepDef{Type: models.StepHTTP, Input: map[string]any{"command": "ls"}}
	if got := Classify(step, nil); got != models.StepHTTP {
		t.Fatalf("expected declared type to win, got %s", got)
	}
}

func TestClassify_UnknownDeclaredTypeFallsThroughToShape(t *testing.T) {
	step := models.StepDef{Type: "bogus", Input: map[string]any{"url": "http://x"}}
	if got := Classify(step, nil); got != models.StepHTTP {
		t.Fatalf("expected shape fallback to http, got %s", got)
	}
}

func TestClassify_ShapeDetection(t *testing.T) {
	cases := []struct {
		name  string
		input map[string]any
		want  models.StepType
	}{
		{"query", map[string]any{"query": map[string]any{}}, models.StepAssetQuery},
		{"assertions", map[string]any{"assertions": []any{}}, models.StepValidation},
		{"url", map[string]any{"url": "http://x"}, models.StepHTTP},
		{"script", map[string]any{"script": "Get-Process"}, models.StepRemotePowerShell},
		{"file-op", map[string]any{"path": "/tmp/x", "content": "hi"}, models.StepFileOp},
		{"command", map[string]any{"command": "ls"}, models.StepRemoteShell},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Classify(models.StepDef{Input: c.input}, nil)
			if got != c.want {
				t.Fatalf("expected %s, got %s", c.want, got)
			}
		})
	}
}

func TestClassify_OSFallbackWhenNoShapeMatches(t *testing.T) {
	step := models.StepDef{Input: map[string]any{"unrecognized": true}}
	if got := Classify(step, &adapters.Asset{OS: "windows"}); got != models.StepRemotePowerShell {
		t.Fatalf("expected windows asset to fall back to remote-powershell, got %s", got)
	}
	if got := Classify(step, &adapters.Asset{OS: "linux"}); got != models.StepRemoteShell {
		t.Fatalf("expected linux asset to fall back to remote-shell, got %s", got)
	}
}

func TestClassify_FinalFallbackIsLocalCommand(t *testing.T) {
	step := models.StepDef{Input: map[string]any{"unrecognized": true}}
	if got := Classify(step, nil); got != models.StepLocalCommand {
		t.Fatalf("expected local-command fallback, got %s", got)
	}
	if got := Classify(step, &adapters.Asset{OS: "plan9"}); got != models.StepLocalCommand {
		t.Fatalf("expected local-command fallback for unknown OS, got %s", got)
	}
}
