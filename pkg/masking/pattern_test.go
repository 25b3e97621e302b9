package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/execution-core/pkg/config"
)

func TestCompileBuiltinPatterns(t *testing.T) {
	svc := NewService(&config.MaskingConfig{Enabled: true})

	assert.Equal(t, len(builtinPatterns), len(svc.patterns),
		"all built-in patterns should compile with no configured custom patterns")

	for name, cp := range svc.patterns {
		assert.NotNil(t, cp.Regex, "pattern %s should have compiled regex", name)
		assert.NotEmpty(t, cp.Replacement, "pattern %s should have replacement", name)
	}
}

func TestCompileConfiguredPatterns(t *testing.T) {
	svc := NewService(&config.MaskingConfig{
		Enabled: true,
		CustomPatterns: []config.MaskingPattern{
			{Pattern: `CUSTOM_SECRET_[A-Za-z0-9]+`, Replacement: "[MASKED_CUSTOM]"},
		},
	})

	assert.Equal(t, len(builtinPatterns)+1, len(svc.patterns))

	cp, exists := svc.patterns["custom:configured:0"]
	require.True(t, exists, "configured custom pattern should be registered")
	assert.Equal(t, "[MASKED_CUSTOM]", cp.Replacement)
}

func TestCompileConfiguredPatterns_InvalidRegex(t *testing.T) {
	svc := NewService(&config.MaskingConfig{
		Enabled: true,
		CustomPatterns: []config.MaskingPattern{
			{Pattern: `[invalid`, Replacement: "[MASKED]"},
			{Pattern: `valid_pattern`, Replacement: "[MASKED_VALID]"},
		},
	})

	_, invalidExists := svc.patterns["custom:configured:0"]
	assert.False(t, invalidExists, "invalid regex pattern should be skipped")

	_, validExists := svc.patterns["custom:configured:1"]
	assert.True(t, validExists, "valid pattern should be compiled")
}

func TestRegisterCustomPattern(t *testing.T) {
	svc := NewService(&config.MaskingConfig{Enabled: true})

	err := svc.RegisterCustomPattern("runtime_test", `RUNTIME_[0-9]+`, "[MASKED_RUNTIME]")
	require.NoError(t, err)

	cp, ok := svc.patterns["custom:runtime_test"]
	require.True(t, ok)
	assert.Equal(t, "[MASKED_RUNTIME]", cp.Replacement)

	err = svc.RegisterCustomPattern("bad", `[invalid`, "[MASKED]")
	assert.Error(t, err)
}

func TestResolvePatterns_GroupExpansion(t *testing.T) {
	tests := []struct {
		name           string
		groups         []string
		minRegex       int
		hasCodeMaskers bool
	}{
		{name: "baseline group", groups: []string{"baseline"}, minRegex: 3},
		{name: "secrets group", groups: []string{"secrets"}, minRegex: 5},
		{name: "security group", groups: []string{"security"}, minRegex: 7},
		{name: "kubernetes group", groups: []string{"kubernetes"}, minRegex: 3, hasCodeMaskers: true},
		{name: "cloud group", groups: []string{"cloud"}, minRegex: 3},
		{name: "all group", groups: []string{"all"}, minRegex: 14},
		{name: "multiple groups with dedup", groups: []string{"baseline", "secrets"}, minRegex: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&config.MaskingConfig{Enabled: true, PatternGroups: tt.groups})
			resolved := svc.resolvePatterns()

			assert.GreaterOrEqual(t, len(resolved.regexPatterns), tt.minRegex,
				"should have at least %d regex patterns", tt.minRegex)

			if tt.hasCodeMaskers {
				assert.Contains(t, resolved.codeMaskerNames, "kubernetes_secret")
			}
		})
	}
}

func TestResolvePatterns_DefaultsToBaseline(t *testing.T) {
	svc := NewService(&config.MaskingConfig{Enabled: true})
	resolved := svc.resolvePatterns()
	assert.NotEmpty(t, resolved.regexPatterns)
}

func TestResolvePatterns_UnknownGroup(t *testing.T) {
	svc := NewService(&config.MaskingConfig{Enabled: true, PatternGroups: []string{"nonexistent_group"}})
	resolved := svc.resolvePatterns()

	assert.Empty(t, resolved.regexPatterns)
	assert.Empty(t, resolved.codeMaskerNames)
}

func TestResolvePatterns_MaskPIIAddsPIIGroup(t *testing.T) {
	without := NewService(&config.MaskingConfig{Enabled: true, PatternGroups: []string{"baseline"}})
	withPII := NewService(&config.MaskingConfig{Enabled: true, PatternGroups: []string{"baseline"}, MaskPII: true})

	rWithout := without.resolvePatterns()
	rWith := withPII.resolvePatterns()

	assert.Greater(t, len(rWith.regexPatterns), len(rWithout.regexPatterns))
}

func TestResolvePatterns_Deduplication(t *testing.T) {
	svc := NewService(&config.MaskingConfig{Enabled: true, PatternGroups: []string{"baseline", "secrets"}})
	resolved := svc.resolvePatterns()

	count := 0
	for _, p := range resolved.regexPatterns {
		if p.Name == "password" {
			count++
		}
	}
	assert.Equal(t, 1, count, "password should appear only once across overlapping groups")
}
