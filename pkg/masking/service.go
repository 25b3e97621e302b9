package masking

import (
	"log/slog"
	"sync"

	"github.com/codeready-toolchain/execution-core/pkg/config"
)

// Service applies data masking to execution output: adapter stdout/stderr
// before it's stored or echoed, and structured log values at the output-sink
// boundary (see Handler in handler.go). Created once at application startup
// and safe for concurrent use; configured by a single process-wide
// config.MaskingConfig plus a runtime RegisterCustomPattern escape hatch.
type Service struct {
	cfg         *config.MaskingConfig
	mu          sync.RWMutex
	patterns    map[string]*CompiledPattern
	codeMaskers map[string]Masker
}

// NewService creates a masking service with every built-in and configured
// pattern compiled eagerly. Invalid patterns are logged and skipped rather
// than failing startup.
func NewService(cfg *config.MaskingConfig) *Service {
	if cfg == nil {
		cfg = config.DefaultMaskingConfig()
	}
	s := &Service{
		cfg:         cfg,
		patterns:    make(map[string]*CompiledPattern),
		codeMaskers: make(map[string]Masker),
	}

	s.compileBuiltinPatterns()
	s.compileConfiguredPatterns()
	s.registerMasker(&KubernetesSecretMasker{})

	slog.Info("masking service initialized",
		"enabled", cfg.Enabled,
		"pattern_groups", cfg.PatternGroups,
		"mask_pii", cfg.MaskPII,
		"compiled_patterns", len(s.patterns),
		"code_maskers", len(s.codeMaskers))

	return s
}

// Mask applies the configured pattern groups and code maskers to content.
// Returns content unchanged when masking is disabled or content is empty.
// On masking failure the content is redacted wholesale (fail-closed) —
// secrets escaping into a log or stored result is worse than a noisy
// placeholder.
func (s *Service) Mask(content string) string {
	if !s.cfg.Enabled || content == "" {
		return content
	}

	resolved := s.resolvePatterns()
	if len(resolved.codeMaskerNames) == 0 && len(resolved.regexPatterns) == 0 {
		return content
	}

	return s.applyMasking(content, resolved)
}

// applyMasking runs code-based maskers first (structural awareness), then
// sweeps with regex patterns.
func (s *Service) applyMasking(content string, resolved *resolvedPatterns) string {
	masked := content

	for _, maskerName := range resolved.codeMaskerNames {
		masker, ok := s.codeMaskers[maskerName]
		if !ok {
			continue
		}
		if masker.AppliesTo(masked) {
			masked = masker.Mask(masked)
		}
	}

	for _, pattern := range resolved.regexPatterns {
		masked = pattern.Regex.ReplaceAllString(masked, pattern.Replacement)
	}

	return masked
}

func (s *Service) registerMasker(m Masker) {
	s.codeMaskers[m.Name()] = m
}
