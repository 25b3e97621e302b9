package masking

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// resolvedPatterns holds the resolved set of maskers and patterns for one
// masking operation.
type resolvedPatterns struct {
	codeMaskerNames []string
	regexPatterns   []*CompiledPattern
}

// compileBuiltinPatterns compiles every built-in regex pattern. Invalid
// patterns are logged and skipped rather than failing startup.
func (s *Service) compileBuiltinPatterns() {
	for name, p := range builtinPatterns {
		compiled, err := regexp.Compile(p.Pattern)
		if err != nil {
			slog.Error("failed to compile built-in masking pattern, skipping",
				"pattern", name, "error", err)
			continue
		}
		s.patterns[name] = &CompiledPattern{
			Name:        name,
			Regex:       compiled,
			Replacement: p.Replacement,
			Description: p.Description,
		}
	}
}

// compileConfiguredPatterns compiles the operator-supplied custom patterns
// from config.MaskingConfig.CustomPatterns, keyed by position.
func (s *Service) compileConfiguredPatterns() {
	for i, p := range s.cfg.CustomPatterns {
		name := fmt.Sprintf("custom:configured:%d", i)
		compiled, err := regexp.Compile(p.Pattern)
		if err != nil {
			slog.Error("failed to compile configured masking pattern, skipping",
				"pattern", name, "error", err)
			continue
		}
		s.patterns[name] = &CompiledPattern{
			Name:        name,
			Regex:       compiled,
			Replacement: p.Replacement,
			Description: p.Description,
		}
	}
}

// RegisterCustomPattern compiles and registers a pattern at runtime, keyed
// as "custom:{name}". The escape hatch for callers (e.g. a per-tenant
// override) that can't wait for a config reload.
func (s *Service) RegisterCustomPattern(name, pattern, replacement string) error {
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compiling custom masking pattern %q: %w", name, err)
	}
	s.mu.Lock()
	s.patterns["custom:"+name] = &CompiledPattern{
		Name:        "custom:" + name,
		Regex:       compiled,
		Replacement: replacement,
		Description: "runtime-registered custom pattern",
	}
	s.mu.Unlock()
	return nil
}

// resolvePatterns expands the service's configured pattern groups (plus the
// opt-in PII group, plus any configured custom patterns) into a
// deduplicated resolvedPatterns.
func (s *Service) resolvePatterns() *resolvedPatterns {
	seen := make(map[string]bool)
	resolved := &resolvedPatterns{}

	groups := s.cfg.PatternGroups
	if len(groups) == 0 {
		groups = []string{"baseline"}
	}
	if s.cfg.MaskPII && !slices.Contains(groups, "pii") {
		groups = append(groups, "pii")
	}

	for _, groupName := range groups {
		for _, name := range builtinPatternGroups[groupName] {
			s.addToResolved(resolved, name, seen)
		}
	}
	for i := range s.cfg.CustomPatterns {
		s.addToResolved(resolved, fmt.Sprintf("custom:configured:%d", i), seen)
	}

	s.mu.RLock()
	for name, cp := range s.patterns {
		if len(name) > 7 && name[:7] == "custom:" && !seen[name] {
			seen[name] = true
			resolved.regexPatterns = append(resolved.regexPatterns, cp)
		}
	}
	s.mu.RUnlock()

	return resolved
}

func (s *Service) addToResolved(resolved *resolvedPatterns, name string, seen map[string]bool) {
	if seen[name] {
		return
	}
	seen[name] = true

	if slices.Contains(codeMaskerNames, name) {
		resolved.codeMaskerNames = append(resolved.codeMaskerNames, name)
		return
	}

	s.mu.RLock()
	cp, ok := s.patterns[name]
	s.mu.RUnlock()
	if ok {
		resolved.regexPatterns = append(resolved.regexPatterns, cp)
	}
}
