package terminate

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const exeSuffix = ".exe"

// Matcher selects processes by executable base name. Patterns use glob syntax
// and compare case-insensitively; a trailing ".exe" is optional on literal
// patterns and on process names so one set serves every platform.
type Matcher struct {
	patterns []string
}

// NewMatcher validates and normalizes patterns.
func NewMatcher(patterns []string) (Matcher, error) {
	seen := make(map[string]struct{}, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, raw := range patterns {
		p := strings.ToLower(strings.TrimSpace(raw))
		if p == "" {
			return Matcher{}, fmt.Errorf("empty name pattern")
		}
		if strings.ContainsAny(p, `/\`) {
			return Matcher{}, fmt.Errorf("pattern %q must match an executable name, not a path", raw)
		}
		if !doublestar.ValidatePattern(p) {
			return Matcher{}, fmt.Errorf("invalid name pattern %q", raw)
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return Matcher{patterns: out}, nil
}

// MustMatcher is NewMatcher for fixed pattern sets.
func MustMatcher(patterns ...string) Matcher {
	m, err := NewMatcher(patterns)
	if err != nil {
		panic(err)
	}
	return m
}

// Empty reports whether the matcher can select anything.
func (m Matcher) Empty() bool {
	return len(m.patterns) == 0
}

// Patterns returns the normalized pattern set.
func (m Matcher) Patterns() []string {
	return append([]string(nil), m.patterns...)
}

// Match reports whether name (an executable name or path) is selected and by
// which pattern.
func (m Matcher) Match(name string) (string, bool) {
	base := strings.ToLower(filepath.Base(strings.TrimSpace(name)))
	if base == "" || base == "." {
		return "", false
	}
	names := []string{base}
	if trimmed := strings.TrimSuffix(base, exeSuffix); trimmed != base && trimmed != "" {
		names = append(names, trimmed)
	}
	for _, p := range m.patterns {
		candidates := []string{p}
		if !hasMeta(p) {
			if trimmed := strings.TrimSuffix(p, exeSuffix); trimmed != p && trimmed != "" {
				candidates = append(candidates, trimmed)
			}
		}
		for _, c := range candidates {
			for _, n := range names {
				if ok, _ := doublestar.Match(c, n); ok {
					return p, true
				}
			}
		}
	}
	return "", false
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}
