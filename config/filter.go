package config

import (
	"fmt"

	"github.com/gobwas/glob"
)

// PatternList is a compiled set of glob patterns matched against tool
// names.
type PatternList []glob.Glob

// CompilePatterns compiles patterns, naming kind in error messages.
func CompilePatterns(patterns []string, kind string) (PatternList, error) {
	globs := make(PatternList, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern %q: %w", kind, pattern, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// Matches reports whether any pattern matches name.
func (pl PatternList) Matches(name string) bool {
	for _, g := range pl {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// ToolFilter decides which tool names the model may call. Deny patterns
// win over allow patterns; an empty allow list admits everything.
type ToolFilter struct {
	allow PatternList
	deny  PatternList
}

// NewToolFilter compiles the allow and deny patterns from ToolSettings.
func NewToolFilter(settings ToolSettings) (*ToolFilter, error) {
	allow, err := CompilePatterns(settings.Allow, "allow")
	if err != nil {
		return nil, err
	}
	deny, err := CompilePatterns(settings.Deny, "deny")
	if err != nil {
		return nil, err
	}
	return &ToolFilter{allow: allow, deny: deny}, nil
}

// Allowed reports whether the named tool passes the filter.
func (f *ToolFilter) Allowed(name string) bool {
	if f == nil {
		return true
	}
	if f.deny.Matches(name) {
		return false
	}
	return len(f.allow) == 0 || f.allow.Matches(name)
}
