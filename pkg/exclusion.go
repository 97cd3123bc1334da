package bitwatch

import (
	"sort"
	"strings"
)

// ExclusionIndex answers "is this relative path excluded" for one root. It
// is built fresh from the persisted rules at the start of each run and is
// not updated afterwards.
type ExclusionIndex struct {
	rules []string
}

// NewExclusionIndex creates an index from persisted rules. Rules are
// normalised and deduplicated; order does not matter.
func NewExclusionIndex(rules []ExclusionRule) *ExclusionIndex {
	seen := make(map[string]bool, len(rules))
	normalised := make([]string, 0, len(rules))
	for _, rule := range rules {
		p := NormaliseRelPath(rule.RelativePath)
		if seen[p] {
			continue
		}
		seen[p] = true
		normalised = append(normalised, p)
	}
	// Shortest first so Covering reports the outermost rule
	sort.Slice(normalised, func(i, j int) bool {
		if len(normalised[i]) != len(normalised[j]) {
			return len(normalised[i]) < len(normalised[j])
		}
		return normalised[i] < normalised[j]
	})
	return &ExclusionIndex{rules: normalised}
}

// IsExcluded reports whether relPath equals a rule or lies beneath one
func (x *ExclusionIndex) IsExcluded(relPath string) bool {
	_, ok := x.Covering(relPath)
	return ok
}

// Covering returns the outermost rule that excludes relPath
func (x *ExclusionIndex) Covering(relPath string) (string, bool) {
	if x == nil || len(x.rules) == 0 {
		return "", false
	}

	p := NormaliseRelPath(relPath)
	for _, rule := range x.rules {
		if rule == RootRelativePath || p == rule || strings.HasPrefix(p, rule+PathSeparator) {
			return rule, true
		}
	}
	return "", false
}

// Len returns the number of distinct rules
func (x *ExclusionIndex) Len() int {
	if x == nil {
		return 0
	}
	return len(x.rules)
}

// Rules returns the normalised rules, outermost first
func (x *ExclusionIndex) Rules() []string {
	if x == nil {
		return nil
	}
	return append([]string(nil), x.rules...)
}
