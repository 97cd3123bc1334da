package bitwatch

import (
	"testing"
)

func rules(paths ...string) []ExclusionRule {
	out := make([]ExclusionRule, 0, len(paths))
	for _, p := range paths {
		out = append(out, ExclusionRule{RootID: 1, RelativePath: p})
	}
	return out
}

func TestExclusionIndex_IsExcluded(t *testing.T) {
	index := NewExclusionIndex(rules("cache", "photos/raw/", "a/b/c"))

	testCases := []struct {
		path string
		want bool
	}{
		{".", false},
		{"cache", true},
		{"cache/x/y", true},
		{"cached", false},
		{"photos", false},
		{"photos/raw", true},
		{"photos/raw/1.nef", true},
		{"photos/rawness", false},
		{"a/b", false},
		{"a/b/c/d", true},
	}

	for _, tc := range testCases {
		if got := index.IsExcluded(tc.path); got != tc.want {
			t.Errorf("IsExcluded(%q) = %v, expected %v", tc.path, got, tc.want)
		}
	}
}

func TestExclusionIndex_CoveringPrefersShortestRule(t *testing.T) {
	index := NewExclusionIndex(rules("a/b", "a"))

	rule, ok := index.Covering("a/b/c")
	if !ok || rule != "a" {
		t.Errorf("Expected covering rule 'a', got %q (ok=%v)", rule, ok)
	}
}

func TestExclusionIndex_Deduplicates(t *testing.T) {
	index := NewExclusionIndex(rules("x", "x/", "/x"))
	if index.Len() != 1 {
		t.Errorf("Expected 1 rule after normalisation, got %d: %v", index.Len(), index.Rules())
	}
}

func TestExclusionIndex_RootRuleExcludesEverything(t *testing.T) {
	index := NewExclusionIndex(rules("."))
	for _, path := range []string{".", "a", "a/b"} {
		if !index.IsExcluded(path) {
			t.Errorf("Expected %q to be excluded by a root rule", path)
		}
	}
}

func TestExclusionIndex_NilAndEmpty(t *testing.T) {
	var index *ExclusionIndex
	if index.IsExcluded("a") || index.Len() != 0 || index.Rules() != nil {
		t.Error("Expected nil index to exclude nothing")
	}
	if NewExclusionIndex(nil).IsExcluded("a") {
		t.Error("Expected empty index to exclude nothing")
	}
}
