package walker

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoredDirs are directory names that are never descended into. Matching is
// by exact name, so "src/builder" is walked while "build" is not.
var IgnoredDirs = []string{
	"node_modules",
	".git",
	".next",
	"dist",
	"build",
	"coverage",
	"__pycache__",
	"venv",
	".env",
	".DS_Store",
	".clove",
}

func isIgnoredDir(name string) bool {
	return slices.Contains(IgnoredDirs, name)
}

func isDotfile(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

func isAllowedDotfile(name string, allowed []string) bool {
	return slices.Contains(allowed, name)
}

// MatchesInclude returns true if the given relative path matches any of the
// include patterns. If patterns is empty, everything is included.
func MatchesInclude(relPath string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	return matchesAny(relPath, patterns)
}

// MatchesExclude returns true if the given relative path matches any of the
// exclude patterns. If patterns is empty, nothing is excluded.
func MatchesExclude(relPath string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	return matchesAny(relPath, patterns)
}

// matchesAny checks relPath and its base name against doublestar patterns.
func matchesAny(relPath string, patterns []string) bool {
	normalized := filepath.ToSlash(relPath)
	base := filepath.Base(normalized)

	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)

		if matched, err := doublestar.Match(pattern, normalized); err == nil && matched {
			return true
		}
		if matched, err := doublestar.Match(pattern, base); err == nil && matched {
			return true
		}
	}
	return false
}
