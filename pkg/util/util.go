// Package util holds small path helpers shared across the toolchain.
package util

import (
	"path/filepath"
	"strings"
)

// MatchesGitignore reports whether a walked path matches a gitignore-style
// pattern. A pattern never applies outside the directory tree that defines
// it, so rules from a nested ignore file stay scoped to that directory.
// Matching builds on filepath.Match, which approximates rather than fully
// reproduces gitignore semantics ("**" collapses to a single path segment).
func MatchesGitignore(pattern, patternBaseAbsPath, walkerBaseAbsPath, pathToMatchRel string, isRooted bool) bool {
	pattern = filepath.ToSlash(pattern)
	pathToMatchRel = filepath.ToSlash(pathToMatchRel)
	if pattern == "" || pathToMatchRel == "" || pathToMatchRel == "." {
		return false
	}

	pathToMatchAbs := filepath.Join(walkerBaseAbsPath, pathToMatchRel)
	relToPatternBase, err := filepath.Rel(patternBaseAbsPath, pathToMatchAbs)
	if err != nil {
		return false
	}
	relToPatternBase = filepath.ToSlash(relToPatternBase)
	if relToPatternBase == ".." || strings.HasPrefix(relToPatternBase, "../") {
		return false
	}

	if ok, _ := filepath.Match(pattern, relToPatternBase); ok {
		return true
	}
	if isRooted {
		return false
	}

	// Unrooted patterns also match at any depth below their base.
	parts := strings.Split(relToPatternBase, "/")
	for i := 1; i < len(parts); i++ {
		if ok, _ := filepath.Match(pattern, strings.Join(parts[i:], "/")); ok {
			return true
		}
	}
	return false
}
