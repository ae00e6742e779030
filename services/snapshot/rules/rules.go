// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rules decides archive membership for project paths.
//
// A RuleSet holds ordered include and exclude glob patterns. Excludes are
// evaluated first and win unconditionally: a path matching any exclude
// pattern is never included, no matter how many include patterns it also
// matches. Patterns use glob syntax with ** for recursive matching and
// operate on slash-separated paths relative to the project root.
//
// Matching is case-sensitive on Unix-like hosts and case-insensitive on
// Windows, following the host filesystem convention.
//
// Thread Safety: RuleSet is immutable after creation and safe for
// concurrent use.
package rules

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIncludes lists the KiCad design files worth archiving: project,
// schematic, board, symbol, footprint, rule and worksheet files, plus the
// project-local library tables.
var DefaultIncludes = []string{
	"**/*.kicad_pro",
	"**/*.kicad_sch",
	"**/*.kicad_pcb",
	"**/*.kicad_sym",
	"**/*.kicad_mod",
	"**/*.kicad_dru",
	"**/*.kicad_wks",
	"**/fp-lib-table",
	"**/sym-lib-table",
	"**/design-block-lib-table",
}

// SafetyExcludes are always in force. They cover version-control metadata,
// virtual environments, generated caches, and compressed/backup/log/temp
// files. A RuleSet may grow beyond these but can never drop them.
var SafetyExcludes = []string{
	"**/.git",
	"**/.git/**",
	"**/.svn",
	"**/.svn/**",
	"**/.hg",
	"**/.hg/**",
	"**/__pycache__",
	"**/__pycache__/**",
	"**/.venv",
	"**/.venv/**",
	"**/venv",
	"**/venv/**",
	"**/node_modules",
	"**/node_modules/**",
	"**/*-backups",
	"**/*-backups/**",
	"**/snapshot_backups",
	"**/snapshot_backups/**",
	"**/*.zip",
	"**/*.gz",
	"**/*.7z",
	"**/*.rar",
	"**/*.bak",
	"**/*.log",
	"**/*.tmp",
	"**/*~",
	"**/_autosave-*",
	"**/*.lck",
	"**/.~lock.*",
}

// foldCase controls case-insensitive matching, following the host
// filesystem convention.
var foldCase = runtime.GOOS == "windows"

// RuleSet is an ordered pair of include and exclude patterns with
// exclude-wins semantics.
type RuleSet struct {
	includes []string
	excludes []string
}

// Default returns the fixed default rule set: the KiCad design-file
// whitelist over the safety excludes.
func Default() *RuleSet {
	return New(DefaultIncludes, nil)
}

// New creates a rule set from the given patterns. The safety excludes are
// always appended; they cannot be shrunk away.
//
// If includes is empty, every path not excluded is included.
func New(includes, excludes []string) *RuleSet {
	r := &RuleSet{
		includes: append([]string(nil), includes...),
		excludes: append([]string(nil), excludes...),
	}
	r.excludes = append(r.excludes, SafetyExcludes...)
	return r
}

// Extend returns a new rule set with additional patterns. The receiver is
// not modified.
func (r *RuleSet) Extend(includes, excludes []string) *RuleSet {
	out := &RuleSet{
		includes: append(append([]string(nil), r.includes...), includes...),
		excludes: append(append([]string(nil), r.excludes...), excludes...),
	}
	return out
}

// Includes returns a copy of the include patterns.
func (r *RuleSet) Includes() []string {
	return append([]string(nil), r.includes...)
}

// Excludes returns a copy of the exclude patterns, safety excludes last.
func (r *RuleSet) Excludes() []string {
	return append([]string(nil), r.excludes...)
}

// ShouldInclude reports whether the relative path belongs in an archive.
//
// Excludes are checked first; any match rejects the path unconditionally.
// Otherwise the path is included iff it matches at least one include
// pattern (or the include list is empty).
//
// The path may use either separator; it is normalized to slashes.
func (r *RuleSet) ShouldInclude(relPath string) bool {
	path := normalize(relPath)
	if path == "" {
		return false
	}

	for _, pattern := range r.excludes {
		if matchGlob(pattern, path) {
			return false
		}
	}

	if len(r.includes) == 0 {
		return true
	}
	for _, pattern := range r.includes {
		if matchGlob(pattern, path) {
			return true
		}
	}
	return false
}

// PruneDir reports whether a directory at the given relative path is
// excluded as a whole, so a walker can skip it without descending.
// Excluded trees never contribute archive entries even when individual
// files inside them would match an include pattern.
func (r *RuleSet) PruneDir(relPath string) bool {
	path := normalize(relPath)
	if path == "" {
		return false
	}

	for _, pattern := range r.excludes {
		if matchGlob(pattern, path) {
			return true
		}
		// A pattern like "**/.git/**" also names the directory itself.
		if trimmed, ok := strings.CutSuffix(pattern, "/**"); ok && matchGlob(trimmed, path) {
			return true
		}
	}
	return false
}

// normalize converts a path to clean slash form for matching.
func normalize(path string) string {
	s := filepath.ToSlash(path)
	s = strings.Trim(s, "/")
	if foldCase {
		s = strings.ToLower(s)
	}
	return s
}

// matchGlob matches one pattern against a normalized path. Malformed
// patterns never match.
func matchGlob(pattern, path string) bool {
	if foldCase {
		pattern = strings.ToLower(pattern)
	}
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}
