// Package ignorerules applies the engine's fixed ignore rules: directory
// names, file extensions, wildcard patterns, and a size ceiling. Unlike a
// general .gitignore matcher, the rule set here is closed and
// configuration-free beyond the size ceiling, so that two processes
// sharing the same build always agree on every path.
package ignorerules

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MaxFileSize is the size ceiling above which a file is ignored regardless
// of name. A file of exactly this many bytes is NOT ignored.
const MaxFileSize = 1 << 20 // 1 MiB

// defaultDirs are directory-segment rules: a path is ignored when its
// normalized relative form starts with, or contains, the segment wrapped
// in path separators.
var defaultDirs = []string{
	"bin", "obj", "packages", "testresults", "node_modules", "dist", "build",
	".git", ".vs", "migrations",
}

// defaultDirPrefixes are directory-segment rules matched by prefix rather
// than exact equality, mirroring the "_ReSharper*" wildcard-directory rule.
var defaultDirPrefixes = []string{"_resharper"}

// defaultExts are case-insensitive suffix rules.
var defaultExts = []string{
	".dll", ".exe", ".pdb", ".cache", ".user", ".suo", ".min.js", ".min.css",
}

// Matcher holds the compiled rule set and answers ignore decisions.
// It is safe for concurrent use; RWMutex guards only the (static) rule
// slices so that a future caller extending the rule set at runtime does
// not race readers.
type Matcher struct {
	mu          sync.RWMutex
	dirs        []string
	dirPrefixes []string
	exts        []string
	// wildcards holds pre/post substrings split on the first '*'.
	wildcards []wildcardRule
	maxSize   int64
}

type wildcardRule struct {
	pre  string
	post string
}

// New returns a Matcher configured with the engine's built-in rules.
func New() *Matcher {
	m := &Matcher{
		dirs:        append([]string(nil), defaultDirs...),
		dirPrefixes: append([]string(nil), defaultDirPrefixes...),
		exts:        append([]string(nil), defaultExts...),
		maxSize:     MaxFileSize,
	}
	return m
}

// AddWildcard registers an additional wildcard rule such as "*.generated.*".
// Rules are evaluated case-insensitively after directory and extension
// rules and before the size rule.
func (m *Matcher) AddWildcard(pattern string) {
	pattern = strings.ToLower(pattern)
	idx := strings.IndexByte(pattern, '*')
	if idx < 0 {
		return
	}
	m.mu.Lock()
	m.wildcards = append(m.wildcards, wildcardRule{pre: pattern[:idx], post: pattern[idx+1:]})
	m.mu.Unlock()
}

// IsIgnored reports whether path (under root) should be excluded from
// indexing. Rules are evaluated in the fixed order documented in the
// package comment; the first match wins. Failures reading the file's
// size are swallowed: the file is treated as not ignored by size.
func (m *Matcher) IsIgnored(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	lower := strings.ToLower(rel)

	if m.matchesDir(lower) {
		return true
	}
	if m.matchesExt(lower) {
		return true
	}
	if m.matchesWildcard(lower) {
		return true
	}
	return m.matchesSize(path)
}

func (m *Matcher) matchesDir(lowerRelSlash string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	segments := strings.Split(lowerRelSlash, "/")
	for _, d := range m.dirs {
		for _, seg := range segments {
			if seg == d {
				return true
			}
		}
	}
	for _, prefix := range m.dirPrefixes {
		for _, seg := range segments {
			if strings.HasPrefix(seg, prefix) {
				return true
			}
		}
	}
	return false
}

func (m *Matcher) matchesExt(lowerRelSlash string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ext := range m.exts {
		if strings.HasSuffix(lowerRelSlash, ext) {
			return true
		}
	}
	return false
}

func (m *Matcher) matchesWildcard(lowerRelSlash string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, w := range m.wildcards {
		matched := true
		for _, piece := range append([]string{w.pre}, strings.Split(w.post, "*")...) {
			if piece != "" && !strings.Contains(lowerRelSlash, piece) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func (m *Matcher) matchesSize(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() > m.maxSize
}
