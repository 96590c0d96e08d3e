// Package gitignore matches paths against gitignore-syntax patterns
// (https://git-scm.com/docs/gitignore). The watcher layers these
// patterns on top of the engine's fixed ignore rules so that a
// project's own .gitignore, and any exclude globs from configuration,
// are honored without widening the fixed rule set's determinism
// guarantee.
package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// compiled is one pattern after parsing: its regex plus the modifiers
// the gitignore grammar encodes in prefix/suffix characters.
type compiled struct {
	source string
	re     *regexp.Regexp
	// negated re-includes what an earlier pattern excluded ("!pattern").
	negated bool
	// dirOnly matches directories and everything under them ("pattern/").
	dirOnly bool
	// anchored pins the pattern to the base (leading or inner "/").
	anchored bool
	// base is non-empty for patterns from a nested gitignore file.
	base string
}

// Matcher holds an ordered pattern list; later patterns override
// earlier ones, which is what makes negation work.
type Matcher struct {
	mu       sync.RWMutex
	patterns []compiled
}

// New returns an empty Matcher.
func New() *Matcher {
	return &Matcher{}
}

// AddPattern appends one pattern applying from the matcher's root.
func (m *Matcher) AddPattern(pattern string) {
	m.AddPatternWithBase(pattern, "")
}

// AddPatternWithBase appends one pattern scoped under base (the
// directory holding a nested gitignore file).
func (m *Matcher) AddPatternWithBase(pattern, base string) {
	keepTrailingSpace := strings.HasSuffix(pattern, `\ `)
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return
	}
	if strings.HasPrefix(pattern, "#") && !strings.HasPrefix(pattern, `\#`) {
		return
	}

	c := compiled{source: pattern, base: base}

	switch {
	case strings.HasPrefix(pattern, `\#`), strings.HasPrefix(pattern, `\!`):
		pattern = pattern[1:]
		c.source = pattern
	case strings.HasPrefix(pattern, "!"):
		c.negated = true
		pattern = pattern[1:]
	}

	if keepTrailingSpace && strings.HasSuffix(pattern, `\`) {
		pattern = strings.TrimSuffix(pattern, `\`) + " "
	}
	if strings.HasSuffix(pattern, "/") {
		c.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		c.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	}
	// An inner slash anchors too: "doc/frotz" means /doc/frotz, not
	// **/doc/frotz.
	if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") && !strings.HasPrefix(pattern, "*") {
		c.anchored = true
	}

	c.re = regexp.MustCompile("^" + translate(pattern) + "$")

	m.mu.Lock()
	m.patterns = append(m.patterns, c)
	m.mu.Unlock()
}

// AddFromFile reads a gitignore file, scoping its patterns under base.
func (m *Matcher) AddFromFile(path, base string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("gitignore: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.AddPatternWithBase(sc.Text(), base)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("gitignore: read %s: %w", path, err)
	}
	return nil
}

// Match reports whether the slash-separated relative path is ignored.
// Patterns are applied in order; the last match wins, so a negated
// pattern can re-include an earlier exclusion.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = filepath.ToSlash(path)

	m.mu.RLock()
	defer m.mu.RUnlock()

	ignored := false
	for _, c := range m.patterns {
		if c.matches(path, isDir) {
			ignored = !c.negated
		}
	}
	return ignored
}

func (c compiled) matches(path string, isDir bool) bool {
	if c.base != "" {
		switch {
		case path == c.base:
			path = filepath.Base(path)
		case strings.HasPrefix(path, c.base+"/"):
			path = strings.TrimPrefix(path, c.base+"/")
		default:
			return false
		}
	}

	segments := strings.Split(path, "/")

	if c.anchored {
		if c.re.MatchString(path) {
			return !c.dirOnly || isDir
		}
		if c.dirOnly {
			// A parent directory matching the pattern ignores the
			// whole subtree.
			for i := range segments[:len(segments)-1] {
				if c.re.MatchString(strings.Join(segments[:i+1], "/")) {
					return true
				}
			}
		}
		return false
	}

	if c.dirOnly {
		for i, seg := range segments {
			if c.re.MatchString(seg) {
				return i < len(segments)-1 || isDir
			}
		}
		return false
	}

	if c.re.MatchString(segments[len(segments)-1]) || c.re.MatchString(path) {
		return true
	}
	for _, seg := range segments {
		if c.re.MatchString(seg) {
			return true
		}
	}
	return false
}

// translate converts a gitignore glob into a regex body. "*" stops at
// slashes, "**/" crosses them, "?" is one non-slash character, and
// bracket classes pass through.
func translate(pattern string) string {
	var out strings.Builder
	for i := 0; i < len(pattern); {
		switch ch := pattern[i]; ch {
		case '*':
			if strings.HasPrefix(pattern[i:], "**/") {
				out.WriteString("(?:.*/)?")
				i += 3
				continue
			}
			if strings.HasPrefix(pattern[i:], "**") && (i == 0 || pattern[i-1] == '/') {
				out.WriteString(".*")
				i += 2
				continue
			}
			out.WriteString("[^/]*")
			i++
		case '?':
			out.WriteString("[^/]")
			i++
		case '[':
			if end := strings.IndexByte(pattern[i:], ']'); end > 0 {
				out.WriteString(pattern[i : i+end+1])
				i += end + 1
			} else {
				out.WriteString(regexp.QuoteMeta("["))
				i++
			}
		case '\\':
			if i+1 < len(pattern) {
				out.WriteString(regexp.QuoteMeta(string(pattern[i+1])))
				i += 2
			} else {
				out.WriteString(regexp.QuoteMeta(`\`))
				i++
			}
		default:
			out.WriteString(regexp.QuoteMeta(string(ch)))
			i++
		}
	}
	return out.String()
}

// ParsePatterns extracts the non-empty, non-comment lines of gitignore
// file content, in order.
func ParsePatterns(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") && !strings.HasPrefix(line, `\#`) {
			continue
		}
		out = append(out, line)
	}
	return out
}
