package vectorindex

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/chunktype"
)

// authMethodPattern approximates "a method whose text matches an
// auth-method pattern" from the importance table: method bodies that
// call into login/authenticate/authorize-shaped APIs.
var authMethodPattern = regexp.MustCompile(`(?i)\b(authenticate|authorize|login|signin|verifytoken|checkpermission)\b`)

// importanceHint is one row of the table below, evaluated in order.
type importanceHint struct {
	match  func(path string, c *chunktype.Chunk) bool
	weight float32
}

// importanceTable is reproduced verbatim from the re-ranking design
// notes: rows are evaluated top to bottom and the first match wins, so
// its order is itself part of the contract, not just its contents.
var importanceTable = []importanceHint{
	{weight: 1.50, match: func(path string, c *chunktype.Chunk) bool {
		base := strings.ToLower(filepath.Base(path))
		dir := strings.ToLower(filepath.Dir(path))
		return containsAny(base, "auth", "login", "security") || containsAny(dir, "identity", "auth", "security")
	}},
	{weight: 1.40, match: func(path string, c *chunktype.Chunk) bool {
		base := strings.ToLower(filepath.Base(path))
		return strings.HasPrefix(base, "program.") || strings.HasPrefix(base, "startup.")
	}},
	{weight: 1.30, match: func(path string, c *chunktype.Chunk) bool {
		return containsAny(strings.ToLower(filepath.Base(path)), "appsettings", "config")
	}},
	{weight: 1.20, match: func(path string, c *chunktype.Chunk) bool {
		dir := strings.ToLower(filepath.Dir(path))
		base := strings.ToLower(filepath.Base(path))
		return strings.Contains(dir, "controllers") || strings.Contains(base, "controller")
	}},
	{weight: 1.15, match: func(path string, c *chunktype.Chunk) bool {
		dir := strings.ToLower(filepath.Dir(path))
		return containsAny(dir, "services", "handlers")
	}},
	{weight: 1.10, match: func(path string, c *chunktype.Chunk) bool {
		dir := strings.ToLower(filepath.Dir(path))
		return containsAny(dir, "models", "entities")
	}},
	{weight: 1.10, match: func(path string, c *chunktype.Chunk) bool {
		dir := strings.ToLower(filepath.Dir(path))
		base := strings.ToLower(filepath.Base(path))
		return isComponentFile(base) || strings.Contains(dir, "components")
	}},
	{weight: 0.80, match: func(path string, c *chunktype.Chunk) bool {
		dir := strings.ToLower(filepath.Dir(path))
		return containsAny(dir, "test", "spec")
	}},
	{weight: 0.70, match: func(path string, c *chunktype.Chunk) bool {
		return c != nil && c.Kind == chunktype.KindGenerated
	}},
	{weight: 1.50, match: func(path string, c *chunktype.Chunk) bool {
		return c != nil && hasSuffix(c.Kind, chunktype.SuffixAuth)
	}},
	{weight: 1.40, match: func(path string, c *chunktype.Chunk) bool {
		return c != nil && hasSuffix(c.Kind, chunktype.SuffixSecurity)
	}},
	{weight: 1.30, match: func(path string, c *chunktype.Chunk) bool {
		return c != nil && hasSuffix(c.Kind, chunktype.SuffixConfig)
	}},
	{weight: 1.20, match: func(path string, c *chunktype.Chunk) bool {
		if c == nil {
			return false
		}
		base, suffix := c.Kind.Split()
		return base == chunktype.KindClass && suffix == chunktype.SuffixController
	}},
	{weight: 1.15, match: func(path string, c *chunktype.Chunk) bool {
		if c == nil {
			return false
		}
		base, suffix := c.Kind.Split()
		return base == chunktype.KindClass && suffix == chunktype.SuffixService
	}},
	{weight: 1.30, match: func(path string, c *chunktype.Chunk) bool {
		if c == nil {
			return false
		}
		base, _ := c.Kind.Split()
		return (base == chunktype.KindMethod || base == chunktype.KindMethodBody) && authMethodPattern.MatchString(c.Text)
	}},
	{weight: 1.10, match: func(path string, c *chunktype.Chunk) bool {
		if c == nil {
			return false
		}
		base, _ := c.Kind.Split()
		return base == chunktype.KindClass || base == chunktype.KindInterface
	}},
	{weight: 0.90, match: func(path string, c *chunktype.Chunk) bool {
		return c != nil && c.Kind == chunktype.KindSlidingWindow
	}},
	{weight: 0.80, match: func(path string, c *chunktype.Chunk) bool {
		return c != nil && c.Kind == chunktype.KindGenerated
	}},
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func isComponentFile(base string) bool {
	return strings.HasSuffix(base, ".component.ts") || strings.HasSuffix(base, ".component.tsx") ||
		strings.Contains(base, "component")
}

func hasSuffix(k chunktype.Kind, s chunktype.Suffix) bool {
	_, suffix := k.Split()
	return suffix == s
}

// importance evaluates the table in order, returning the first match's
// weight or 1.0 ("otherwise") when nothing matches.
func importance(path string, c *chunktype.Chunk) float32 {
	for _, hint := range importanceTable {
		if hint.match(path, c) {
			return hint.weight
		}
	}
	return 1.0
}

// recencyWeight buckets a modification time per the re-ranking formula:
// 1.1 within 7 days, 1.05 within 30, 1.0 within 90, 0.95 otherwise.
func recencyWeight(modTime, now time.Time) float32 {
	age := now.Sub(modTime)
	switch {
	case age <= 7*24*time.Hour:
		return 1.1
	case age <= 30*24*time.Hour:
		return 1.05
	case age <= 90*24*time.Hour:
		return 1.0
	default:
		return 0.95
	}
}

// combinedScore implements `0.7*cos + 0.2*(cos*importance) + 0.1*(cos*recency)`.
func combinedScore(cos, imp, rec float32) float32 {
	return 0.7*cos + 0.2*(cos*imp) + 0.1*(cos*rec)
}
