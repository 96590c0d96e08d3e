package chunk

import (
	"fmt"
	"strings"
)

// smartTruncate shortens text to at most maxSize characters, cutting at a
// line boundary and appending a marker recording the original size and
// the reason. When even the first line plus the marker would overflow,
// it falls back to signature-only (first line + marker).
func smartTruncate(text string, maxSize int, reason string) string {
	if len(text) <= maxSize {
		return text
	}

	marker := fmt.Sprintf("// ... truncated (original %d chars, reason: %s)", len(text), reason)
	lines := strings.Split(text, "\n")
	budget := maxSize - len(marker) - 1

	if budget <= len(lines[0]) {
		return lines[0] + "\n" + marker
	}

	used, cut := 0, 0
	for i, ln := range lines {
		next := used + len(ln) + 1
		if next > budget {
			break
		}
		used = next
		cut = i + 1
	}
	if cut == 0 {
		cut = 1
	}
	return strings.Join(lines[:cut], "\n") + "\n" + marker
}

// window is one sliding-window slice of a larger text.
type window struct {
	StartLine int // 1-indexed, relative to the text's own first line == startLineOffset
	EndLine   int
	Text      string
}

// slidingWindows splits text into overlapping windows of roughly target
// characters, breaking preferentially at a goodBreakPoint line.
// startLineOffset is the 1-indexed line number of text's first line
// within the original file.
func slidingWindows(text string, startLineOffset int, target int, overlapRatio float64, overlapMaxLines int) []window {
	if target <= 0 {
		target = 2000
	}
	lines := strings.Split(text, "\n")
	if len(lines) == 0 {
		return nil
	}

	var windows []window
	i := 0
	for i < len(lines) {
		end := i
		size := 0
		// Grow the window until it reaches the target size.
		for end < len(lines) && (size < target || end == i) {
			size += len(lines[end]) + 1
			end++
		}

		// Prefer to cut at a good breaking point within the last few lines.
		cut := end
		if cut < len(lines) {
			for back := 0; back < 5 && cut-1-back > i; back++ {
				if isGoodBreakPoint(lines[cut-1-back]) {
					cut = cut - back
					break
				}
			}
		}
		if cut <= i {
			cut = end
		}

		chunkLines := lines[i:cut]
		windows = append(windows, window{
			StartLine: startLineOffset + i,
			EndLine:   startLineOffset + cut - 1,
			Text:      strings.Join(chunkLines, "\n"),
		})

		if cut >= len(lines) {
			break
		}

		overlap := int(float64(cut-i) * overlapRatio)
		if overlap > overlapMaxLines {
			overlap = overlapMaxLines
		}
		next := cut - overlap
		if next <= i {
			next = cut
		}
		i = next
	}
	return windows
}

// goodBreakKeywords are control-flow and declaration keywords that make a
// line a reasonable window boundary (checked as the line's first token).
var goodBreakKeywords = map[string]struct{}{
	"if": {}, "for": {}, "while": {}, "switch": {}, "case": {}, "else": {},
	"func": {}, "def": {}, "class": {}, "struct": {}, "interface": {}, "type": {},
	"var": {}, "const": {}, "return": {},
}

// isGoodBreakPoint reports whether line is a blank line, a comment, a
// brace-only line, a region marker, or starts with a control-flow or
// declaration keyword: the preferred sliding-window boundary.
func isGoodBreakPoint(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || trimmed == "{" || trimmed == "}" {
		return true
	}
	if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "/*") {
		return true
	}
	if strings.HasPrefix(trimmed, "#region") || strings.HasPrefix(trimmed, "#endregion") ||
		strings.HasPrefix(trimmed, "// region") || strings.HasPrefix(trimmed, "// endregion") {
		return true
	}
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return false
	}
	_, ok := goodBreakKeywords[fields[0]]
	return ok
}
