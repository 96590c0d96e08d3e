package chunk

import (
	"path/filepath"
	"strings"
)

// generatedNamePatterns are substrings, matched against the lowercased
// file base name, that mark a file as machine-generated regardless of
// its content.
var generatedNamePatterns = []string{
	".designer.",
	".g.",
	".g.i.",
	"assemblyinfo.",
	"assemblyattributes.",
	"reference.",
	"modelsnapshot.",
}

// generatedContentMarkers are substrings checked, case-insensitively,
// against only the first ten lines of a file.
var generatedContentMarkers = []string{
	"<auto-generated>",
	"this code was generated",
}

// IsGeneratedFile reports whether path/content looks machine-generated
// per Chunker contract: a name-pattern match, or a marker
// comment within the first ten lines.
func IsGeneratedFile(path string, content []byte) bool {
	base := strings.ToLower(filepath.Base(path))
	for _, p := range generatedNamePatterns {
		if strings.Contains(base, p) {
			return true
		}
	}

	lines := strings.Split(string(content), "\n")
	if len(lines) > 10 {
		lines = lines[:10]
	}
	for _, ln := range lines {
		low := strings.ToLower(ln)
		for _, marker := range generatedContentMarkers {
			if strings.Contains(low, marker) {
				return true
			}
		}
	}
	return false
}
