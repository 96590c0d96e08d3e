package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsGeneratedFile_NamePatterns(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/p/Form1.Designer.cs", true},
		{"/p/Resources.g.cs", true},
		{"/p/App.g.i.cs", true},
		{"/p/AssemblyInfo.cs", true},
		{"/p/ProjectAssemblyAttributes.cs", true},
		{"/p/Reference.svcmap", true},
		{"/p/MyModelSnapshot.cs", true},
		{"/p/handler.go", false},
		{"/p/design_notes.md", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsGeneratedFile(tc.path, nil), "path %q", tc.path)
	}
}

func TestIsGeneratedFile_ContentMarkerWithinFirstTenLines(t *testing.T) {
	content := []byte("// <auto-generated>\n// Do not edit.\npackage thing\n")
	assert.True(t, IsGeneratedFile("/p/thing.go", content))

	content = []byte("// This code was generated by a tool.\npackage thing\n")
	assert.True(t, IsGeneratedFile("/p/thing.go", content))
}

func TestIsGeneratedFile_MarkerAfterTenLinesIgnored(t *testing.T) {
	content := []byte(strings.Repeat("// ordinary line\n", 11) + "// <auto-generated>\n")
	assert.False(t, IsGeneratedFile("/p/thing.go", content))
}
