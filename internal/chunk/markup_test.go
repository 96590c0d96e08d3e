package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/chunktype"
)

func TestMarkupBackend_SectionsBecomeProseChunks(t *testing.T) {
	source := `# Overview

This engine indexes code for semantic search.

## Setup

Install the binary and point it at a project root.
`
	b := NewMarkupBackend(testOptions())

	chunks := b.Parse(context.Background(), &FileInput{Path: "/p/README.md", Content: []byte(source), Language: "markdown"})

	require.NotEmpty(t, chunks)
	var joined strings.Builder
	for _, c := range chunks {
		base, _ := c.Kind.Split()
		assert.Equal(t, chunktype.KindRazorHTML, base)
		joined.WriteString(c.Text)
	}
	assert.Contains(t, joined.String(), "indexes code")
	assert.Contains(t, joined.String(), "Install the binary")
}

func TestMarkupBackend_FencedCodeBlockIsCodeChunk(t *testing.T) {
	source := "# Usage\n\nRun it like this:\n\n```\nindexctl --root .\n```\n"
	b := NewMarkupBackend(testOptions())

	chunks := b.Parse(context.Background(), &FileInput{Path: "/p/USAGE.md", Content: []byte(source), Language: "markdown"})

	var code *chunktype.Chunk
	for _, c := range chunks {
		base, _ := c.Kind.Split()
		if base == chunktype.KindRazorCode {
			code = c
		}
	}
	require.NotNil(t, code, "a fenced block should produce a razor-code chunk")
	assert.Contains(t, code.Text, "indexctl --root .")
}

func TestMarkupBackend_CodeBlockWithFunctionIsMethodKind(t *testing.T) {
	source := "# API\n\n```\nfunc Search(q string) []Hit {\n\treturn nil\n}\n```\n"
	b := NewMarkupBackend(testOptions())

	chunks := b.Parse(context.Background(), &FileInput{Path: "/p/API.md", Content: []byte(source), Language: "markdown"})

	var found bool
	for _, c := range chunks {
		base, _ := c.Kind.Split()
		if base == chunktype.KindRazorMethod {
			found = true
		}
	}
	assert.True(t, found, "a code block declaring a function is razor-method")
}

func TestMarkupBackend_FrontmatterChunk(t *testing.T) {
	source := "---\ntitle: Release notes\n---\n\n# Notes\n\nBody text here.\n"
	b := NewMarkupBackend(testOptions())

	chunks := b.Parse(context.Background(), &FileInput{Path: "/p/notes.md", Content: []byte(source), Language: "markdown"})

	require.NotEmpty(t, chunks)
	assert.Contains(t, chunks[0].Text, "title: Release notes")
	assert.Equal(t, 1, chunks[0].StartLine)
}

func TestMarkupBackend_NoHeaders_ParagraphChunks(t *testing.T) {
	source := "Just a paragraph of prose.\n\nAnd a second paragraph.\n"
	b := NewMarkupBackend(testOptions())

	chunks := b.Parse(context.Background(), &FileInput{Path: "/p/plain.md", Content: []byte(source), Language: "markdown"})

	require.NotEmpty(t, chunks)
	var joined strings.Builder
	for _, c := range chunks {
		joined.WriteString(c.Text)
	}
	assert.Contains(t, joined.String(), "Just a paragraph")
	assert.Contains(t, joined.String(), "second paragraph")
}

func TestMarkupBackend_EmptyFile(t *testing.T) {
	b := NewMarkupBackend(testOptions())
	assert.Empty(t, b.Parse(context.Background(), &FileInput{Path: "/p/e.md", Content: []byte("  \n"), Language: "markdown"}))
}
