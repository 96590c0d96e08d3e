package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/chunktype"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.InjectFilePathContext = false
	return opts
}

func TestChunker_GoFile_FunctionChunks(t *testing.T) {
	source := `package main

import "fmt"

func Hello() {
	fmt.Println("Hello")
}

func Goodbye() {
	fmt.Println("Goodbye")
}
`
	c := New(testOptions())

	chunks := c.ChunkFile(context.Background(), "/p/main.go", []byte(source))

	require.NotEmpty(t, chunks)
	var texts []string
	for _, ch := range chunks {
		require.NoError(t, ch.Validate())
		texts = append(texts, ch.Text)
	}
	joined := strings.Join(texts, "\n---\n")
	assert.Contains(t, joined, "func Hello()")
	assert.Contains(t, joined, "func Goodbye()")
}

func TestChunker_GoMethod_ContainingTypeComment(t *testing.T) {
	source := `package store

type Store struct {
	items map[string]string
}

func (s *Store) Get(key string) string {
	return s.items[key]
}
`
	c := New(testOptions())

	chunks := c.ChunkFile(context.Background(), "/p/store.go", []byte(source))

	var method *chunktype.Chunk
	for _, ch := range chunks {
		if strings.Contains(ch.Text, "func (s *Store) Get") {
			method = ch
		}
	}
	require.NotNil(t, method, "expected a chunk for the Get method")
	assert.Contains(t, method.Text, "// Method of Store")
	base, _ := method.Kind.Split()
	assert.Equal(t, chunktype.KindMethod, base)
}

func TestChunker_GoStruct_SignatureOnlyReconstruction(t *testing.T) {
	source := `package acct

type Account struct {
	ID      string
	Balance int64
	Owner   string
}
`
	c := New(testOptions())

	chunks := c.ChunkFile(context.Background(), "/p/account.go", []byte(source))

	var class *chunktype.Chunk
	for _, ch := range chunks {
		if base, _ := ch.Kind.Split(); base == chunktype.KindClass {
			class = ch
		}
	}
	require.NotNil(t, class, "a Go struct should produce a class-kind chunk")
	assert.Contains(t, class.Text, "type Account struct")
	assert.Contains(t, class.Text, "ID")
	assert.Contains(t, class.Text, "Balance")
}

func TestChunker_BoundedMemberList(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("package wide\n\ntype Wide struct {\n")
	fields := []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot",
		"Golf", "Hotel", "India", "Juliett", "Kilo", "Lima", "Mike"}
	for _, f := range fields {
		sb.WriteString("\t" + f + " int\n")
	}
	sb.WriteString("}\n")

	c := New(testOptions())
	chunks := c.ChunkFile(context.Background(), "/p/wide.go", []byte(sb.String()))

	var class *chunktype.Chunk
	for _, ch := range chunks {
		if base, _ := ch.Kind.Split(); base == chunktype.KindClass {
			class = ch
		}
	}
	require.NotNil(t, class)
	assert.Contains(t, class.Text, "// ... and 3 more", "field list is capped at 10 entries")
	assert.NotContains(t, class.Text, "Lima", "entries past the cap are elided")
}

func TestChunker_OversizedFunction_EmitsPrimaryPlusBodyChunks(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("package big\n\nfunc Enormous() {\n")
	for i := 0; i < 200; i++ {
		sb.WriteString("\tdoWork() // some padding to push the body over the window target\n")
	}
	sb.WriteString("}\n")

	opts := testOptions()
	opts.SlidingWindowTarget = 2000
	c := New(opts)

	chunks := c.ChunkFile(context.Background(), "/p/big.go", []byte(sb.String()))

	var primary, bodies int
	for _, ch := range chunks {
		base, _ := ch.Kind.Split()
		switch base {
		case chunktype.KindMethod:
			primary++
		case chunktype.KindMethodBody:
			bodies++
		}
	}
	assert.Equal(t, 1, primary, "the complete function is one primary chunk")
	assert.Greater(t, bodies, 1, "an oversized body gets sliding sub-chunks")
}

func TestChunker_CFile_FunctionAndMacro(t *testing.T) {
	source := `#define PI 3.14159

int add(int a, int b) {
	return a + b;
}
`
	c := New(testOptions())

	chunks := c.ChunkFile(context.Background(), "/p/math.c", []byte(source))

	kinds := make(map[chunktype.Kind]int)
	for _, ch := range chunks {
		base, _ := ch.Kind.Split()
		kinds[base]++
	}
	assert.Equal(t, 1, kinds[chunktype.KindCFunction])
	assert.Equal(t, 1, kinds[chunktype.KindCMacro])
}

func TestChunker_CStruct_SignatureChunk(t *testing.T) {
	source := `struct point {
	int x;
	int y;
};
`
	c := New(testOptions())

	chunks := c.ChunkFile(context.Background(), "/p/point.h", []byte(source))

	require.NotEmpty(t, chunks)
	var found bool
	for _, ch := range chunks {
		base, _ := ch.Kind.Split()
		if base == chunktype.KindCStruct {
			found = true
			assert.Contains(t, ch.Text, "struct point")
			assert.Contains(t, ch.Text, "x")
		}
	}
	assert.True(t, found, "expected a c-struct chunk")
}

func TestChunker_GeneratedFile_SingleSummaryChunk(t *testing.T) {
	source := "// <auto-generated>\npackage gen\n\nfunc A() {}\nfunc B() {}\n"
	c := New(testOptions())

	chunks := c.ChunkFile(context.Background(), "/p/model.Designer.go", []byte(source))

	require.Len(t, chunks, 1)
	assert.Equal(t, chunktype.KindGenerated, chunks[0].Kind)
	assert.Equal(t, 1, chunks[0].StartLine)
}

func TestChunker_UnknownExtension_WholeFileFallback(t *testing.T) {
	c := New(testOptions())

	chunks := c.ChunkFile(context.Background(), "/p/notes.xyz", []byte("short free-form notes\nsecond line\n"))

	require.Len(t, chunks, 1)
	assert.Equal(t, chunktype.KindFile, chunks[0].Kind)
	assert.Equal(t, 1, chunks[0].StartLine)
}

func TestChunker_UnknownExtension_SlidingWindowForLargeFiles(t *testing.T) {
	opts := testOptions()
	opts.SlidingWindowTarget = 200
	c := New(opts)

	content := strings.Repeat("free-form text with no structure at all\n", 50)
	chunks := c.ChunkFile(context.Background(), "/p/dump.xyz", []byte(content))

	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.Equal(t, chunktype.KindSlidingWindow, ch.Kind)
	}
}

func TestChunker_EmptyFile_NoChunks(t *testing.T) {
	c := New(testOptions())

	assert.Empty(t, c.ChunkFile(context.Background(), "/p/empty.go", nil))
	assert.Empty(t, c.ChunkFile(context.Background(), "/p/blank.xyz", []byte("   \n\t\n")))
}

func TestChunker_FilePathContextInjection(t *testing.T) {
	opts := DefaultOptions() // InjectFilePathContext on
	c := New(opts)

	source := "package ctx\n\nfunc Marked() {}\n"
	chunks := c.ChunkFile(context.Background(), "/p/src/ctx.go", []byte(source))

	require.NotEmpty(t, chunks)
	var found bool
	for _, ch := range chunks {
		if strings.Contains(ch.Text, "func Marked()") {
			found = true
			assert.True(t, strings.HasPrefix(ch.Text, "// File: "), "chunk text starts with the file marker")
		}
	}
	assert.True(t, found)
}

func TestChunker_IDsUniqueWithinFile(t *testing.T) {
	source := `package u

func One() {}

func Two() {}

type Thing struct {
	A int
}
`
	c := New(testOptions())
	chunks := c.ChunkFile(context.Background(), "/p/u.go", []byte(source))

	seen := make(map[string]struct{})
	for _, ch := range chunks {
		_, dup := seen[ch.ID]
		assert.False(t, dup, "duplicate chunk id %s", ch.ID)
		seen[ch.ID] = struct{}{}
	}
}
