// Package chunk implements the engine's Chunker: language backends that
// turn a file's source text into chunktype.Chunk records.
package chunk

import (
	"context"

	"github.com/Aman-CERP/amanmcp/internal/chunktype"
)

// FileInput is one file handed to a Backend.
type FileInput struct {
	Path     string // absolute path, used verbatim as chunktype.Chunk.Path
	Content  []byte
	Language string // "go", "typescript", "python", "c", "markdown", ...
}

// Backend is a language frontend. Parse never fails: on any internal
// parser error it falls back to a whole-file chunk, or to sliding_window
// chunks when the file exceeds the window target, per the Chunker's
// "never fails" contract.
type Backend interface {
	Parse(ctx context.Context, file *FileInput) []*chunktype.Chunk
	SupportedExtensions() []string
}

// Tree is a parsed AST, language-agnostic.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node is a node in the AST.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point is a position in the source code.
type Point struct {
	Row    uint32 // 0-indexed
	Column uint32
}

// LanguageConfig names the grammar node types one language's backend
// looks for while walking the AST. Empty slices mean the language has
// no equivalent construct.
type LanguageConfig struct {
	Name       string
	Extensions []string

	FunctionTypes []string
	MethodTypes   []string
	ClassTypes    []string
	EnumTypes     []string
	TypeDefTypes  []string
	MacroTypes    []string
}
