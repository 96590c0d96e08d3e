package chunk

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// Parser turns source bytes into the package's own Tree/Node shape via
// tree-sitter. Converting up front (rather than holding the C-backed
// tree) keeps every later traversal free of cgo lifetime concerns. A
// Parser is safe for concurrent use; parses are serialized internally
// since one tree-sitter parser holds mutable language state.
type Parser struct {
	mu       sync.Mutex
	parser   *sitter.Parser
	registry *LanguageRegistry
}

// NewParser creates a Parser over the default language registry.
func NewParser() *Parser {
	return NewParserWithRegistry(DefaultRegistry())
}

// NewParserWithRegistry creates a Parser over a specific registry.
func NewParserWithRegistry(registry *LanguageRegistry) *Parser {
	return &Parser{parser: sitter.NewParser(), registry: registry}
}

// Parse parses source as language and returns the converted AST. An
// unregistered language or a parser failure is an error; callers fall
// back to whole-file chunking on it.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	grammar, ok := p.registry.GetTreeSitterLanguage(language)
	if !ok {
		return nil, fmt.Errorf("chunk: no grammar registered for %q", language)
	}

	p.mu.Lock()
	p.parser.SetLanguage(grammar)
	parsed, err := p.parser.ParseCtx(ctx, nil, source)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("chunk: parse %s source: %w", language, err)
	}
	if parsed == nil {
		return nil, fmt.Errorf("chunk: parse %s source: nil tree", language)
	}

	return &Tree{
		Root:     convertNode(parsed.RootNode()),
		Source:   source,
		Language: language,
	}, nil
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

func convertNode(n *sitter.Node) *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		Type:       n.Type(),
		StartByte:  n.StartByte(),
		EndByte:    n.EndByte(),
		StartPoint: Point{Row: n.StartPoint().Row, Column: n.StartPoint().Column},
		EndPoint:   Point{Row: n.EndPoint().Row, Column: n.EndPoint().Column},
		HasError:   n.HasError(),
		Children:   make([]*Node, 0, int(n.ChildCount())),
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if child := n.Child(i); child != nil {
			out.Children = append(out.Children, convertNode(child))
		}
	}
	return out
}

// GetContent returns the slice of source this node spans.
func (n *Node) GetContent(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// FindChildByType returns the first direct child of the given type.
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, child := range n.Children {
		if child.Type == nodeType {
			return child
		}
	}
	return nil
}

// Walk visits the subtree depth-first; fn returning false prunes the
// node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}
