package chunk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/chunktype"
)

// CFamilyBackend is the Chunker's C-family frontend: functions, structs,
// enums, typedefs, and preprocessor macros.
type CFamilyBackend struct {
	parser   *Parser
	registry *LanguageRegistry
	opts     Options
}

// NewCFamilyBackend creates a CFamilyBackend using the default language
// registry.
func NewCFamilyBackend(opts Options) *CFamilyBackend {
	registry := DefaultRegistry()
	return &CFamilyBackend{
		parser:   NewParserWithRegistry(registry),
		registry: registry,
		opts:     opts,
	}
}

// SupportedExtensions implements Backend.
func (b *CFamilyBackend) SupportedExtensions() []string {
	return []string{".c", ".h"}
}

// Parse implements Backend.
func (b *CFamilyBackend) Parse(ctx context.Context, file *FileInput) []*chunktype.Chunk {
	if len(file.Content) == 0 {
		return nil
	}
	now := time.Now()

	if IsGeneratedFile(file.Path, file.Content) {
		return []*chunktype.Chunk{b.wholeFileChunk(file, chunktype.KindGenerated, now)}
	}

	config, ok := b.registry.GetByName("c")
	if !ok {
		return b.fallback(file, now)
	}

	tree, err := b.parser.Parse(ctx, file.Content, "c")
	if err != nil {
		return b.fallback(file, now)
	}

	var chunks []*chunktype.Chunk
	found := false
	tree.Root.Walk(func(n *Node) bool {
		switch {
		case matchesAny(n.Type, config.FunctionTypes):
			found = true
			chunks = append(chunks, b.buildFunctionChunks(n, tree, file, now)...)
			return false // don't descend into the function body for more entities
		case matchesAny(n.Type, config.ClassTypes):
			found = true
			chunks = append(chunks, b.buildStructChunk(n, tree, file, now))
			return false
		case matchesAny(n.Type, config.EnumTypes):
			found = true
			chunks = append(chunks, b.buildEnumChunk(n, tree, file, now))
			return false
		case matchesAny(n.Type, config.TypeDefTypes):
			found = true
			chunks = append(chunks, b.buildTypedefChunk(n, tree, file, now))
			return false
		case matchesAny(n.Type, config.MacroTypes):
			found = true
			chunks = append(chunks, b.buildMacroChunk(n, tree, file, now))
			return false
		}
		return true
	})

	if !found {
		return b.fallback(file, now)
	}
	return chunks
}

func matchesAny(t string, set []string) bool {
	for _, s := range set {
		if t == s {
			return true
		}
	}
	return false
}

func (b *CFamilyBackend) buildFunctionChunks(n *Node, tree *Tree, file *FileInput, now time.Time) []*chunktype.Chunk {
	fullText := n.GetContent(tree.Source)
	start := int(n.StartPoint.Row) + 1
	end := int(n.EndPoint.Row) + 1

	text := fullText
	if b.opts.InjectFilePathContext {
		text = fmt.Sprintf("// File: %s", file.Path) + "\n" + text
	}
	text = smartTruncate(text, b.opts.MaxChunkSize, "function exceeded max chunk size")

	primary := &chunktype.Chunk{
		ID:        chunktype.MakeID(file.Path, start, ""),
		Path:      file.Path,
		StartLine: start,
		EndLine:   end,
		Text:      text,
		Kind:      EnhanceKind(chunktype.KindCFunction, text, file.Path),
		ModTime:   now,
	}

	chunks := []*chunktype.Chunk{primary}
	if len(fullText) <= b.opts.SlidingWindowTarget {
		return chunks
	}

	body, offset := methodBody(fullText)
	windows := slidingWindows(body, start+offset, b.opts.SlidingWindowTarget, b.opts.OverlapRatio, b.opts.OverlapMaxLines)
	for i, w := range windows {
		chunks = append(chunks, &chunktype.Chunk{
			ID:        chunktype.MakeID(file.Path, w.StartLine, fmt.Sprintf("body%d", i)),
			Path:      file.Path,
			StartLine: w.StartLine,
			EndLine:   w.EndLine,
			Text:      w.Text,
			Kind:      chunktype.KindCFunctionBody,
			ModTime:   now,
		})
	}
	return chunks
}

func (b *CFamilyBackend) buildStructChunk(n *Node, tree *Tree, file *FileInput, now time.Time) *chunktype.Chunk {
	declLine := firstLine(n.GetContent(tree.Source))
	var fields []string
	if body := n.FindChildByType("field_declaration_list"); body != nil {
		for _, f := range body.Children {
			if f.Type != "field_declaration" {
				continue
			}
			if name := deepFindIdentifier(f, tree.Source); name != "" {
				fields = append(fields, name)
			}
		}
	}

	var sb strings.Builder
	sb.WriteString(declLine + "\n")
	writeBoundedList(&sb, "fields", fields)
	sb.WriteString("}\n")

	return b.finishChunk(n, tree, file, now, sb.String(), chunktype.KindCStruct)
}

func (b *CFamilyBackend) buildEnumChunk(n *Node, tree *Tree, file *FileInput, now time.Time) *chunktype.Chunk {
	declLine := firstLine(n.GetContent(tree.Source))
	var values []string
	if body := n.FindChildByType("enumerator_list"); body != nil {
		for _, e := range body.Children {
			if e.Type == "enumerator" {
				if name := firstIdentifierOfType(e, tree.Source, "identifier"); name != "" {
					values = append(values, name)
				}
			}
		}
	}
	var sb strings.Builder
	sb.WriteString(declLine + "\n")
	writeBoundedList(&sb, "values", values)
	sb.WriteString("}\n")
	return b.finishChunk(n, tree, file, now, sb.String(), chunktype.KindCEnum)
}

func (b *CFamilyBackend) buildTypedefChunk(n *Node, tree *Tree, file *FileInput, now time.Time) *chunktype.Chunk {
	text := n.GetContent(tree.Source)
	return b.finishChunk(n, tree, file, now, text, chunktype.KindCTypedef)
}

func (b *CFamilyBackend) buildMacroChunk(n *Node, tree *Tree, file *FileInput, now time.Time) *chunktype.Chunk {
	text := n.GetContent(tree.Source)
	return b.finishChunk(n, tree, file, now, text, chunktype.KindCMacro)
}

func (b *CFamilyBackend) finishChunk(n *Node, tree *Tree, file *FileInput, now time.Time, text string, kind chunktype.Kind) *chunktype.Chunk {
	if b.opts.InjectFilePathContext {
		text = fmt.Sprintf("// File: %s", file.Path) + "\n" + text
	}
	text = smartTruncate(text, b.opts.MaxChunkSize, "chunk exceeded max chunk size")
	start := int(n.StartPoint.Row) + 1
	end := int(n.EndPoint.Row) + 1
	enhanced := EnhanceKind(kind, text, file.Path)
	return &chunktype.Chunk{
		ID:        chunktype.MakeID(file.Path, start, ""),
		Path:      file.Path,
		StartLine: start,
		EndLine:   end,
		Text:      text,
		Kind:      enhanced,
		ModTime:   now,
	}
}

func deepFindIdentifier(n *Node, source []byte) string {
	if n.Type == "field_identifier" || n.Type == "identifier" {
		return n.GetContent(source)
	}
	for _, c := range n.Children {
		if name := deepFindIdentifier(c, source); name != "" {
			return name
		}
	}
	return ""
}

func (b *CFamilyBackend) wholeFileChunk(file *FileInput, kind chunktype.Kind, now time.Time) *chunktype.Chunk {
	lines := strings.Count(string(file.Content), "\n") + 1
	text := smartTruncate(string(file.Content), b.opts.MaxChunkSize, "whole-file chunk exceeded max chunk size")
	return &chunktype.Chunk{
		ID:        chunktype.MakeID(file.Path, 1, ""),
		Path:      file.Path,
		StartLine: 1,
		EndLine:   lines,
		Text:      text,
		Kind:      kind,
		ModTime:   now,
	}
}

func (b *CFamilyBackend) fallback(file *FileInput, now time.Time) []*chunktype.Chunk {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil
	}
	if len(content) <= b.opts.SlidingWindowTarget {
		return []*chunktype.Chunk{b.wholeFileChunk(file, chunktype.KindCFile, now)}
	}

	windows := slidingWindows(content, 1, b.opts.SlidingWindowTarget, b.opts.OverlapRatio, b.opts.OverlapMaxLines)
	chunks := make([]*chunktype.Chunk, 0, len(windows))
	for i, w := range windows {
		chunks = append(chunks, &chunktype.Chunk{
			ID:        chunktype.MakeID(file.Path, w.StartLine, fmt.Sprintf("w%d", i)),
			Path:      file.Path,
			StartLine: w.StartLine,
			EndLine:   w.EndLine,
			Text:      w.Text,
			Kind:      chunktype.KindSlidingWindow,
			ModTime:   now,
		})
	}
	return chunks
}
