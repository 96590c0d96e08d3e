package chunk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/chunktype"
)

// ManagedBackend is the Chunker's managed-language family: Go, TypeScript,
// TSX, JavaScript, JSX, and Python. It parses via tree-sitter and falls
// back to a whole-file chunk (or sliding_window chunks for files over the
// window target) on any parser error, per the Chunker's "never fails"
// contract.
type ManagedBackend struct {
	parser   *Parser
	registry *LanguageRegistry
	opts     Options
}

// NewManagedBackend creates a ManagedBackend using the default language
// registry.
func NewManagedBackend(opts Options) *ManagedBackend {
	registry := DefaultRegistry()
	return &ManagedBackend{
		parser:   NewParserWithRegistry(registry),
		registry: registry,
		opts:     opts,
	}
}

// SupportedExtensions returns the extensions this backend's managed
// languages claim (C is excluded; it has its own backend).
func (b *ManagedBackend) SupportedExtensions() []string {
	return []string{".go", ".ts", ".tsx", ".js", ".jsx", ".mjs", ".py"}
}

// Parse implements Backend.
func (b *ManagedBackend) Parse(ctx context.Context, file *FileInput) []*chunktype.Chunk {
	if len(file.Content) == 0 {
		return nil
	}

	if IsGeneratedFile(file.Path, file.Content) {
		return []*chunktype.Chunk{b.wholeFileChunk(file, chunktype.KindGenerated, time.Now())}
	}

	config, ok := b.registry.GetByName(file.Language)
	if !ok {
		return b.slidingWindowFallback(file)
	}

	tree, err := b.parser.Parse(ctx, file.Content, file.Language)
	if err != nil {
		return b.slidingWindowFallback(file)
	}

	now := time.Now()
	fileContext, importCount := b.extractFileContext(tree, file.Language)
	entities := b.collectEntities(tree, config, file.Language)

	if len(entities) == 0 {
		return b.slidingWindowFallback(file)
	}

	var chunks []*chunktype.Chunk
	if importCount >= 5 {
		chunks = append(chunks, b.globalUsingsChunk(file, tree, now))
	}

	for _, e := range entities {
		switch {
		case isClassFamily(e.kind):
			chunks = append(chunks, b.buildSignatureChunk(e, tree, file, now))
		default:
			chunks = append(chunks, b.buildMethodChunks(e, tree, file, fileContext, now)...)
		}
	}

	if file.Language == "python" {
		if tls := b.topLevelStatementsChunk(tree, file, now); tls != nil {
			chunks = append(chunks, tls)
		}
	}

	return chunks
}

// entity is one structural declaration found while walking the AST.
type entity struct {
	kind           chunktype.Kind
	node           *Node
	containingType string
	name           string
}

// collectEntities walks the AST tracking class nesting (for method
// containing-type context) and function nesting (for local-function
// detection versus Go's receiver-based method association).
func (b *ManagedBackend) collectEntities(tree *Tree, config *LanguageConfig, language string) []entity {
	var out []entity
	b.walkEntities(tree.Root, tree.Source, config, language, nil, 0, &out)
	return out
}

func (b *ManagedBackend) walkEntities(n *Node, source []byte, config *LanguageConfig, language string, classStack []string, funcDepth int, out *[]entity) {
	if kind, name, ok := classifyClassLike(n, source, language); ok {
		*out = append(*out, entity{kind: kind, node: n, name: name})
		nextStack := append(append([]string{}, classStack...), name)
		for _, child := range n.Children {
			b.walkEntities(child, source, config, language, nextStack, 0, out)
		}
		return
	}

	if isFunctionLike(n, config) {
		containingType := ""
		if language == "go" {
			containingType = extractGoReceiverType(n, source)
		} else if len(classStack) > 0 {
			containingType = classStack[len(classStack)-1]
		}

		kind := chunktype.KindMethod
		if funcDepth > 0 && containingType == "" {
			kind = chunktype.KindLocalFunction
		}

		name := declName(n, source, language)
		*out = append(*out, entity{kind: kind, node: n, containingType: containingType, name: name})

		for _, child := range n.Children {
			b.walkEntities(child, source, config, language, classStack, funcDepth+1, out)
		}
		return
	}

	for _, child := range n.Children {
		b.walkEntities(child, source, config, language, classStack, funcDepth, out)
	}
}

func isFunctionLike(n *Node, config *LanguageConfig) bool {
	for _, t := range config.FunctionTypes {
		if n.Type == t {
			return true
		}
	}
	for _, t := range config.MethodTypes {
		if n.Type == t {
			return true
		}
	}
	return false
}

// classifyClassLike identifies a class/interface/record/enum node and its
// name. Go structs, interfaces, and plain aliases are all wrapped in
// type_declaration, so they need their own dispatch.
func classifyClassLike(n *Node, source []byte, language string) (chunktype.Kind, string, bool) {
	switch language {
	case "go":
		if n.Type == "type_declaration" {
			return classifyGoTypeDecl(n, source)
		}
	case "typescript", "tsx", "javascript", "jsx":
		switch n.Type {
		case "class_declaration":
			return chunktype.KindClass, firstIdentifier(n, source), true
		case "interface_declaration":
			return chunktype.KindInterface, firstIdentifier(n, source), true
		case "type_alias_declaration":
			return chunktype.KindRecord, firstIdentifier(n, source), true
		case "enum_declaration":
			return chunktype.KindEnum, firstIdentifier(n, source), true
		}
	case "python":
		if n.Type == "class_definition" {
			return chunktype.KindClass, firstIdentifier(n, source), true
		}
	}
	return "", "", false
}

func classifyGoTypeDecl(n *Node, source []byte) (chunktype.Kind, string, bool) {
	spec := n.FindChildByType("type_spec")
	if spec == nil {
		return "", "", false
	}
	name := ""
	for _, c := range spec.Children {
		if c.Type == "type_identifier" {
			name = c.GetContent(source)
			break
		}
	}
	if name == "" {
		return "", "", false
	}
	for _, c := range spec.Children {
		switch c.Type {
		case "struct_type":
			return chunktype.KindClass, name, true
		case "interface_type":
			return chunktype.KindInterface, name, true
		}
	}
	return chunktype.KindRecord, name, true
}

func firstIdentifier(n *Node, source []byte) string {
	for _, c := range n.Children {
		if c.Type == "identifier" || c.Type == "type_identifier" {
			return c.GetContent(source)
		}
	}
	return ""
}

// extractGoReceiverType pulls the receiver type name from a
// method_declaration node, stripping a leading pointer star.
func extractGoReceiverType(n *Node, source []byte) string {
	if n.Type != "method_declaration" {
		return ""
	}
	recv := n.FindChildByType("parameter_list")
	if recv == nil {
		return ""
	}
	for _, p := range recv.Children {
		if p.Type != "parameter_declaration" {
			continue
		}
		for _, c := range p.Children {
			switch c.Type {
			case "pointer_type":
				for _, gc := range c.Children {
					if gc.Type == "type_identifier" {
						return gc.GetContent(source)
					}
				}
			case "type_identifier":
				return c.GetContent(source)
			}
		}
	}
	return ""
}

// buildSignatureChunk reconstructs a class/interface/record/enum as a
// bounded list of fields, properties, and methods rather than full text.
func (b *ManagedBackend) buildSignatureChunk(e entity, tree *Tree, file *FileInput, now time.Time) *chunktype.Chunk {
	declLine := firstLine(e.node.GetContent(tree.Source))
	fields, methods := collectMembers(e.node, tree.Source, file.Language)

	var sb strings.Builder
	sb.WriteString(declLine)
	sb.WriteString("\n")
	writeBoundedList(&sb, "fields", fields)
	writeBoundedList(&sb, "methods", methods)
	sb.WriteString("}\n")

	text := sb.String()
	if b.opts.InjectFilePathContext {
		text = filePathMarker(file.Path, file.Language) + "\n" + text
	}
	text = smartTruncate(text, b.opts.MaxChunkSize, "signature reconstruction exceeded max chunk size")

	start := int(e.node.StartPoint.Row) + 1
	end := int(e.node.EndPoint.Row) + 1
	kind := EnhanceKind(e.kind, text, file.Path)
	return &chunktype.Chunk{
		ID:        chunktype.MakeID(file.Path, start, ""),
		Path:      file.Path,
		StartLine: start,
		EndLine:   end,
		Text:      text,
		Kind:      kind,
		ModTime:   now,
	}
}

func writeBoundedList(sb *strings.Builder, label string, names []string) {
	const max = 10
	if len(names) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("    // %s:\n", label))
	shown := names
	more := 0
	if len(names) > max {
		shown = names[:max]
		more = len(names) - max
	}
	for _, n := range shown {
		sb.WriteString("    " + n + "\n")
	}
	if more > 0 {
		sb.WriteString(fmt.Sprintf("    // ... and %d more\n", more))
	}
}

var memberContainers = map[string][]string{
	"go":         {"field_declaration_list"},
	"typescript": {"class_body", "object_type"},
	"tsx":        {"class_body", "object_type"},
	"javascript": {"class_body"},
	"jsx":        {"class_body"},
	"python":     {"block"},
}

// collectMembers returns field names and method names declared directly
// inside a class-like node's body.
func collectMembers(n *Node, source []byte, language string) (fields, methods []string) {
	containers := memberContainers[language]
	body := findFirstOfTypes(n, containers)
	if body == nil {
		return nil, nil
	}

	for _, child := range body.Children {
		switch language {
		case "go":
			if child.Type == "field_declaration" {
				if name := firstIdentifierOfType(child, source, "field_identifier"); name != "" {
					fields = append(fields, name)
				}
			}
		case "typescript", "tsx", "javascript", "jsx":
			switch child.Type {
			case "method_definition":
				if name := firstIdentifierOfType(child, source, "property_identifier"); name != "" {
					methods = append(methods, name)
				}
			case "public_field_definition", "field_definition", "property_signature":
				if name := firstIdentifierOfType(child, source, "property_identifier"); name != "" {
					fields = append(fields, name)
				}
			}
		case "python":
			switch child.Type {
			case "function_definition":
				if name := firstIdentifierOfType(child, source, "identifier"); name != "" {
					methods = append(methods, name)
				}
			case "expression_statement":
				if assign := child.FindChildByType("assignment"); assign != nil {
					if name := firstIdentifierOfType(assign, source, "identifier"); name != "" {
						fields = append(fields, name)
					}
				}
			}
		}
	}
	return fields, methods
}

func findFirstOfTypes(n *Node, types []string) *Node {
	for _, t := range types {
		if found := n.FindChildByType(t); found != nil {
			return found
		}
	}
	for _, child := range n.Children {
		if found := findFirstOfTypes(child, types); found != nil {
			return found
		}
	}
	return nil
}

func firstIdentifierOfType(n *Node, source []byte, nodeType string) string {
	for _, c := range n.Children {
		if c.Type == nodeType {
			return c.GetContent(source)
		}
	}
	return ""
}

// buildMethodChunks produces the primary method/local-function chunk, and
// when its text exceeds the sliding-window target, a sequence of
// method-body sub-chunks as well.
func (b *ManagedBackend) buildMethodChunks(e entity, tree *Tree, file *FileInput, fileContext string, now time.Time) []*chunktype.Chunk {
	fullText := e.node.GetContent(tree.Source)
	start := int(e.node.StartPoint.Row) + 1
	end := int(e.node.EndPoint.Row) + 1

	var prefix string
	if e.containingType != "" {
		prefix = containingTypeComment(file.Language, e.containingType)
	}

	primaryText := fullText
	if prefix != "" {
		primaryText = prefix + "\n" + primaryText
	}
	if fileContext != "" && e.containingType == "" {
		primaryText = fileContext + "\n\n" + primaryText
	}
	if b.opts.InjectFilePathContext {
		primaryText = filePathMarker(file.Path, file.Language) + "\n" + primaryText
	}
	primaryText = smartTruncate(primaryText, b.opts.MaxChunkSize, "method body exceeded max chunk size")

	kind := EnhanceKind(e.kind, primaryText, file.Path)
	primary := &chunktype.Chunk{
		ID:        chunktype.MakeID(file.Path, start, ""),
		Path:      file.Path,
		StartLine: start,
		EndLine:   end,
		Text:      primaryText,
		Kind:      kind,
		ModTime:   now,
	}
	chunks := []*chunktype.Chunk{primary}

	if len(fullText) <= b.opts.SlidingWindowTarget {
		return chunks
	}

	bodyText, bodyLineOffset := methodBody(fullText)
	windows := slidingWindows(bodyText, start+bodyLineOffset, b.opts.SlidingWindowTarget, b.opts.OverlapRatio, b.opts.OverlapMaxLines)
	for i, w := range windows {
		chunks = append(chunks, &chunktype.Chunk{
			ID:        chunktype.MakeID(file.Path, w.StartLine, fmt.Sprintf("body%d", i)),
			Path:      file.Path,
			StartLine: w.StartLine,
			EndLine:   w.EndLine,
			Text:      w.Text,
			Kind:      chunktype.KindMethodBody,
			ModTime:   now,
		})
	}
	return chunks
}

// methodBody returns the text after the signature line (a rough proxy for
// "the body") plus how many lines were dropped.
func methodBody(fullText string) (string, int) {
	idx := strings.IndexByte(fullText, '\n')
	if idx < 0 {
		return fullText, 0
	}
	return fullText[idx+1:], 1
}

func containingTypeComment(language, containingType string) string {
	if language == "python" {
		return fmt.Sprintf("# Method of %s", containingType)
	}
	return fmt.Sprintf("// Method of %s", containingType)
}

func filePathMarker(path, language string) string {
	if language == "python" {
		return fmt.Sprintf("# File: %s", path)
	}
	return fmt.Sprintf("// File: %s", path)
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}

// extractFileContext gathers package/import declarations for inline
// context injection, and reports how many import-like statements were
// found (used to decide whether they also warrant their own
// global_usings chunk).
func (b *ManagedBackend) extractFileContext(tree *Tree, language string) (string, int) {
	var parts []string
	count := 0

	switch language {
	case "go":
		for _, node := range tree.Root.Children {
			if node.Type == "package_clause" {
				parts = append(parts, node.GetContent(tree.Source))
			}
			if node.Type == "import_declaration" {
				parts = append(parts, node.GetContent(tree.Source))
				count++
			}
		}
	case "typescript", "tsx", "javascript", "jsx":
		for _, node := range tree.Root.Children {
			if node.Type == "import_statement" {
				parts = append(parts, node.GetContent(tree.Source))
				count++
			}
		}
	case "python":
		for _, node := range tree.Root.Children {
			if node.Type == "import_statement" || node.Type == "import_from_statement" {
				parts = append(parts, node.GetContent(tree.Source))
				count++
			}
		}
	}

	return strings.Join(parts, "\n"), count
}

// globalUsingsChunk bundles a file's import/using statements into their
// own chunk when there are enough of them to be worth retrieving on
// their own (global-usings entity).
func (b *ManagedBackend) globalUsingsChunk(file *FileInput, tree *Tree, now time.Time) *chunktype.Chunk {
	var lines []string
	firstStart := 0
	lastEnd := 0
	for _, node := range tree.Root.Children {
		switch node.Type {
		case "import_declaration", "import_statement", "import_from_statement":
			if firstStart == 0 {
				firstStart = int(node.StartPoint.Row) + 1
			}
			lastEnd = int(node.EndPoint.Row) + 1
			lines = append(lines, node.GetContent(tree.Source))
		}
	}
	if len(lines) == 0 {
		return nil
	}
	return &chunktype.Chunk{
		ID:        chunktype.MakeID(file.Path, firstStart, "usings"),
		Path:      file.Path,
		StartLine: firstStart,
		EndLine:   lastEnd,
		Text:      strings.Join(lines, "\n"),
		Kind:      chunktype.KindGlobalUsings,
		ModTime:   now,
	}
}

// topLevelStatementsChunk bundles Python module-level statements that sit
// outside any function or class definition.
func (b *ManagedBackend) topLevelStatementsChunk(tree *Tree, file *FileInput, now time.Time) *chunktype.Chunk {
	var lines []string
	firstStart, lastEnd := 0, 0
	for _, node := range tree.Root.Children {
		switch node.Type {
		case "function_definition", "class_definition", "import_statement", "import_from_statement", "comment":
			continue
		}
		if firstStart == 0 {
			firstStart = int(node.StartPoint.Row) + 1
		}
		lastEnd = int(node.EndPoint.Row) + 1
		lines = append(lines, node.GetContent(tree.Source))
	}
	if len(lines) == 0 {
		return nil
	}
	text := strings.Join(lines, "\n")
	return &chunktype.Chunk{
		ID:        chunktype.MakeID(file.Path, firstStart, "toplevel"),
		Path:      file.Path,
		StartLine: firstStart,
		EndLine:   lastEnd,
		Text:      text,
		Kind:      chunktype.KindTopLevelStatements,
		ModTime:   now,
	}
}

func (b *ManagedBackend) wholeFileChunk(file *FileInput, kind chunktype.Kind, now time.Time) *chunktype.Chunk {
	lines := strings.Count(string(file.Content), "\n") + 1
	text := string(file.Content)
	text = smartTruncate(text, b.opts.MaxChunkSize, "whole-file chunk exceeded max chunk size")
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

// slidingWindowFallback handles unsupported languages and parser
// failures: either one whole-file chunk (small files) or a sequence of
// sliding_window chunks (large files), per the Chunker's "never fails"
// contract.
func (b *ManagedBackend) slidingWindowFallback(file *FileInput) []*chunktype.Chunk {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil
	}
	now := time.Now()

	if len(content) <= b.opts.SlidingWindowTarget {
		return []*chunktype.Chunk{b.wholeFileChunk(file, chunktype.KindFile, now)}
	}

	windows := slidingWindows(content, 1, b.opts.SlidingWindowTarget, b.opts.OverlapRatio, b.opts.OverlapMaxLines)
	chunks := make([]*chunktype.Chunk, 0, len(windows))
	for i, w := range windows {
		text := w.Text
		if b.opts.InjectFilePathContext {
			text = filePathMarker(file.Path, file.Language) + "\n" + text
		}
		chunks = append(chunks, &chunktype.Chunk{
			ID:        chunktype.MakeID(file.Path, w.StartLine, fmt.Sprintf("w%d", i)),
			Path:      file.Path,
			StartLine: w.StartLine,
			EndLine:   w.EndLine,
			Text:      text,
			Kind:      chunktype.KindSlidingWindow,
			ModTime:   now,
		})
	}
	return chunks
}
