package chunk

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/chunktype"
)

// MarkupBackend implements header-based Markdown/MDX chunking: prose
// sections become razor-html chunks, fenced code blocks inside a section
// become razor-code chunks, and either is split further when it exceeds
// the sliding-window target.
type MarkupBackend struct {
	opts Options
}

// NewMarkupBackend creates a MarkupBackend.
func NewMarkupBackend(opts Options) *MarkupBackend {
	return &MarkupBackend{opts: opts}
}

// SupportedExtensions implements Backend.
func (b *MarkupBackend) SupportedExtensions() []string {
	return []string{".md", ".markdown", ".mdx"}
}

var (
	markupHeaderPattern      = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	markupFrontmatterPattern = regexp.MustCompile(`(?s)^---\n(.+?)\n---\n*`)
	markupCodeBlockPattern   = regexp.MustCompile("(?s)```[^`]*```")
)

// Parse implements Backend.
func (b *MarkupBackend) Parse(ctx context.Context, file *FileInput) []*chunktype.Chunk {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil
	}
	now := time.Now()

	if IsGeneratedFile(file.Path, file.Content) {
		return []*chunktype.Chunk{b.wholeFileChunk(file, content, now)}
	}

	var chunks []*chunktype.Chunk
	remaining := content

	if fm := markupFrontmatterPattern.FindString(remaining); fm != "" {
		chunks = append(chunks, b.makeChunk(file, fm, 1, strings.Count(fm, "\n"), chunktype.KindRazorHTML, now))
		remaining = remaining[len(fm):]
	}
	lineOffset := strings.Count(content, "\n") - strings.Count(remaining, "\n")

	sections := parseMarkupSections(remaining)
	if len(sections) == 0 {
		chunks = append(chunks, b.chunkParagraphs(file, remaining, lineOffset+1, now)...)
	} else {
		for _, sec := range sections {
			chunks = append(chunks, b.chunkSection(file, sec, lineOffset, now)...)
		}
	}

	if len(chunks) == 0 {
		lines := strings.Count(content, "\n") + 1
		text := smartTruncate(content, b.opts.MaxChunkSize, "whole-file chunk exceeded max chunk size")
		chunks = append(chunks, &chunktype.Chunk{
			ID:        chunktype.MakeID(file.Path, 1, ""),
			Path:      file.Path,
			StartLine: 1,
			EndLine:   lines,
			Text:      text,
			Kind:      chunktype.KindRazorFile,
			ModTime:   now,
		})
	}
	return Dedup(chunks)
}

type markupSection struct {
	level     int
	title     string
	path      string
	content   string
	startLine int
}

func parseMarkupSections(content string) []*markupSection {
	lines := strings.Split(content, "\n")
	var sections []*markupSection
	stack := make([]string, 6)

	var current *markupSection
	var body strings.Builder

	for lineNum, line := range lines {
		if m := markupHeaderPattern.FindStringSubmatch(line); m != nil {
			if current != nil {
				current.content = body.String()
				sections = append(sections, current)
				body.Reset()
			}
			level := len(m[1])
			title := strings.TrimSpace(m[2])
			stack[level-1] = title
			for i := level; i < 6; i++ {
				stack[i] = ""
			}
			var parts []string
			for i := 0; i < level; i++ {
				if stack[i] != "" {
					parts = append(parts, stack[i])
				}
			}
			current = &markupSection{level: level, title: title, path: strings.Join(parts, " > "), startLine: lineNum}
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	if current != nil {
		current.content = body.String()
		sections = append(sections, current)
	}
	return sections
}

func (b *MarkupBackend) chunkSection(file *FileInput, sec *markupSection, lineOffset int, now time.Time) []*chunktype.Chunk {
	content := strings.TrimRight(sec.content, "\n")
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || (markupHeaderPattern.MatchString(trimmed) && !strings.Contains(trimmed, "\n")) {
		return nil
	}

	startLine := lineOffset + sec.startLine + 1
	var chunks []*chunktype.Chunk

	codeBlocks := markupCodeBlockPattern.FindAllStringIndex(content, -1)
	if len(codeBlocks) == 0 {
		chunks = append(chunks, b.proseChunks(file, content, startLine, now)...)
		return chunks
	}

	pos := 0
	line := startLine
	for _, loc := range codeBlocks {
		if loc[0] > pos {
			prose := content[pos:loc[0]]
			chunks = append(chunks, b.proseChunks(file, prose, line, now)...)
			line += strings.Count(prose, "\n")
		}
		code := content[loc[0]:loc[1]]
		chunks = append(chunks, b.codeChunks(file, code, line, now)...)
		line += strings.Count(code, "\n")
		pos = loc[1]
	}
	if pos < len(content) {
		prose := content[pos:]
		chunks = append(chunks, b.proseChunks(file, prose, line, now)...)
	}
	return chunks
}

func (b *MarkupBackend) proseChunks(file *FileInput, text string, startLine int, now time.Time) []*chunktype.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) <= b.opts.SlidingWindowTarget {
		return []*chunktype.Chunk{b.makeChunk(file, text, startLine, startLine+strings.Count(text, "\n"), chunktype.KindRazorHTML, now)}
	}
	windows := slidingWindows(text, startLine, b.opts.SlidingWindowTarget, b.opts.OverlapRatio, b.opts.OverlapMaxLines)
	chunks := make([]*chunktype.Chunk, 0, len(windows))
	for _, w := range windows {
		chunks = append(chunks, b.makeChunk(file, w.Text, w.StartLine, w.EndLine, chunktype.KindRazorHTML, now))
	}
	return chunks
}

func (b *MarkupBackend) codeChunks(file *FileInput, text string, startLine int, now time.Time) []*chunktype.Chunk {
	kind := chunktype.KindRazorCode
	if looksLikeMethodBlock(text) {
		kind = chunktype.KindRazorMethod
	}
	endLine := startLine + strings.Count(text, "\n")
	primary := b.makeChunk(file, smartTruncate(text, b.opts.MaxChunkSize, "code block exceeded max chunk size"), startLine, endLine, kind, now)
	chunks := []*chunktype.Chunk{primary}

	if len(text) <= b.opts.SlidingWindowTarget {
		return chunks
	}
	bodyKind := chunktype.KindRazorCodeBody
	if kind == chunktype.KindRazorMethod {
		bodyKind = chunktype.KindRazorMethodBody
	}
	windows := slidingWindows(text, startLine, b.opts.SlidingWindowTarget, b.opts.OverlapRatio, b.opts.OverlapMaxLines)
	for _, w := range windows {
		chunks = append(chunks, &chunktype.Chunk{
			ID:        chunktype.MakeID(file.Path, w.StartLine, "body"),
			Path:      file.Path,
			StartLine: w.StartLine,
			EndLine:   w.EndLine,
			Text:      w.Text,
			Kind:      bodyKind,
			ModTime:   now,
		})
	}
	return chunks
}

var methodBlockKeywords = []string{"func ", "function ", "def ", "class ", "public ", "private ", "static "}

func looksLikeMethodBlock(codeBlock string) bool {
	low := strings.ToLower(codeBlock)
	for _, kw := range methodBlockKeywords {
		if strings.Contains(low, kw) {
			return true
		}
	}
	return false
}

func (b *MarkupBackend) chunkParagraphs(file *FileInput, content string, startLine int, now time.Time) []*chunktype.Chunk {
	paragraphs := strings.Split(content, "\n\n")
	var chunks []*chunktype.Chunk
	var current strings.Builder
	currentStart := startLine
	line := startLine

	flush := func() {
		if current.Len() == 0 {
			return
		}
		text := strings.TrimSpace(current.String())
		if text != "" {
			chunks = append(chunks, b.makeChunk(file, text, currentStart, line, chunktype.KindRazorHTML, now))
		}
		current.Reset()
	}

	for _, para := range paragraphs {
		trimmed := strings.TrimSpace(para)
		if trimmed == "" {
			line++
			continue
		}
		if current.Len()+len(trimmed) > b.opts.SlidingWindowTarget {
			flush()
			currentStart = line
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(trimmed)
		line += strings.Count(trimmed, "\n") + 1
	}
	flush()
	return chunks
}

func (b *MarkupBackend) makeChunk(file *FileInput, text string, start, end int, kind chunktype.Kind, now time.Time) *chunktype.Chunk {
	if b.opts.InjectFilePathContext {
		text = fmt.Sprintf("<!-- File: %s -->\n%s", file.Path, text)
	}
	text = smartTruncate(text, b.opts.MaxChunkSize, "markup chunk exceeded max chunk size")
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

func (b *MarkupBackend) wholeFileChunk(file *FileInput, content string, now time.Time) *chunktype.Chunk {
	lines := strings.Count(content, "\n") + 1
	text := smartTruncate(content, b.opts.MaxChunkSize, "whole-file chunk exceeded max chunk size")
	return &chunktype.Chunk{
		ID:        chunktype.MakeID(file.Path, 1, ""),
		Path:      file.Path,
		StartLine: 1,
		EndLine:   lines,
		Text:      text,
		Kind:      chunktype.KindGenerated,
		ModTime:   now,
	}
}
