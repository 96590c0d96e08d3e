package chunk

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/amanmcp/internal/chunktype"
)

// Chunker dispatches a file to the Backend registered for its extension,
// then deduplicates the resulting chunks. It is the only type most
// callers need: Backend is an implementation detail used to vary
// behavior per language family.
type Chunker struct {
	registry *LanguageRegistry
	managed  *ManagedBackend
	cfamily  *CFamilyBackend
	markup   *MarkupBackend
	opts     Options
}

// New creates a Chunker with the default language registry and the
// given Options.
func New(opts Options) *Chunker {
	return &Chunker{
		registry: DefaultRegistry(),
		managed:  NewManagedBackend(opts),
		cfamily:  NewCFamilyBackend(opts),
		markup:   NewMarkupBackend(opts),
		opts:     opts,
	}
}

// ChunkFile chunks one file's content and returns deduplicated chunks.
// It never returns an error: unsupported extensions and parse failures
// fall back to whole-file or sliding-window chunks.
func (c *Chunker) ChunkFile(ctx context.Context, path string, content []byte) []*chunktype.Chunk {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".c", ".h":
		return Dedup(c.cfamily.Parse(ctx, &FileInput{Path: path, Content: content, Language: "c"}))
	case ".md", ".markdown", ".mdx":
		return Dedup(c.markup.Parse(ctx, &FileInput{Path: path, Content: content, Language: "markdown"}))
	}

	if config, ok := c.registry.GetByExtension(ext); ok && c.registry.IsManaged(config.Name) {
		return Dedup(c.managed.Parse(ctx, &FileInput{Path: path, Content: content, Language: config.Name}))
	}

	return Dedup(c.genericFallback(path, content))
}

// genericFallback handles any extension with no registered backend: a
// single whole-file chunk for short files, sliding-window chunks for
// long ones, same as an unsupported-language managed/C-family file.
func (c *Chunker) genericFallback(path string, content []byte) []*chunktype.Chunk {
	if IsGeneratedFile(path, content) {
		text := smartTruncate(string(content), c.opts.MaxChunkSize, "whole-file chunk exceeded max chunk size")
		lines := strings.Count(text, "\n") + 1
		return []*chunktype.Chunk{{
			ID:        chunktype.MakeID(path, 1, ""),
			Path:      path,
			StartLine: 1,
			EndLine:   lines,
			Text:      text,
			Kind:      chunktype.KindGenerated,
		}}
	}

	str := string(content)
	if strings.TrimSpace(str) == "" {
		return nil
	}
	if len(str) <= c.opts.SlidingWindowTarget {
		text := smartTruncate(str, c.opts.MaxChunkSize, "whole-file chunk exceeded max chunk size")
		lines := strings.Count(text, "\n") + 1
		return []*chunktype.Chunk{{
			ID:        chunktype.MakeID(path, 1, ""),
			Path:      path,
			StartLine: 1,
			EndLine:   lines,
			Text:      text,
			Kind:      chunktype.KindFile,
		}}
	}

	windows := slidingWindows(str, 1, c.opts.SlidingWindowTarget, c.opts.OverlapRatio, c.opts.OverlapMaxLines)
	chunks := make([]*chunktype.Chunk, 0, len(windows))
	for _, w := range windows {
		chunks = append(chunks, &chunktype.Chunk{
			ID:        chunktype.MakeID(path, w.StartLine, ""),
			Path:      path,
			StartLine: w.StartLine,
			EndLine:   w.EndLine,
			Text:      w.Text,
			Kind:      chunktype.KindSlidingWindow,
		})
	}
	return chunks
}

// SupportedExtensions reports every extension any backend can chunk.
func (c *Chunker) SupportedExtensions() []string {
	exts := append([]string{}, c.managed.SupportedExtensions()...)
	exts = append(exts, c.cfamily.SupportedExtensions()...)
	exts = append(exts, c.markup.SupportedExtensions()...)
	return exts
}

