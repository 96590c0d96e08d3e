// Package indexer implements the Indexer orchestrator: it wires
// ChangeTracker, Chunker, EmbeddingCache/EmbeddingBatcher,
// ChunkStore, and VectorIndex together into the reindex and search
// control flow for one project.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanmcp/internal/chunk"
	"github.com/Aman-CERP/amanmcp/internal/chunkstore"
	"github.com/Aman-CERP/amanmcp/internal/chunktype"
	"github.com/Aman-CERP/amanmcp/internal/embedbatch"
	"github.com/Aman-CERP/amanmcp/internal/tracker"
	"github.com/Aman-CERP/amanmcp/internal/vectorindex"
)

// IndexStats summarizes one index_directory call.
type IndexStats struct {
	FilesAdded     int
	FilesModified  int
	FilesRemoved   int
	ChunksIndexed  int
	ChunksSkipped  int
	CacheHits      int
	CacheMisses    int
	BatchesSent    int
	BatchesDropped int
	Duration       time.Duration
}

// IndexStatistics is the stats() contract: a point-in-time snapshot of
// one project's index state.
type IndexStatistics struct {
	Project     string
	ChunkCount  int
	VectorCount int
	Dimension   int
	Precision   string
	SIMDMethod  string
	Parallelism int
}

// Metadata keys persisted into ChunkStore's metadata table.
const (
	metaDimension  = "dimension"
	metaPrecision  = "precision"
	metaCPU        = "cpu_capabilities"
	metaProjectDir = "project_directory"
)

// Indexer is the per-project orchestrator. It owns no files directly;
// Root and Project identify the session it was built for.
type Indexer struct {
	mu sync.RWMutex

	root    string
	project string

	tracker *tracker.Tracker
	chunker *chunk.Chunker
	batcher *embedbatch.Batcher
	store   *chunkstore.Store
	index   *vectorindex.Index

	dimension   int
	precision   vectorindex.Precision
	parallelism int
}

// Config bundles everything New needs to assemble an Indexer for one
// project, already constructed by the registry's factory.
type Config struct {
	Root        string
	Project     string
	Tracker     *tracker.Tracker
	Chunker     *chunk.Chunker
	Batcher     *embedbatch.Batcher
	Store       *chunkstore.Store
	Dimension   int
	Precision   vectorindex.Precision
	Parallelism int
}

// New builds an Indexer. If the store already has a dimension/precision
// recorded in its metadata table, that takes precedence over cfg
// (the index must match what's already on disk); otherwise cfg's values
// are persisted as the project's metadata.
func New(ctx context.Context, cfg Config) (*Indexer, error) {
	dimension := cfg.Dimension
	precision := cfg.Precision
	if precision == "" {
		precision = vectorindex.PrecisionSingle
	}

	if v, ok, err := cfg.Store.GetMetadata(ctx, metaDimension); err == nil && ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			dimension = n
		}
	}
	if v, ok, err := cfg.Store.GetMetadata(ctx, metaPrecision); err == nil && ok && v != "" {
		precision = vectorindex.Precision(v)
	}

	idx := &Indexer{
		root:        cfg.Root,
		project:     cfg.Project,
		tracker:     cfg.Tracker,
		chunker:     cfg.Chunker,
		batcher:     cfg.Batcher,
		store:       cfg.Store,
		dimension:   dimension,
		precision:   precision,
		parallelism: cfg.Parallelism,
	}

	if dimension > 0 {
		if err := idx.rebuildIndexLocked(ctx); err != nil {
			return nil, err
		}
	} else {
		idx.index = vectorindex.New(0, precision, vectorindex.WithParallelism(cfg.Parallelism))
	}

	_ = idx.tracker.LoadState(idx.root, idx.project)
	return idx, nil
}

func (ix *Indexer) rebuildIndexLocked(ctx context.Context) error {
	vi := vectorindex.New(ix.dimension, ix.precision, vectorindex.WithParallelism(ix.parallelism))
	err := ix.store.LoadAll(ctx, func(r *chunkstore.Record) error {
		return vi.Add(vectorindex.VectorEntry{
			ID:        r.Chunk.ID,
			Path:      r.Chunk.Path,
			StartLine: r.Chunk.StartLine,
			EndLine:   r.Chunk.EndLine,
			Text:      r.Chunk.Text,
			Embedding: r.Embedding,
			Precision: vectorindex.Precision(r.Precision),
			Kind:      r.Chunk.Kind,
			ModTime:   r.Chunk.ModTime,
		})
	})
	if err != nil {
		return fmt.Errorf("indexer: rebuild index: %w", err)
	}
	ix.index = vi
	return nil
}

// adoptDimension locks in the index's dimension/precision the first
// time a real embedding arrives (Config.Dimension may be 0 until then,
// per config.go's "auto-detected from the first embed response").
func (ix *Indexer) adoptDimension(ctx context.Context, dimension int, precision string) {
	if ix.dimension != 0 {
		return
	}
	ix.dimension = dimension
	ix.precision = vectorindex.Precision(precision)
	ix.index = vectorindex.New(dimension, ix.precision, vectorindex.WithParallelism(ix.parallelism))
	_ = ix.store.SaveMetadata(ctx, metaDimension, strconv.Itoa(dimension))
	_ = ix.store.SaveMetadata(ctx, metaPrecision, precision)
	_ = ix.store.SaveMetadata(ctx, metaCPU, ix.index.SIMDMethod())
	_ = ix.store.SaveMetadata(ctx, metaProjectDir, ix.root)
}

// IndexDirectory runs one full reindex cycle: diff, delete, chunk,
// embed, persist, append, snapshot. When force is true, ChunkStore, VectorIndex, and the ChangeTracker
// snapshot are discarded first (EmbeddingCache is untouched) and every
// eligible file is treated as added. precomputed lets a caller (the
// watcher) supply an already-known set of changes instead of asking
// ChangeTracker to walk the tree.
func (ix *Indexer) IndexDirectory(ctx context.Context, force bool, precomputed *tracker.FileChanges) (IndexStats, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	start := time.Now()
	var stats IndexStats

	if force {
		ix.tracker.ClearCache(ix.project)
		if err := ix.store.Clear(ctx); err != nil {
			return stats, fmt.Errorf("indexer: clear store: %w", err)
		}
		ix.index = vectorindex.New(ix.dimension, ix.precision, vectorindex.WithParallelism(ix.parallelism))
	}

	var changes tracker.FileChanges
	switch {
	case precomputed != nil:
		changes = *precomputed
	default:
		c, err := ix.tracker.GetChanges(ix.root, ix.project, nil)
		if err != nil {
			return stats, fmt.Errorf("indexer: get changes: %w", err)
		}
		changes = c
	}

	if !changes.HasChanges() && !force {
		return stats, nil
	}

	stats.FilesAdded = len(changes.Added)
	stats.FilesModified = len(changes.Modified)
	stats.FilesRemoved = len(changes.Removed)

	for path := range changes.Removed {
		ix.deletePath(ctx, path)
	}
	for path := range changes.Modified {
		ix.deletePath(ctx, path)
	}

	var toChunk []string
	for path := range changes.Added {
		toChunk = append(toChunk, path)
	}
	for path := range changes.Modified {
		toChunk = append(toChunk, path)
	}

	allChunks := ix.chunkAll(ctx, toChunk)

	if len(allChunks) > 0 {
		results, embedStats, err := ix.batcher.EmbedChunks(ctx, allChunks)
		if err != nil {
			return stats, fmt.Errorf("indexer: embed chunks: %w", err)
		}
		stats.CacheHits = embedStats.CacheHits
		stats.CacheMisses = embedStats.CacheMisses
		stats.BatchesSent = embedStats.BatchesSent
		stats.BatchesDropped = embedStats.BatchesDropped
		stats.ChunksSkipped = embedStats.ChunksSkipped

		var records []*chunkstore.Record
		var entries []vectorindex.VectorEntry
		for _, c := range allChunks {
			res, ok := results[c.ID]
			if !ok {
				continue // batch dropped; this chunk is skipped, not fatal
			}
			if ix.dimension == 0 {
				ix.adoptDimension(ctx, len(res.Embedding)/bytesPerComponent(res.Precision), res.Precision)
			}
			records = append(records, &chunkstore.Record{Chunk: *c, Embedding: res.Embedding, Precision: res.Precision})
			entries = append(entries, vectorindex.VectorEntry{
				ID: c.ID, Path: c.Path, StartLine: c.StartLine, EndLine: c.EndLine, Text: c.Text,
				Embedding: res.Embedding, Precision: vectorindex.Precision(res.Precision), Kind: c.Kind, ModTime: c.ModTime,
			})
		}

		if len(records) > 0 {
			if err := ix.store.SaveChunks(ctx, records); err != nil {
				return stats, fmt.Errorf("indexer: save chunks: %w", err)
			}
			if err := ix.index.AppendBatch(entries); err != nil {
				return stats, fmt.Errorf("indexer: append batch: %w", err)
			}
			stats.ChunksIndexed = len(records)
		}
	}

	if err := ix.tracker.SaveState(ix.root, ix.project); err != nil {
		slog.Warn("indexer_save_state_failed", slog.String("project", ix.project), slog.String("error", err.Error()))
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

func bytesPerComponent(precision string) int {
	if precision == "half" {
		return 2
	}
	return 4
}

func (ix *Indexer) deletePath(ctx context.Context, path string) {
	if _, err := ix.store.DeleteByPath(ctx, path); err != nil {
		slog.Warn("indexer_delete_by_path_failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	if ix.index != nil {
		ix.index.RemoveByPath(path)
	}
}

// chunkAll chunks every path under the worker pool. A file that fails
// to read is logged and skipped, never fatal; results are re-sorted by
// path so downstream persistence order is deterministic.
func (ix *Indexer) chunkAll(ctx context.Context, paths []string) []*chunktype.Chunk {
	var mu sync.Mutex
	var all []*chunktype.Chunk

	g, gctx := errgroup.WithContext(ctx)
	limit := ix.parallelism
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, p := range paths {
		path := p
		g.Go(func() error {
			chunks, err := ix.chunkFile(gctx, path)
			if err != nil {
				slog.Warn("indexer_chunk_failed", slog.String("path", path), slog.String("error", err.Error()))
				return nil
			}
			mu.Lock()
			all = append(all, chunks...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

func (ix *Indexer) chunkFile(ctx context.Context, path string) ([]*chunktype.Chunk, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	chunks := ix.chunker.ChunkFile(ctx, path, content)
	for _, c := range chunks {
		c.ModTime = info.ModTime()
	}
	return chunks, nil
}

// Search embeds query (optionally expanded) and returns the VectorIndex
// top-K, re-ranked result set.
func (ix *Indexer) Search(ctx context.Context, query string, k int, expand bool) ([]vectorindex.SearchResult, error) {
	ix.mu.RLock()
	index := ix.index
	dimension := ix.dimension
	ix.mu.RUnlock()

	if index == nil || dimension == 0 {
		return nil, nil
	}

	effective := query
	if expand {
		effective = ExpandQuery(query)
	}

	blob, precision, err := ix.batcher.EmbedQuery(ctx, effective)
	if err != nil {
		return nil, fmt.Errorf("indexer: embed query: %w", err)
	}

	vec, err := vectorindex.Decode(vectorindex.Precision(precision), dimension, blob)
	if err != nil {
		return nil, fmt.Errorf("indexer: decode query embedding: %w", err)
	}

	return index.Search(vec, k)
}

// Clear discards ChunkStore, VectorIndex, and the ChangeTracker
// snapshot for this project, preserving EmbeddingCache (force reindex
// without the reindex).
func (ix *Indexer) Clear(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.tracker.ClearCache(ix.project)
	if err := ix.store.Clear(ctx); err != nil {
		return fmt.Errorf("indexer: clear store: %w", err)
	}
	ix.index = vectorindex.New(ix.dimension, ix.precision, vectorindex.WithParallelism(ix.parallelism))
	return nil
}

// Stats returns a point-in-time snapshot of this project's index state.
func (ix *Indexer) Stats(ctx context.Context) (IndexStatistics, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	count, err := ix.store.ChunkCount(ctx)
	if err != nil {
		return IndexStatistics{}, fmt.Errorf("indexer: chunk count: %w", err)
	}

	stats := IndexStatistics{
		Project:     ix.project,
		ChunkCount:  count,
		Dimension:   ix.dimension,
		Precision:   string(ix.precision),
		Parallelism: ix.parallelism,
	}
	if ix.index != nil {
		stats.VectorCount = ix.index.Len()
		stats.SIMDMethod = ix.index.SIMDMethod()
	}
	return stats, nil
}

// Close releases the project's ChunkStore handle. The EmbeddingCache is
// shared across projects and is not owned here.
func (ix *Indexer) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.store.Close()
}

// Root returns the project's filesystem root.
func (ix *Indexer) Root() string { return ix.root }

// Project returns the project's identifying name.
func (ix *Indexer) Project() string { return ix.project }

// ProjectStateFilePath exposes the tracker's on-disk snapshot path, for
// diagnostics ("amanmcp doctor"-style commands).
func ProjectStateFilePath(stateDir, root, project string) string {
	return tracker.StateFilePath(stateDir, root, project)
}
