// Package embedbatch implements the engine's EmbeddingBatcher: it
// dynamically groups chunk texts into batches bounded by count and by
// an approximate character budget, consults the EmbeddingCache
// before calling the external embedding capability, and binds results
// back to the originating chunks by index.
package embedbatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/amanmcp/internal/chunktype"
	"github.com/Aman-CERP/amanmcp/internal/contenthash"
	"github.com/Aman-CERP/amanmcp/internal/embedcache"
	"github.com/Aman-CERP/amanmcp/internal/embedclient"
	"github.com/Aman-CERP/amanmcp/internal/errlog"
)

// Batching budget: 120k-token request limit, assumed 3 chars/token, 0.8
// safety margin. Tuning constants; may need to become model-dependent.
const (
	DefaultBatchSize = 64
	DefaultMaxChars  = 288_000 // 120_000 tokens * 3 chars/token * 0.8
)

// Options configures a Batcher.
type Options struct {
	BatchSize              int
	MaxChars               int
	Model                  string
	Project                string
	QueryInstructionPrefix string
	Retry                  errlog.RetryConfig
}

// DefaultOptions returns the default batching configuration for model.
func DefaultOptions(model string) Options {
	return Options{
		BatchSize: DefaultBatchSize,
		MaxChars:  DefaultMaxChars,
		Model:     model,
		Retry:     errlog.DefaultRetryConfig(),
	}
}

// Result is one chunk's embedding outcome.
type Result struct {
	ChunkID   string
	Embedding []byte
	Precision string
	CacheHit  bool
}

// Stats summarizes one EmbedChunks call, surfaced by the Indexer as part
// of IndexStats.
type Stats struct {
	CacheHits      int
	CacheMisses    int
	BatchesSent    int
	BatchesDropped int
	ChunksSkipped  int
}

// Batcher dynamically batches chunk texts, consults the EmbeddingCache,
// and calls the embedding capability for cache misses.
type Batcher struct {
	client *embedclient.Client
	cache  *embedcache.Cache
	opts   Options
}

// New builds a Batcher. opts.BatchSize and opts.MaxChars default to
// constants when zero.
func New(client *embedclient.Client, cache *embedcache.Cache, opts Options) *Batcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	return &Batcher{client: client, cache: cache, opts: opts}
}

// item is one chunk queued for embedding, after a cache miss.
type item struct {
	chunk *chunktype.Chunk
	hash  string
}

// EmbedChunks returns the document embedding for every chunk, keyed by
// chunk ID, consulting the cache first and batching the remainder against
// the embedding capability. A batch that ultimately fails (after
// retries) is logged and skipped: its chunks are simply absent from the
// result map, not an error for the whole call.
func (b *Batcher) EmbedChunks(ctx context.Context, chunks []*chunktype.Chunk) (map[string]Result, Stats, error) {
	results := make(map[string]Result, len(chunks))
	var stats Stats

	var misses []item
	for _, c := range chunks {
		hash := contenthash.HashBytes([]byte(c.Text))
		key := embedcache.Key{ContentHash: hash, Kind: embedcache.KindDocument, Model: b.opts.Model, Project: b.opts.Project}
		if blob, ok, err := b.cache.Get(ctx, key); err == nil && ok {
			stats.CacheHits++
			results[c.ID] = Result{ChunkID: c.ID, Embedding: blob, Precision: "single", CacheHit: true}
			continue
		}
		stats.CacheMisses++
		misses = append(misses, item{chunk: c, hash: hash})
	}

	for _, batch := range b.buildBatches(misses) {
		select {
		case <-ctx.Done():
			return results, stats, ctx.Err()
		default:
		}

		texts := make([]string, len(batch))
		for i, it := range batch {
			texts[i] = it.chunk.Text
		}

		var res *embedclient.Result
		err := errlog.Retry(ctx, b.opts.Retry, func() error {
			r, err := b.client.Embed(ctx, texts, embedclient.KindDocument, "")
			if err != nil {
				return err
			}
			res = r
			return nil
		})
		stats.BatchesSent++
		if err != nil {
			slog.Warn("embedbatch_dropped",
				slog.Int("batch_size", len(batch)),
				slog.String("error", err.Error()))
			stats.BatchesDropped++
			stats.ChunksSkipped += len(batch)
			continue
		}

		for i, it := range batch {
			blob := res.Embeddings[i]
			precision := res.Precision
			if precision == "" {
				precision = "single"
			}
			results[it.chunk.ID] = Result{ChunkID: it.chunk.ID, Embedding: blob, Precision: precision}

			key := embedcache.Key{ContentHash: it.hash, Kind: embedcache.KindDocument, Model: b.opts.Model, Project: b.opts.Project}
			if err := b.cache.Put(ctx, key, blob); err != nil {
				slog.Warn("embedbatch_cache_put_failed", slog.String("chunk_id", it.chunk.ID), slog.String("error", err.Error()))
			}
		}
	}

	return results, stats, nil
}

// buildBatches groups items under the count and character budget: a
// batch keeps growing while both item count < BatchSize and cumulative
// characters <= MaxChars. A single item that alone exceeds MaxChars is
// sent as its own batch, with a warning.
func (b *Batcher) buildBatches(items []item) [][]item {
	var batches [][]item
	var current []item
	var currentChars int

	flush := func() {
		if len(current) > 0 {
			batches = append(batches, current)
			current = nil
			currentChars = 0
		}
	}

	for _, it := range items {
		n := len(it.chunk.Text)
		if n > b.opts.MaxChars {
			flush()
			slog.Warn("embedbatch_oversized_item",
				slog.String("chunk_id", it.chunk.ID), slog.Int("chars", n), slog.Int("max_chars", b.opts.MaxChars))
			batches = append(batches, []item{it})
			continue
		}

		if len(current) >= b.opts.BatchSize || currentChars+n > b.opts.MaxChars {
			flush()
		}
		current = append(current, it)
		currentChars += n
	}
	flush()

	return batches
}

// EmbedQuery embeds a single query string through the separate
// embed_query entry point, passing the configured query-instruction
// prefix to the embedding client alongside the unmodified text to
// improve asymmetric retrieval quality. It
// still consults the cache (kind=query) so repeated identical searches
// skip the network round trip.
func (b *Batcher) EmbedQuery(ctx context.Context, text string) ([]byte, string, error) {
	hash := contenthash.HashBytes([]byte(text))
	key := embedcache.Key{ContentHash: hash, Kind: embedcache.KindQuery, Model: b.opts.Model, Project: b.opts.Project}
	if blob, ok, err := b.cache.Get(ctx, key); err == nil && ok {
		return blob, "single", nil
	}

	var res *embedclient.Result
	err := errlog.Retry(ctx, b.opts.Retry, func() error {
		r, err := b.client.Embed(ctx, []string{text}, embedclient.KindQuery, b.opts.QueryInstructionPrefix)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("embedbatch: query embed failed: %w", err)
	}
	if len(res.Embeddings) != 1 {
		return nil, "", fmt.Errorf("embedbatch: expected 1 embedding for query, got %d", len(res.Embeddings))
	}

	precision := res.Precision
	if precision == "" {
		precision = "single"
	}
	if err := b.cache.Put(ctx, key, res.Embeddings[0]); err != nil {
		slog.Warn("embedbatch_query_cache_put_failed", slog.String("error", err.Error()))
	}
	return res.Embeddings[0], precision, nil
}
