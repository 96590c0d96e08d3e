package indexer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/chunk"
	"github.com/Aman-CERP/amanmcp/internal/chunkstore"
	"github.com/Aman-CERP/amanmcp/internal/embedbatch"
	"github.com/Aman-CERP/amanmcp/internal/embedcache"
	"github.com/Aman-CERP/amanmcp/internal/embedclient"
	"github.com/Aman-CERP/amanmcp/internal/tracker"
	"github.com/Aman-CERP/amanmcp/internal/vectorindex"
)

func encodeVector(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// embedByKeyword is a deterministic stand-in for the embedding service:
// texts mentioning Foo, Bar, and anything else map to three orthogonal
// unit vectors, so cosine search has an unambiguous winner.
func embedByKeyword(text string) []byte {
	switch {
	case strings.Contains(text, "Foo"):
		return encodeVector([]float32{1, 0, 0})
	case strings.Contains(text, "Bar"):
		return encodeVector([]float32{0, 1, 0})
	default:
		return encodeVector([]float32{0, 0, 1})
	}
}

func newEmbedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := struct {
			Embeddings [][]byte `json:"embeddings"`
			Dimension  int      `json:"dimension"`
			Precision  string   `json:"precision"`
		}{Dimension: 3, Precision: "single"}
		for _, text := range req.Input {
			resp.Embeddings = append(resp.Embeddings, embedByKeyword(text))
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testSession struct {
	indexer *Indexer
	cache   *embedcache.Cache
	root    string
}

func newTestSession(t *testing.T) *testSession {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()
	appData := t.TempDir()

	srv := newEmbedServer(t)
	client := embedclient.New(embedclient.Config{Endpoint: srv.URL, Model: "test-model"})
	t.Cleanup(func() { _ = client.Close() })

	cache, err := embedcache.Open(filepath.Join(appData, "embedding_cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	store, err := chunkstore.Open(filepath.Join(appData, "codesearch-proj.db"))
	require.NoError(t, err)

	opts := chunk.DefaultOptions()
	opts.InjectFilePathContext = false

	ix, err := New(ctx, Config{
		Root:        root,
		Project:     "proj",
		Tracker:     tracker.New(filepath.Join(appData, "state")),
		Chunker:     chunk.New(opts),
		Batcher: embedbatch.New(client, cache, embedbatch.Options{
			Model: "test-model", Project: "proj",
		}),
		Store:       store,
		Precision:   vectorindex.PrecisionSingle,
		Parallelism: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })

	return &testSession{indexer: ix, cache: cache, root: root}
}

func (s *testSession) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(s.root, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIndexer_ColdIndexAndSearch(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	aPath := s.writeFile(t, "a.go", "package a\n\nfunc Foo() {\n\t_ = 1\n}\n")
	s.writeFile(t, "b.go", "package b\n\nfunc Bar() {\n\t_ = 2\n}\n")

	stats, err := s.indexer.IndexDirectory(ctx, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesAdded)
	assert.GreaterOrEqual(t, stats.ChunksIndexed, 2)

	results, err := s.indexer.Search(ctx, "Foo", 5, false)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, aPath, results[0].Entry.Path)
	assert.InDelta(t, 1.0, results[0].Cosine, 1e-4)
}

func TestIndexer_SecondRunIsIdempotent(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	s.writeFile(t, "a.go", "package a\n\nfunc Foo() {}\n")

	_, err := s.indexer.IndexDirectory(ctx, false, nil)
	require.NoError(t, err)

	stats, err := s.indexer.IndexDirectory(ctx, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FilesAdded)
	assert.Equal(t, 0, stats.FilesModified)
	assert.Equal(t, 0, stats.FilesRemoved)
	assert.Equal(t, 0, stats.ChunksIndexed)
}

func TestIndexer_DeletionPropagates(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	aPath := s.writeFile(t, "a.go", "package a\n\nfunc Foo() {}\n")
	s.writeFile(t, "b.go", "package b\n\nfunc Bar() {}\n")

	_, err := s.indexer.IndexDirectory(ctx, false, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(aPath))

	stats, err := s.indexer.IndexDirectory(ctx, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesRemoved)

	results, err := s.indexer.Search(ctx, "Foo", 5, false)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, aPath, r.Entry.Path, "removed file must not appear in results")
	}
}

func TestIndexer_ModifiedFileReindexed(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	aPath := s.writeFile(t, "a.go", "package a\n\nfunc Foo() {}\n")
	_, err := s.indexer.IndexDirectory(ctx, false, nil)
	require.NoError(t, err)

	s.writeFile(t, "a.go", "package a\n\nfunc Bar() {}\n")
	stats, err := s.indexer.IndexDirectory(ctx, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesModified)

	results, err := s.indexer.Search(ctx, "Bar", 5, false)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, aPath, results[0].Entry.Path)
}

func TestIndexer_ForceReindexPreservesEmbeddingCache(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	s.writeFile(t, "a.go", "package a\n\nfunc Foo() {}\n")

	_, err := s.indexer.IndexDirectory(ctx, false, nil)
	require.NoError(t, err)

	sizeBefore, err := s.cache.Size(ctx)
	require.NoError(t, err)
	require.Greater(t, sizeBefore, 0)

	stats, err := s.indexer.IndexDirectory(ctx, true, nil)
	require.NoError(t, err)
	assert.Greater(t, stats.CacheHits, 0, "unchanged texts are served from the embedding cache")
	assert.Equal(t, 0, stats.CacheMisses)

	sizeAfter, err := s.cache.Size(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sizeAfter, sizeBefore)
}

func TestIndexer_KZeroReturnsEmpty(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	s.writeFile(t, "a.go", "package a\n\nfunc Foo() {}\n")
	_, err := s.indexer.IndexDirectory(ctx, false, nil)
	require.NoError(t, err)

	results, err := s.indexer.Search(ctx, "Foo", 0, false)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndexer_SearchBeforeAnyIndexReturnsNil(t *testing.T) {
	s := newTestSession(t)

	results, err := s.indexer.Search(context.Background(), "anything", 5, false)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestIndexer_StatsReflectState(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	s.writeFile(t, "a.go", "package a\n\nfunc Foo() {}\n")
	_, err := s.indexer.IndexDirectory(ctx, false, nil)
	require.NoError(t, err)

	st, err := s.indexer.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "proj", st.Project)
	assert.Greater(t, st.ChunkCount, 0)
	assert.Equal(t, st.ChunkCount, st.VectorCount)
	assert.Equal(t, 3, st.Dimension)
	assert.Equal(t, "single", st.Precision)
}

func TestIndexer_ClearEmptiesIndexButNotCache(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	s.writeFile(t, "a.go", "package a\n\nfunc Foo() {}\n")
	_, err := s.indexer.IndexDirectory(ctx, false, nil)
	require.NoError(t, err)

	cacheBefore, err := s.cache.Size(ctx)
	require.NoError(t, err)

	require.NoError(t, s.indexer.Clear(ctx))

	st, err := s.indexer.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.ChunkCount)
	assert.Equal(t, 0, st.VectorCount)

	cacheAfter, err := s.cache.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, cacheBefore, cacheAfter)
}
