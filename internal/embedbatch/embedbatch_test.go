package embedbatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/chunktype"
	"github.com/Aman-CERP/amanmcp/internal/embedcache"
	"github.com/Aman-CERP/amanmcp/internal/embedclient"
	"github.com/Aman-CERP/amanmcp/internal/errlog"
)

type serverResponse struct {
	Embeddings [][]byte `json:"embeddings"`
	Dimension  int      `json:"dimension"`
	Precision  string   `json:"precision"`
}

// newEmbedServer answers every request with one 4-byte blob per input,
// tagging the first byte with the input's position in the request.
func newEmbedServer(t *testing.T, requestCount *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestCount != nil {
			requestCount.Add(1)
		}
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := serverResponse{Dimension: 1, Precision: "single"}
		for i := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []byte{byte(i), 0, 0, 0})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestBatcher(t *testing.T, endpoint string, opts Options) *Batcher {
	t.Helper()
	cache, err := embedcache.Open(filepath.Join(t.TempDir(), "embedding_cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	client := embedclient.New(embedclient.Config{Endpoint: endpoint, Model: "test-model"})
	t.Cleanup(func() { _ = client.Close() })

	if opts.Model == "" {
		opts.Model = "test-model"
	}
	return New(client, cache, opts)
}

func testChunk(id, text string) *chunktype.Chunk {
	return &chunktype.Chunk{ID: id, Path: "/p/" + id, StartLine: 1, EndLine: 2, Text: text, Kind: chunktype.KindMethod}
}

func TestBatcher_EmbedChunks_AllEmbedded(t *testing.T) {
	var calls atomic.Int64
	srv := newEmbedServer(t, &calls)
	b := newTestBatcher(t, srv.URL, DefaultOptions("test-model"))

	chunks := []*chunktype.Chunk{
		testChunk("a", "func A() {}"),
		testChunk("b", "func B() {}"),
		testChunk("c", "func C() {}"),
	}

	results, stats, err := b.EmbedChunks(context.Background(), chunks)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, 3, stats.CacheMisses)
	assert.Equal(t, 0, stats.CacheHits)
	assert.Equal(t, int64(1), calls.Load(), "three small chunks fit in one batch")

	// Results bind back to their originating chunks by position.
	assert.Equal(t, []byte{0, 0, 0, 0}, results["a"].Embedding)
	assert.Equal(t, []byte{1, 0, 0, 0}, results["b"].Embedding)
	assert.Equal(t, []byte{2, 0, 0, 0}, results["c"].Embedding)
}

func TestBatcher_SecondCallHitsCache(t *testing.T) {
	var calls atomic.Int64
	srv := newEmbedServer(t, &calls)
	b := newTestBatcher(t, srv.URL, DefaultOptions("test-model"))

	chunks := []*chunktype.Chunk{testChunk("a", "func A() {}")}

	_, stats, err := b.EmbedChunks(context.Background(), chunks)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CacheMisses)

	results, stats, err := b.EmbedChunks(context.Background(), chunks)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CacheHits)
	assert.Equal(t, 0, stats.CacheMisses)
	assert.Equal(t, int64(1), calls.Load(), "the second call must not reach the network")
	assert.True(t, results["a"].CacheHit)
}

func TestBatcher_BuildBatches_CountBound(t *testing.T) {
	b := newTestBatcher(t, "http://unused", Options{BatchSize: 2, MaxChars: 1000, Model: "m"})

	items := []item{
		{chunk: testChunk("a", "1234")},
		{chunk: testChunk("b", "1234")},
		{chunk: testChunk("c", "1234")},
	}
	batches := b.buildBatches(items)

	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 1)
}

func TestBatcher_BuildBatches_CharBudget(t *testing.T) {
	b := newTestBatcher(t, "http://unused", Options{BatchSize: 100, MaxChars: 100, Model: "m"})

	items := []item{
		{chunk: testChunk("a", strings.Repeat("x", 60))},
		{chunk: testChunk("b", strings.Repeat("y", 60))},
	}
	batches := b.buildBatches(items)

	require.Len(t, batches, 2, "a second 60-char item overflows the 100-char budget")
}

func TestBatcher_BuildBatches_OversizedItemIsOwnBatch(t *testing.T) {
	b := newTestBatcher(t, "http://unused", Options{BatchSize: 100, MaxChars: 100, Model: "m"})

	items := []item{
		{chunk: testChunk("small1", "abc")},
		{chunk: testChunk("huge", strings.Repeat("z", 500))},
		{chunk: testChunk("small2", "def")},
	}
	batches := b.buildBatches(items)

	require.Len(t, batches, 3)
	assert.Equal(t, "small1", batches[0][0].chunk.ID)
	assert.Equal(t, "huge", batches[1][0].chunk.ID)
	assert.Len(t, batches[1], 1)
	assert.Equal(t, "small2", batches[2][0].chunk.ID)
}

func TestBatcher_PermanentFailureDropsBatchOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	opts := DefaultOptions("test-model")
	opts.Retry = errlog.RetryConfig{MaxRetries: 0, InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond}
	b := newTestBatcher(t, srv.URL, opts)

	results, stats, err := b.EmbedChunks(context.Background(), []*chunktype.Chunk{testChunk("a", "text")})
	require.NoError(t, err, "a dropped batch is not an error for the whole call")
	assert.Empty(t, results)
	assert.Equal(t, 1, stats.BatchesDropped)
	assert.Equal(t, 1, stats.ChunksSkipped)
}

func TestBatcher_TransientFailureRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := serverResponse{Dimension: 1, Precision: "single"}
		for range req.Input {
			resp.Embeddings = append(resp.Embeddings, []byte{9, 0, 0, 0})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	opts := DefaultOptions("test-model")
	opts.Retry = errlog.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond}
	b := newTestBatcher(t, srv.URL, opts)

	results, stats, err := b.EmbedChunks(context.Background(), []*chunktype.Chunk{testChunk("a", "text")})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, stats.BatchesDropped)
	assert.Equal(t, int64(2), calls.Load())
}

func TestBatcher_EmbedQuery_CachedByText(t *testing.T) {
	var calls atomic.Int64
	srv := newEmbedServer(t, &calls)
	b := newTestBatcher(t, srv.URL, DefaultOptions("test-model"))

	blob, precision, err := b.EmbedQuery(context.Background(), "find the auth code")
	require.NoError(t, err)
	assert.Equal(t, "single", precision)
	assert.Len(t, blob, 4)

	_, _, err = b.EmbedQuery(context.Background(), "find the auth code")
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load(), "an identical query is served from cache")
}
