package chunkstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/chunktype"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "codesearch-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(id, path string, start, end int, kind chunktype.Kind, embedding []byte) *Record {
	return &Record{
		Chunk: chunktype.Chunk{
			ID: id, Path: path, StartLine: start, EndLine: end,
			Text: "text for " + id, Kind: kind,
			ModTime: time.Unix(1700000000, 0).UTC(),
		},
		Embedding: embedding,
		Precision: "single",
	}
}

func TestStore_SaveAndGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	in := []*Record{
		record("a.go:1", "/p/a.go", 1, 10, chunktype.KindMethod, []byte{1, 2, 3, 4}),
		record("a.go:12", "/p/a.go", 12, 20, chunktype.KindClass, []byte{5, 6, 7, 8}),
		record("b.go:1", "/p/b.go", 1, 5, chunktype.KindFile, []byte{9, 10, 11, 12}),
	}
	require.NoError(t, s.SaveChunks(ctx, in))

	out, err := s.GetChunksByIDs(ctx, []string{"a.go:1", "a.go:12", "b.go:1"})
	require.NoError(t, err)
	require.Len(t, out, 3)

	byID := make(map[string]*Record)
	for _, r := range out {
		byID[r.Chunk.ID] = r
	}
	for _, want := range in {
		got, ok := byID[want.Chunk.ID]
		require.True(t, ok, "missing %s", want.Chunk.ID)
		assert.Equal(t, want.Chunk.Path, got.Chunk.Path)
		assert.Equal(t, want.Chunk.StartLine, got.Chunk.StartLine)
		assert.Equal(t, want.Chunk.EndLine, got.Chunk.EndLine)
		assert.Equal(t, want.Chunk.Text, got.Chunk.Text)
		assert.Equal(t, want.Chunk.Kind, got.Chunk.Kind)
		assert.Equal(t, want.Embedding, got.Embedding)
		assert.Equal(t, want.Precision, got.Precision)
		assert.Equal(t, want.Chunk.ModTime, got.Chunk.ModTime)
	}
}

func TestStore_SaveChunks_UpsertsByID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChunks(ctx, []*Record{record("a.go:1", "/p/a.go", 1, 10, chunktype.KindMethod, []byte{1})}))

	updated := record("a.go:1", "/p/a.go", 1, 12, chunktype.KindMethod, []byte{2})
	updated.Chunk.Text = "rewritten"
	require.NoError(t, s.SaveChunks(ctx, []*Record{updated}))

	n, err := s.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out, err := s.GetChunksByIDs(ctx, []string{"a.go:1"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "rewritten", out[0].Chunk.Text)
	assert.Equal(t, 12, out[0].Chunk.EndLine)
}

func TestStore_GetChunksByIDs_OmitsMissing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChunks(ctx, []*Record{record("a.go:1", "/p/a.go", 1, 10, chunktype.KindMethod, []byte{1})}))

	out, err := s.GetChunksByIDs(ctx, []string{"a.go:1", "missing:9"})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestStore_DeleteByPath_ReturnsRemovedIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChunks(ctx, []*Record{
		record("a.go:1", "/p/a.go", 1, 10, chunktype.KindMethod, []byte{1}),
		record("a.go:12", "/p/a.go", 12, 20, chunktype.KindMethod, []byte{2}),
		record("b.go:1", "/p/b.go", 1, 5, chunktype.KindFile, []byte{3}),
	}))

	ids, err := s.DeleteByPath(ctx, "/p/a.go")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.go:1", "a.go:12"}, ids)

	n, err := s.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Deleting a path with no chunks is a no-op.
	ids, err = s.DeleteByPath(ctx, "/p/never.go")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStore_LoadAll_VisitsEveryRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChunks(ctx, []*Record{
		record("a.go:1", "/p/a.go", 1, 10, chunktype.KindMethod, []byte{1}),
		record("b.go:1", "/p/b.go", 1, 5, chunktype.KindFile, []byte{2}),
	}))

	var seen []string
	require.NoError(t, s.LoadAll(ctx, func(r *Record) error {
		seen = append(seen, r.Chunk.ID)
		return nil
	}))
	assert.ElementsMatch(t, []string{"a.go:1", "b.go:1"}, seen)
}

func TestStore_Clear_RemovesChunksAndMetadata(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChunks(ctx, []*Record{record("a.go:1", "/p/a.go", 1, 10, chunktype.KindMethod, []byte{1})}))
	require.NoError(t, s.SaveMetadata(ctx, "dimension", "768"))

	require.NoError(t, s.Clear(ctx))

	n, err := s.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, ok, err := s.GetMetadata(ctx, "dimension")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Metadata_RoundTripAndUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetMetadata(ctx, "precision")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveMetadata(ctx, "precision", "single"))
	require.NoError(t, s.SaveMetadata(ctx, "precision", "half"))

	v, ok, err := s.GetMetadata(ctx, "precision")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "half", v)
}

func TestStore_HalfPrecisionTagSurvivesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := record("a.go:1", "/p/a.go", 1, 10, chunktype.KindMethod, []byte{1, 2})
	r.Precision = "half"
	require.NoError(t, s.SaveChunks(ctx, []*Record{r}))

	out, err := s.GetChunksByIDs(ctx, []string{"a.go:1"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "half", out[0].Precision)
}

func TestStore_SecondOpenOnSameFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locked.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, err = Open(path)
	assert.Error(t, err, "the advisory lock rejects a second opener")
}

func TestStore_ClosedStoreRejectsOperations(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())

	err := s.SaveChunks(context.Background(), []*Record{record("a.go:1", "/p/a.go", 1, 1, chunktype.KindFile, []byte{1})})
	assert.Error(t, err)
}
