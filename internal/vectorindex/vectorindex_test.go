package vectorindex

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/chunktype"
	"github.com/Aman-CERP/amanmcp/internal/errlog"
)

func encodeSingle(vals ...float32) []byte {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func encodeHalf(vals ...float32) []byte {
	buf := make([]byte, len(vals)*2)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(buf[i*2:], float32ToFloat16(v))
	}
	return buf
}

func entry(id, path string, vals ...float32) VectorEntry {
	return VectorEntry{
		ID:        id,
		Path:      path,
		StartLine: 1,
		EndLine:   10,
		Text:      "x",
		Embedding: encodeSingle(vals...),
		Precision: PrecisionSingle,
		Kind:      chunktype.KindClass,
		ModTime:   time.Now(),
	}
}

func TestIndex_AddAndSearch_RanksByCosine(t *testing.T) {
	idx := New(2, PrecisionSingle)

	require.NoError(t, idx.Add(entry("a", "/p/a.go", 1, 0)))
	require.NoError(t, idx.Add(entry("b", "/p/b.go", 0, 1)))
	require.NoError(t, idx.Add(entry("c", "/p/c.go", 0.7, 0.7)))

	results, err := idx.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Entry.ID)
	assert.InDelta(t, 1.0, results[0].Cosine, 1e-5)
}

func TestIndex_Add_DimensionMismatchIsInvariantViolation(t *testing.T) {
	idx := New(3, PrecisionSingle)
	err := idx.Add(entry("a", "/p/a.go", 1, 0))
	require.Error(t, err)

	var e *errlog.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errlog.CategoryIndexInvariantViolation, e.Category)
	assert.True(t, e.Fatal())
}

func TestIndex_RemoveByID_ExcludesFromSearch(t *testing.T) {
	idx := New(2, PrecisionSingle)
	require.NoError(t, idx.Add(entry("a", "/p/a.go", 1, 0)))
	require.NoError(t, idx.Add(entry("b", "/p/b.go", 0, 1)))

	assert.True(t, idx.RemoveByID("a"))
	assert.False(t, idx.RemoveByID("a")) // already gone

	results, err := idx.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Entry.ID)
}

func TestIndex_RemoveByPath_CompactsPastThreshold(t *testing.T) {
	idx := New(2, PrecisionSingle)
	for i := 0; i < 4; i++ {
		require.NoError(t, idx.Add(entry(string(rune('a'+i)), "/p/shared.go", 1, 0)))
	}
	require.NoError(t, idx.Add(entry("keep", "/p/keep.go", 0, 1)))

	removed := idx.RemoveByPath("/p/shared.go")
	assert.Len(t, removed, 4)
	assert.Equal(t, 1, idx.Len())

	// Deleted ratio was 4/5 > 0.25, so compact should have run: no
	// free slots or deleted bits left outstanding.
	idx.mu.RLock()
	assert.Equal(t, 0, idx.deletedCount)
	assert.Empty(t, idx.freeSlots)
	idx.mu.RUnlock()

	results, err := idx.Search([]float32{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "keep", results[0].Entry.ID)
}

func TestIndex_AppendBatch_ReusesDeletedSlots(t *testing.T) {
	idx := New(2, PrecisionSingle)
	require.NoError(t, idx.Add(entry("a", "/p/a.go", 1, 0)))
	require.NoError(t, idx.Add(entry("b", "/p/b.go", 0, 1)))
	idx.RemoveByID("a")

	require.NoError(t, idx.AppendBatch([]VectorEntry{
		entry("c", "/p/c.go", 1, 1),
		entry("d", "/p/d.go", -1, 0),
	}))

	assert.Equal(t, 3, idx.Len())
	results, err := idx.Search([]float32{1, 1}, 10)
	require.NoError(t, err)
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Entry.ID
	}
	assert.Contains(t, ids, "c")
	assert.Contains(t, ids, "d")
	assert.Contains(t, ids, "b")
	assert.NotContains(t, ids, "a")
}

func TestIndex_HalfPrecision_AgreesWithSingleWithinTolerance(t *testing.T) {
	single := New(3, PrecisionSingle)
	half := New(3, PrecisionHalf)

	vals := []float32{0.25, -0.5, 0.75}
	require.NoError(t, single.Add(VectorEntry{ID: "a", Path: "/p/a.go", Embedding: encodeSingle(vals...), Precision: PrecisionSingle, ModTime: time.Now()}))
	require.NoError(t, half.Add(VectorEntry{ID: "a", Path: "/p/a.go", Embedding: encodeHalf(vals...), Precision: PrecisionHalf, ModTime: time.Now()}))

	query := []float32{0.1, 0.9, -0.2}
	rSingle, err := single.Search(query, 1)
	require.NoError(t, err)
	rHalf, err := half.Search(query, 1)
	require.NoError(t, err)

	assert.InDelta(t, rSingle[0].Cosine, rHalf[0].Cosine, 5e-3)
}

func TestIndex_Search_DimensionMismatch(t *testing.T) {
	idx := New(4, PrecisionSingle)
	_, err := idx.Search([]float32{1, 2}, 3)
	require.Error(t, err)
	var e *errlog.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errlog.CategoryIndexInvariantViolation, e.Category)
}

func TestTopK_LargeK_SortsAllCandidates(t *testing.T) {
	candidates := make([]scoredSlot, 30)
	for i := range candidates {
		candidates[i] = scoredSlot{slot: i, combined: float32(i)}
	}
	top := topK(candidates, 25)
	require.Len(t, top, 25)
	assert.Equal(t, float32(29), top[0].combined)
	assert.Equal(t, float32(5), top[24].combined)
}

func TestTopK_TiesBreakByInsertionOrder(t *testing.T) {
	candidates := []scoredSlot{
		{slot: 0, combined: 1.0},
		{slot: 1, combined: 1.0},
		{slot: 2, combined: 1.0},
	}
	top := topK(candidates, 2)
	require.Len(t, top, 2)
	assert.Equal(t, 0, top[0].slot)
	assert.Equal(t, 1, top[1].slot)
}

func TestImportance_AuthHintOutranksDefault(t *testing.T) {
	authWeight := importance("/src/auth/LoginService.cs", &chunktype.Chunk{Kind: chunktype.KindClass})
	defaultWeight := importance("/src/widgets/Widget.cs", &chunktype.Chunk{Kind: chunktype.KindClass})
	assert.Equal(t, float32(1.50), authWeight)
	assert.Equal(t, float32(1.10), defaultWeight)
}

func TestRecencyWeight_Buckets(t *testing.T) {
	now := time.Now()
	assert.Equal(t, float32(1.1), recencyWeight(now.Add(-2*24*time.Hour), now))
	assert.Equal(t, float32(1.05), recencyWeight(now.Add(-20*24*time.Hour), now))
	assert.Equal(t, float32(1.0), recencyWeight(now.Add(-60*24*time.Hour), now))
	assert.Equal(t, float32(0.95), recencyWeight(now.Add(-120*24*time.Hour), now))
}
