// Package vectorindex implements the engine's VectorIndex:
// a per-project, in-memory columnar store of embedding vectors with
// SIMD-accelerated cosine top-K search and re-ranking. It is the
// search-time counterpart to chunkstore's durable copy of the same
// data; chunkstore.LoadAll feeds a fresh Index on startup.
package vectorindex

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/viterin/vek/vek32"

	"github.com/Aman-CERP/amanmcp/internal/chunktype"
	"github.com/Aman-CERP/amanmcp/internal/errlog"
)

// Precision is the storage width of one vector component.
type Precision string

const (
	PrecisionSingle Precision = "single"
	PrecisionHalf   Precision = "half"
)

func bytesPerComponent(p Precision) int {
	if p == PrecisionHalf {
		return 2
	}
	return 4
}

// compactThreshold is the deleted-slot ratio above which remove_by_path
// triggers an automatic compact.
const compactThreshold = 0.25

// minCapacity is the smallest buffer allocation New ever grows to, so a
// freshly created index doesn't re-grow on its first handful of adds.
const minCapacity = 16

// VectorEntry is one row of the in-memory index: a chunk's identity and
// metadata plus its raw embedding blob. Invariant: len(Embedding) ==
// dimension * sizeof(precision).
type VectorEntry struct {
	ID        string
	Path      string
	StartLine int
	EndLine   int
	Text      string
	Embedding []byte
	Precision Precision
	Kind      chunktype.Kind
	ModTime   time.Time
}

// SearchResult is one ranked hit. Cosine is exposed raw for
// transparency; the ordering across a result set reflects the combined
// re-ranking score, not Cosine itself.
type SearchResult struct {
	Entry  VectorEntry
	Cosine float32
}

// Index is one project's columnar vector store: a single contiguous
// buffer of capacity*dimension floats, a parallel metadata slice, an
// id->slot map, and a lazily-deleted-slot bitset.
type Index struct {
	mu sync.RWMutex

	dimension   int
	precision   Precision
	parallelism int
	simdMethod  string

	data     []float32 // len == capacity*dimension
	capacity int
	meta     []VectorEntry // len == high-water-mark slot count
	ids      map[string]int

	deleted      *bitset.BitSet
	deletedCount int
	freeSlots    []int
}

// Option configures an Index.
type Option func(*Index)

// WithParallelism overrides the worker-pool size Search uses for
// cosine scoring. Defaults to GOMAXPROCS.
func WithParallelism(n int) Option {
	return func(idx *Index) { idx.parallelism = n }
}

// New creates an empty Index for vectors of the given dimension and
// storage precision.
func New(dimension int, precision Precision, opts ...Option) *Index {
	idx := &Index{
		dimension:   dimension,
		precision:   precision,
		parallelism: runtime.GOMAXPROCS(0),
		simdMethod:  "vek32.Dot",
		ids:         make(map[string]int),
		deleted:     bitset.New(0),
	}
	for _, o := range opts {
		o(idx)
	}
	return idx
}

// Dimension returns the index's fixed vector width.
func (idx *Index) Dimension() int { return idx.dimension }

// Precision returns the index's storage precision.
func (idx *Index) Precision() Precision { return idx.precision }

// SIMDMethod names the cosine-scoring routine in use; the Indexer
// records it in the store's metadata table.
func (idx *Index) SIMDMethod() string { return idx.simdMethod }

// Len returns the number of live (non-deleted) entries.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.meta) - idx.deletedCount
}

func (idx *Index) ensureCapacityLocked(needed int) {
	if needed <= idx.capacity {
		return
	}
	newCap := idx.capacity + idx.capacity/2
	if newCap < needed {
		newCap = needed
	}
	if newCap < minCapacity {
		newCap = minCapacity
	}
	newData := make([]float32, newCap*idx.dimension)
	copy(newData, idx.data)
	idx.data = newData
	idx.capacity = newCap
}

// decodeLocked validates and decodes an embedding blob against this
// index's configured dimension/precision.
func (idx *Index) decodeLocked(blob []byte) ([]float32, error) {
	return Decode(idx.precision, idx.dimension, blob)
}

// Decode validates and decodes a raw embedding blob into a flat float32
// slice for the given precision and dimension, quantizing through half
// precision first when precision is half. A NaN/Infinity component is
// zeroed with a warning. Exported so callers (the
// Indexer, when decoding a query embedding before calling Search) can
// reuse the same decode path the index uses internally.
func Decode(precision Precision, dimension int, blob []byte) ([]float32, error) {
	bpc := bytesPerComponent(precision)
	want := dimension * bpc
	if len(blob) != want {
		return nil, errlog.New(errlog.CategoryIndexInvariantViolation,
			fmt.Sprintf("vectorindex: embedding length %d, want %d (dimension=%d, precision=%s)",
				len(blob), want, dimension, precision), nil)
	}

	out := make([]float32, dimension)
	switch precision {
	case PrecisionHalf:
		for i := 0; i < dimension; i++ {
			bits := binary.LittleEndian.Uint16(blob[i*2:])
			f := float16ToFloat32(bits)
			if nonFinite(f) {
				slog.Warn("vectorindex_nonfinite_component", slog.Int("index", i))
				f = 0
			}
			out[i] = f
		}
	default:
		for i := 0; i < dimension; i++ {
			bits := binary.LittleEndian.Uint32(blob[i*4:])
			f := math.Float32frombits(bits)
			if nonFinite(f) {
				slog.Warn("vectorindex_nonfinite_component", slog.Int("index", i))
				f = 0
			}
			out[i] = f
		}
	}
	return out, nil
}

func nonFinite(f float32) bool {
	v := float64(f)
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// Add inserts or replaces entry. A deleted slot is reused if one
// exists; otherwise the buffer is appended to, growing capacity to
// max(needed, current*1.5) first.
func (idx *Index) Add(entry VectorEntry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.addLocked(entry)
}

func (idx *Index) addLocked(entry VectorEntry) error {
	floats, err := idx.decodeLocked(entry.Embedding)
	if err != nil {
		return err
	}

	var slot int
	if n := len(idx.freeSlots); n > 0 {
		slot = idx.freeSlots[n-1]
		idx.freeSlots = idx.freeSlots[:n-1]
		idx.deleted.Clear(uint(slot))
		idx.deletedCount--
		idx.meta[slot] = entry
	} else {
		slot = len(idx.meta)
		idx.ensureCapacityLocked(slot + 1)
		idx.meta = append(idx.meta, entry)
	}

	copy(idx.data[slot*idx.dimension:(slot+1)*idx.dimension], floats)
	idx.ids[entry.ID] = slot
	return nil
}

// AppendBatch adds every entry, growing the buffer once up front
// rather than per item, cheaper than N calls to Add when capacity
// must grow.
func (idx *Index) AppendBatch(entries []VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	worstCase := len(idx.meta) + len(entries)
	idx.ensureCapacityLocked(worstCase)

	for _, e := range entries {
		if err := idx.addLocked(e); err != nil {
			return err
		}
	}
	return nil
}

// RemoveByID marks id's slot deleted, reporting whether it was found.
func (idx *Index) RemoveByID(id string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	slot, ok := idx.ids[id]
	if !ok {
		return false
	}
	idx.markDeletedLocked(id, slot)
	return true
}

func (idx *Index) markDeletedLocked(id string, slot int) {
	delete(idx.ids, id)
	idx.deleted.Set(uint(slot))
	idx.deletedCount++
	idx.freeSlots = append(idx.freeSlots, slot)
}

// RemoveByPath marks every slot whose entry path equals path deleted,
// returning the removed IDs. If the deleted ratio exceeds 0.25
// afterward, the index is compacted.
func (idx *Index) RemoveByPath(path string) []string {
	idx.mu.Lock()
	var removed []string
	for id, slot := range idx.ids {
		if idx.meta[slot].Path == path {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		idx.markDeletedLocked(id, idx.ids[id])
	}
	shouldCompact := len(idx.meta) > 0 && float64(idx.deletedCount)/float64(len(idx.meta)) > compactThreshold
	idx.mu.Unlock()

	if shouldCompact {
		idx.Compact()
	}
	return removed
}

// Compact rebuilds the buffer and metadata into a new, tightly sized
// allocation, reassigning slot indices and dropping every deleted
// entry.
func (idx *Index) Compact() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.compactLocked()
}

func (idx *Index) compactLocked() {
	live := len(idx.meta) - idx.deletedCount
	newData := make([]float32, live*idx.dimension)
	newMeta := make([]VectorEntry, 0, live)
	newIDs := make(map[string]int, live)

	slot := 0
	for i, e := range idx.meta {
		if idx.deleted.Test(uint(i)) {
			continue
		}
		copy(newData[slot*idx.dimension:(slot+1)*idx.dimension], idx.data[i*idx.dimension:(i+1)*idx.dimension])
		newMeta = append(newMeta, e)
		newIDs[e.ID] = slot
		slot++
	}

	idx.data = newData
	idx.capacity = live
	idx.meta = newMeta
	idx.ids = newIDs
	idx.deleted = bitset.New(uint(live))
	idx.deletedCount = 0
	idx.freeSlots = nil
}

type scoredSlot struct {
	slot     int
	cos      float32
	combined float32
}

// Search scores every live slot's cosine similarity against query in
// parallel, then returns the top k by combined (re-ranked) score. The
// reported Cosine on each result is always the raw similarity.
func (idx *Index) Search(query []float32, k int) ([]SearchResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(query) != idx.dimension {
		return nil, errlog.New(errlog.CategoryIndexInvariantViolation,
			fmt.Sprintf("vectorindex: query dimension %d != index dimension %d", len(query), idx.dimension), nil)
	}
	if k <= 0 {
		return nil, nil
	}

	q := query
	if idx.precision == PrecisionHalf {
		q = make([]float32, len(query))
		for i, v := range query {
			f := float16ToFloat32(float32ToFloat16(v))
			if nonFinite(f) {
				f = 0
			}
			q[i] = f
		}
	}
	qNorm := float32(math.Sqrt(float64(vek32.Dot(q, q))))

	liveSlots := make([]int, 0, len(idx.meta)-idx.deletedCount)
	for i := range idx.meta {
		if !idx.deleted.Test(uint(i)) {
			liveSlots = append(liveSlots, i)
		}
	}
	if len(liveSlots) == 0 {
		return nil, nil
	}

	cosines := make([]float32, len(liveSlots))
	idx.scoreParallel(liveSlots, q, qNorm, cosines)

	now := time.Now()
	candidates := make([]scoredSlot, len(liveSlots))
	for i, slot := range liveSlots {
		entry := &idx.meta[slot]
		cos := cosines[i]
		imp := importance(entry.Path, &chunktype.Chunk{Kind: entry.Kind, Text: entry.Text})
		rec := recencyWeight(entry.ModTime, now)
		candidates[i] = scoredSlot{slot: slot, cos: cos, combined: combinedScore(cos, imp, rec)}
	}

	top := topK(candidates, k)

	out := make([]SearchResult, len(top))
	for i, c := range top {
		out[i] = SearchResult{Entry: idx.meta[c.slot], Cosine: c.cos}
	}
	return out, nil
}

// scoreParallel computes cosine similarity for each slot in liveSlots
// across idx.parallelism workers, strictly CPU-bound with no I/O or
// locking beyond the caller's read-lock.
func (idx *Index) scoreParallel(liveSlots []int, q []float32, qNorm float32, out []float32) {
	workers := idx.parallelism
	if workers <= 0 {
		workers = 1
	}
	if workers > len(liveSlots) {
		workers = len(liveSlots)
	}
	if workers <= 1 {
		idx.scoreRange(liveSlots, 0, len(liveSlots), q, qNorm, out)
		return
	}

	chunk := (len(liveSlots) + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < len(liveSlots); start += chunk {
		end := start + chunk
		if end > len(liveSlots) {
			end = len(liveSlots)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			idx.scoreRange(liveSlots, start, end, q, qNorm, out)
		}(start, end)
	}
	wg.Wait()
}

func (idx *Index) scoreRange(liveSlots []int, start, end int, q []float32, qNorm float32, out []float32) {
	for i := start; i < end; i++ {
		slot := liveSlots[i]
		vec := idx.data[slot*idx.dimension : (slot+1)*idx.dimension]
		out[i] = cosine(vec, q, qNorm)
	}
}

func cosine(vec, q []float32, qNorm float32) float32 {
	dot := vek32.Dot(vec, q)
	vNorm := float32(math.Sqrt(float64(vek32.Dot(vec, vec))))
	if vNorm == 0 || qNorm == 0 {
		return 0
	}
	sim := dot / (vNorm * qNorm)
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim
}

// topK selects the k candidates with the highest combined score. For
// k<=20 it uses an online linear-scan with an in-place bubble of
// length <=k (O(n*k), no sort); for larger k it sorts all candidates.
// Ties are broken by insertion order: an equal-scoring later candidate
// never displaces an earlier one.
func topK(candidates []scoredSlot, k int) []scoredSlot {
	if k > 20 {
		sorted := make([]scoredSlot, len(candidates))
		copy(sorted, candidates)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].combined > sorted[j].combined
		})
		if len(sorted) > k {
			sorted = sorted[:k]
		}
		return sorted
	}

	top := make([]scoredSlot, 0, k)
	for _, c := range candidates {
		if len(top) < k {
			top = insertSorted(top, c)
			continue
		}
		if c.combined > top[0].combined {
			top = top[1:]
			top = insertSorted(top, c)
		}
	}
	// top is ascending by combined score; reverse for descending output.
	out := make([]scoredSlot, len(top))
	for i, c := range top {
		out[len(top)-1-i] = c
	}
	return out
}

// insertSorted inserts c into top (ascending by combined) via an
// in-place bubble, preserving capacity.
func insertSorted(top []scoredSlot, c scoredSlot) []scoredSlot {
	top = append(top, c)
	for i := len(top) - 1; i > 0 && top[i].combined <= top[i-1].combined; i-- {
		top[i], top[i-1] = top[i-1], top[i]
	}
	return top
}
