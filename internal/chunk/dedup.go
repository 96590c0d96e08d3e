package chunk

import "github.com/Aman-CERP/amanmcp/internal/chunktype"

// Dedup drops exact-content duplicate chunks, then drops any chunk whose
// line range is fully contained within another chunk of the same kind
// (never across kinds), per the Chunker's deduplication contract.
func Dedup(chunks []*chunktype.Chunk) []*chunktype.Chunk {
	seen := make(map[string]struct{}, len(chunks))
	unique := make([]*chunktype.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.Text]; ok {
			continue
		}
		seen[c.Text] = struct{}{}
		unique = append(unique, c)
	}

	contained := make([]bool, len(unique))
	for i, a := range unique {
		for j, b := range unique {
			if i == j || a.Kind != b.Kind {
				continue
			}
			if strictlyContains(b, a) || (rangesEqual(a, b) && i > j) {
				contained[i] = true
				break
			}
		}
	}

	out := make([]*chunktype.Chunk, 0, len(unique))
	for i, c := range unique {
		if !contained[i] {
			out = append(out, c)
		}
	}
	return out
}

func strictlyContains(outer, inner *chunktype.Chunk) bool {
	if rangesEqual(outer, inner) {
		return false
	}
	return outer.StartLine <= inner.StartLine && inner.EndLine <= outer.EndLine
}

func rangesEqual(a, b *chunktype.Chunk) bool {
	return a.StartLine == b.StartLine && a.EndLine == b.EndLine
}
