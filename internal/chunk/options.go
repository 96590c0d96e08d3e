package chunk

// Options configures chunk-boundary behavior shared by every backend.
// The zero value is invalid; use DefaultOptions or populate every field
// from internal/config.ChunkingConfig.
type Options struct {
	// MaxChunkSize is the hard cap, in characters, before smart
	// truncation kicks in.
	MaxChunkSize int
	// SlidingWindowTarget is the character length past which a
	// function/method also gets body sub-chunks, and past which an
	// unstructured file is split into sliding windows.
	SlidingWindowTarget int
	// OverlapRatio is the fraction of a window's lines repeated in the
	// next window.
	OverlapRatio float64
	// OverlapMaxLines caps the overlap regardless of OverlapRatio.
	OverlapMaxLines int
	// InjectFilePathContext prepends "// File: <path>" to chunk text
	// when true.
	InjectFilePathContext bool
}

// DefaultOptions matches stated defaults.
func DefaultOptions() Options {
	return Options{
		MaxChunkSize:        100_000,
		SlidingWindowTarget: 2_000,
		OverlapRatio:        0.15,
		OverlapMaxLines:     10,
		InjectFilePathContext: true,
	}
}
