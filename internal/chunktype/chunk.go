// Package chunktype defines the data model shared by the chunking,
// embedding, storage, and indexing layers: the Chunk record and its
// closed set of Kind tags.
package chunktype

import (
	"fmt"
	"strings"
	"time"
)

// Kind tags a Chunk for filtering and re-ranking. The base set is closed;
// at most one of the Suffix values below may be appended.
type Kind string

const (
	KindClass               Kind = "class"
	KindMethod              Kind = "method"
	KindInterface           Kind = "interface"
	KindRecord              Kind = "record"
	KindEnum                Kind = "enum"
	KindProperty            Kind = "property"
	KindLocalFunction       Kind = "local_function"
	KindGlobalUsings        Kind = "global_usings"
	KindTopLevelStatements  Kind = "top_level_statements"
	KindSlidingWindow       Kind = "sliding_window"
	KindMethodBody          Kind = "method-body"
	KindGenerated           Kind = "generated"
	KindFile                Kind = "file"
	KindCFunction           Kind = "c-function"
	KindCStruct             Kind = "c-struct"
	KindCEnum               Kind = "c-enum"
	KindCTypedef            Kind = "c-typedef"
	KindCMacro              Kind = "c-macro"
	KindCFile               Kind = "c-file"
	KindCFunctionBody       Kind = "c-function-body"
	KindRazorCode           Kind = "razor-code"
	KindRazorMethod         Kind = "razor-method"
	KindRazorMethodBody     Kind = "razor-method-body"
	KindRazorCodeBody       Kind = "razor-code-body"
	KindRazorHTML           Kind = "razor-html"
	KindRazorFile           Kind = "razor-file"
)

// baseKinds is the closed set a Kind's base (pre-suffix) value must belong
// to. Used by Validate to reject anything the chunker didn't mean to emit.
var baseKinds = map[Kind]struct{}{
	KindClass: {}, KindMethod: {}, KindInterface: {}, KindRecord: {}, KindEnum: {},
	KindProperty: {}, KindLocalFunction: {}, KindGlobalUsings: {}, KindTopLevelStatements: {},
	KindSlidingWindow: {}, KindMethodBody: {}, KindGenerated: {}, KindFile: {},
	KindCFunction: {}, KindCStruct: {}, KindCEnum: {}, KindCTypedef: {}, KindCMacro: {}, KindCFile: {}, KindCFunctionBody: {},
	KindRazorCode: {}, KindRazorMethod: {}, KindRazorMethodBody: {}, KindRazorCodeBody: {}, KindRazorHTML: {}, KindRazorFile: {},
}

// Suffix is one of the domain-signal tags appended to a structural kind.
type Suffix string

const (
	SuffixAuth       Suffix = "-auth"
	SuffixSecurity   Suffix = "-security"
	SuffixConfig     Suffix = "-config"
	SuffixController Suffix = "-controller"
	SuffixService    Suffix = "-service"
)

// suffixPriority is the fixed precedence used when more than one suffix
// pattern matches: auth > security > config > controller > service.
var suffixPriority = []Suffix{SuffixAuth, SuffixSecurity, SuffixConfig, SuffixController, SuffixService}

// WithSuffix returns k with suffix appended, replacing any suffix k
// already carries.
func (k Kind) WithSuffix(s Suffix) Kind {
	base, _ := k.Split()
	return Kind(string(base) + string(s))
}

// Split separates a kind into its base tag and suffix (suffix is "" if
// none is present).
func (k Kind) Split() (Kind, Suffix) {
	for _, s := range suffixPriority {
		if strings.HasSuffix(string(k), string(s)) {
			return Kind(strings.TrimSuffix(string(k), string(s))), s
		}
	}
	return k, ""
}

// Validate reports whether k's base tag belongs to the closed set.
func (k Kind) Validate() error {
	base, _ := k.Split()
	if _, ok := baseKinds[base]; !ok {
		return fmt.Errorf("chunktype: %q is not a recognized chunk kind", k)
	}
	return nil
}

// Chunk is a unit of retrieval: a contiguous, semantically-meaningful
// slice of source text produced by the chunking layer.
type Chunk struct {
	// ID is "<file-path>:<start-line>[:<suffix>]" and unique within a project.
	ID string
	// Path is the file path as stored (absolute).
	Path string
	// StartLine and EndLine are 1-based and inclusive.
	StartLine int
	EndLine   int
	// Text is the chunk body, possibly prefixed with a short context comment.
	Text string
	Kind Kind
	// ModTime is the modification timestamp of the source file at chunk time.
	ModTime time.Time
}

// Validate checks the chunk invariants from the data model: line ordering
// and kind well-formedness. It does not check the configured size limit,
// since that depends on the caller's max-chunk-size setting.
func (c *Chunk) Validate() error {
	if c.StartLine < 1 || c.StartLine > c.EndLine {
		return fmt.Errorf("chunktype: invalid line range [%d,%d] for %s", c.StartLine, c.EndLine, c.ID)
	}
	if c.Path == "" {
		return fmt.Errorf("chunktype: empty path for chunk %s", c.ID)
	}
	return c.Kind.Validate()
}

// MakeID builds the canonical chunk identifier. suffix is an optional
// disambiguator (e.g. a sliding-window index or body-chunk ordinal); pass
// "" to omit it.
func MakeID(path string, startLine int, suffix string) string {
	if suffix == "" {
		return fmt.Sprintf("%s:%d", path, startLine)
	}
	return fmt.Sprintf("%s:%d:%s", path, startLine, suffix)
}
