package chunk

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// languageDef pairs a LanguageConfig with its tree-sitter grammar.
type languageDef struct {
	config  *LanguageConfig
	grammar *sitter.Language
	managed bool
}

// languageDefs is the fixed set of grammars the engine ships. The node
// type names come from each grammar's node-types inventory; the managed
// flag routes the language to the managed backend rather than C-family.
func languageDefs() []languageDef {
	ts := &LanguageConfig{
		Name:          "typescript",
		Extensions:    []string{".ts"},
		FunctionTypes: []string{"function_declaration"},
		MethodTypes:   []string{"method_definition"},
		ClassTypes:    []string{"class_declaration"},
		TypeDefTypes:  []string{"type_alias_declaration"},
	}
	js := &LanguageConfig{
		Name:          "javascript",
		Extensions:    []string{".js", ".mjs"},
		FunctionTypes: []string{"function_declaration", "function"},
		MethodTypes:   []string{"method_definition"},
		ClassTypes:    []string{"class_declaration"},
	}

	return []languageDef{
		{managed: true, grammar: golang.GetLanguage(), config: &LanguageConfig{
			Name:          "go",
			Extensions:    []string{".go"},
			FunctionTypes: []string{"function_declaration"},
			MethodTypes:   []string{"method_declaration"},
			TypeDefTypes:  []string{"type_declaration"},
		}},
		{managed: true, grammar: typescript.GetLanguage(), config: ts},
		{managed: true, grammar: tsx.GetLanguage(), config: derive(ts, "tsx", ".tsx")},
		{managed: true, grammar: javascript.GetLanguage(), config: js},
		{managed: true, grammar: javascript.GetLanguage(), config: derive(js, "jsx", ".jsx")},
		{managed: true, grammar: python.GetLanguage(), config: &LanguageConfig{
			Name:          "python",
			Extensions:    []string{".py"},
			FunctionTypes: []string{"function_definition"},
			ClassTypes:    []string{"class_definition"},
		}},
		{grammar: c.GetLanguage(), config: &LanguageConfig{
			Name:          "c",
			Extensions:    []string{".c", ".h"},
			FunctionTypes: []string{"function_definition"},
			ClassTypes:    []string{"struct_specifier"},
			EnumTypes:     []string{"enum_specifier"},
			TypeDefTypes:  []string{"type_definition"},
			MacroTypes:    []string{"preproc_def", "preproc_function_def"},
		}},
	}
}

// derive clones a config under a new name and extension set, for
// dialects sharing another language's node types (tsx, jsx).
func derive(base *LanguageConfig, name string, exts ...string) *LanguageConfig {
	clone := *base
	clone.Name = name
	clone.Extensions = exts
	return &clone
}

// LanguageRegistry resolves languages by name or file extension and
// hands out their grammars.
type LanguageRegistry struct {
	mu        sync.RWMutex
	configs   map[string]*LanguageConfig
	extToLang map[string]string
	grammars  map[string]*sitter.Language
	managed   map[string]bool
}

// NewLanguageRegistry builds a registry holding every shipped language.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:   make(map[string]*LanguageConfig),
		extToLang: make(map[string]string),
		grammars:  make(map[string]*sitter.Language),
		managed:   make(map[string]bool),
	}
	for _, def := range languageDefs() {
		r.register(def)
	}
	return r
}

func (r *LanguageRegistry) register(def languageDef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := def.config.Name
	r.configs[name] = def.config
	r.grammars[name] = def.grammar
	r.managed[name] = def.managed
	for _, ext := range def.config.Extensions {
		r.extToLang[ext] = name
	}
}

// IsManaged reports whether name routes to the managed-language
// backend (the C family has its own).
func (r *LanguageRegistry) IsManaged(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.managed[name]
}

// GetByExtension resolves a file extension (with or without the dot) to
// its language configuration.
func (r *LanguageRegistry) GetByExtension(ext string) (*LanguageConfig, bool) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}
	config, ok := r.configs[name]
	return config, ok
}

// GetByName resolves a language name to its configuration.
func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	config, ok := r.configs[name]
	return config, ok
}

// GetTreeSitterLanguage returns the grammar for a language name.
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	grammar, ok := r.grammars[name]
	return grammar, ok
}

// SupportedExtensions lists every registered extension.
func (r *LanguageRegistry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	return exts
}

var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the process-wide shared registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}
