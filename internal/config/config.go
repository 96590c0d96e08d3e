// Package config loads the engine's per-project configuration: built-in
// defaults, overridden by .amanmcp.yaml at the project root, overridden
// in turn by AMANMCP_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Paths       PathsConfig       `yaml:"paths" json:"paths"`
	Chunking    ChunkingConfig    `yaml:"chunking" json:"chunking"`
	Embedding   EmbeddingConfig   `yaml:"embedding" json:"embedding"`
	Watcher     WatcherConfig     `yaml:"watcher" json:"watcher"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
}

// PathsConfig layers extra include/exclude globs on top of IgnoreMatcher.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// ChunkingConfig configures chunk boundaries and eligible extensions.
type ChunkingConfig struct {
	MaxChunkSize        int      `yaml:"max_chunk_size" json:"max_chunk_size"`
	SlidingWindowTarget int      `yaml:"sliding_window_target" json:"sliding_window_target"`
	OverlapRatio        float64  `yaml:"overlap_ratio" json:"overlap_ratio"`
	OverlapMaxLines     int      `yaml:"overlap_max_lines" json:"overlap_max_lines"`
	Extensions          []string `yaml:"extensions" json:"extensions"`
}

// EmbeddingConfig configures the embedding capability client and batcher.
type EmbeddingConfig struct {
	Model                  string `yaml:"model" json:"model"`
	Dimension              int    `yaml:"dimension" json:"dimension"`
	Precision              string `yaml:"precision" json:"precision"` // "single" or "half"
	BatchSize              int    `yaml:"batch_size" json:"batch_size"`
	MaxRetries             int    `yaml:"max_retries" json:"max_retries"`
	RetryDelayMS           int    `yaml:"retry_delay_ms" json:"retry_delay_ms"`
	QueryInstructionPrefix string `yaml:"query_instruction_prefix" json:"query_instruction_prefix"`
	Endpoint               string `yaml:"endpoint" json:"endpoint"`
}

// WatcherConfig configures the per-project filesystem watcher.
type WatcherConfig struct {
	DebounceSeconds float64 `yaml:"debounce_seconds" json:"debounce_seconds"`
	RescanMinutes   int     `yaml:"rescan_minutes" json:"rescan_minutes"`
}

// PerformanceConfig configures worker-pool sizing.
type PerformanceConfig struct {
	MaxParallelism int `yaml:"max_parallelism" json:"max_parallelism"`
}

var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
}

// defaultExtensions is the default eligible source-extension set.
var defaultExtensions = []string{"go", "ts", "tsx", "js", "jsx", "py", "c", "h", "md"}

// New returns a Config populated with the engine's built-in defaults.
func New() *Config {
	return &Config{
		Paths: PathsConfig{
			Include: []string{},
			Exclude: append([]string{}, defaultExcludePatterns...),
		},
		Chunking: ChunkingConfig{
			MaxChunkSize:        100_000,
			SlidingWindowTarget: 2_000,
			OverlapRatio:        0.15,
			OverlapMaxLines:     10,
			Extensions:          append([]string{}, defaultExtensions...),
		},
		Embedding: EmbeddingConfig{
			Model:                  "",
			Dimension:              0, // auto-detected from the first embed response
			Precision:              "single",
			BatchSize:              32,
			MaxRetries:             3,
			RetryDelayMS:           500,
			QueryInstructionPrefix: "",
			Endpoint:               "http://localhost:11434/api/embed",
		},
		Watcher: WatcherConfig{
			DebounceSeconds: 60,
			RescanMinutes:   0,
		},
		Performance: PerformanceConfig{
			MaxParallelism: runtime.NumCPU(),
		},
	}
}

// Load builds the effective configuration for a project at dir: built-in
// defaults, then .amanmcp.yaml (if present) at dir, then AMANMCP_*
// environment variables, validated at the end.
func Load(dir string) (*Config, error) {
	cfg := New()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	path := filepath.Join(dir, ".amanmcp.yaml")
	if _, err := os.Stat(path); err != nil {
		yml := filepath.Join(dir, ".amanmcp.yml")
		if _, err2 := os.Stat(yml); err2 != nil {
			return nil // no project config is fine
		}
		path = yml
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero fields of other onto c; paths.exclude
// entries are appended to c's list rather than replacing it.
func (c *Config) mergeWith(other *Config) {
	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	if other.Chunking.MaxChunkSize != 0 {
		c.Chunking.MaxChunkSize = other.Chunking.MaxChunkSize
	}
	if other.Chunking.SlidingWindowTarget != 0 {
		c.Chunking.SlidingWindowTarget = other.Chunking.SlidingWindowTarget
	}
	if other.Chunking.OverlapRatio != 0 {
		c.Chunking.OverlapRatio = other.Chunking.OverlapRatio
	}
	if other.Chunking.OverlapMaxLines != 0 {
		c.Chunking.OverlapMaxLines = other.Chunking.OverlapMaxLines
	}
	if len(other.Chunking.Extensions) > 0 {
		c.Chunking.Extensions = other.Chunking.Extensions
	}

	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dimension != 0 {
		c.Embedding.Dimension = other.Embedding.Dimension
	}
	if other.Embedding.Precision != "" {
		c.Embedding.Precision = other.Embedding.Precision
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.MaxRetries != 0 {
		c.Embedding.MaxRetries = other.Embedding.MaxRetries
	}
	if other.Embedding.RetryDelayMS != 0 {
		c.Embedding.RetryDelayMS = other.Embedding.RetryDelayMS
	}
	if other.Embedding.QueryInstructionPrefix != "" {
		c.Embedding.QueryInstructionPrefix = other.Embedding.QueryInstructionPrefix
	}
	if other.Embedding.Endpoint != "" {
		c.Embedding.Endpoint = other.Embedding.Endpoint
	}

	if other.Watcher.DebounceSeconds != 0 {
		c.Watcher.DebounceSeconds = other.Watcher.DebounceSeconds
	}
	if other.Watcher.RescanMinutes != 0 {
		c.Watcher.RescanMinutes = other.Watcher.RescanMinutes
	}

	if other.Performance.MaxParallelism != 0 {
		c.Performance.MaxParallelism = other.Performance.MaxParallelism
	}
}

// applyEnvOverrides applies AMANMCP_* environment variable overrides,
// the highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AMANMCP_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("AMANMCP_EMBEDDING_ENDPOINT"); v != "" {
		c.Embedding.Endpoint = v
	}
	if v := os.Getenv("AMANMCP_EMBEDDING_DIMENSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embedding.Dimension = n
		}
	}
	if v := os.Getenv("AMANMCP_EMBEDDING_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embedding.BatchSize = n
		}
	}
	if v := os.Getenv("AMANMCP_MAX_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Chunking.MaxChunkSize = n
		}
	}
	if v := os.Getenv("AMANMCP_WATCH_DEBOUNCE_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			c.Watcher.DebounceSeconds = f
		}
	}
	if v := os.Getenv("AMANMCP_MAX_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Performance.MaxParallelism = n
		}
	}
}

// Validate rejects configurations that would produce nonsensical chunk
// boundaries or worker-pool sizes.
func (c *Config) Validate() error {
	if c.Chunking.MaxChunkSize <= 0 {
		return fmt.Errorf("chunking.max_chunk_size must be positive, got %d", c.Chunking.MaxChunkSize)
	}
	if c.Chunking.OverlapRatio < 0 || c.Chunking.OverlapRatio >= 1 {
		return fmt.Errorf("chunking.overlap_ratio must be in [0, 1), got %f", c.Chunking.OverlapRatio)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Embedding.MaxRetries < 0 {
		return fmt.Errorf("embedding.max_retries must be non-negative, got %d", c.Embedding.MaxRetries)
	}
	precision := strings.ToLower(c.Embedding.Precision)
	if precision != "single" && precision != "half" {
		return fmt.Errorf("embedding.precision must be 'single' or 'half', got %s", c.Embedding.Precision)
	}
	if c.Performance.MaxParallelism <= 0 {
		return fmt.Errorf("performance.max_parallelism must be positive, got %d", c.Performance.MaxParallelism)
	}
	return nil
}

// WriteYAML serializes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for a .git directory or
// a .amanmcp.yaml/.yml file, falling back to startDir itself.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("config: resolve %s: %w", startDir, err)
	}

	dir := absDir
	for {
		if dirExists(filepath.Join(dir, ".git")) ||
			fileExists(filepath.Join(dir, ".amanmcp.yaml")) ||
			fileExists(filepath.Join(dir, ".amanmcp.yml")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return absDir, nil
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// illegalFilenameChars is the set replaced when sanitizing a project
// name into a filesystem-safe basename for codesearch-<...>.db,
// state/state_<...>.json, and friends.
var illegalFilenameChars = []rune{'/', '\\', ':', '*', '?', '"', '<', '>', '|', ' '}

// SanitizeProjectName replaces filesystem-illegal characters with '_'
// and lowercases the result.
func SanitizeProjectName(project string) string {
	var b strings.Builder
	b.Grow(len(project))
	for _, r := range project {
		illegal := false
		for _, bad := range illegalFilenameChars {
			if r == bad {
				illegal = true
				break
			}
		}
		if illegal {
			b.WriteRune('_')
		} else {
			b.WriteRune(r)
		}
	}
	return strings.ToLower(b.String())
}

// DefaultAppDataDir returns the local application-data directory the
// engine persists per-project state under: ~/.amanmcp,
// falling back to a temp directory when the home directory cannot be
// resolved.
func DefaultAppDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".amanmcp")
	}
	return filepath.Join(home, ".amanmcp")
}
