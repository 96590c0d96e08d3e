// Package cmd provides the amanmcp CLI commands: index, search, watch,
// stats, clear, and cache, all driven through internal/registry against
// one project's Indexer session.
package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/chunk"
	"github.com/Aman-CERP/amanmcp/internal/chunkstore"
	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/embedbatch"
	"github.com/Aman-CERP/amanmcp/internal/embedcache"
	"github.com/Aman-CERP/amanmcp/internal/embedclient"
	"github.com/Aman-CERP/amanmcp/internal/errlog"
	"github.com/Aman-CERP/amanmcp/internal/indexer"
	"github.com/Aman-CERP/amanmcp/internal/registry"
	"github.com/Aman-CERP/amanmcp/internal/tracker"
	"github.com/Aman-CERP/amanmcp/internal/vectorindex"
	"github.com/Aman-CERP/amanmcp/pkg/version"
)

// NewRootCmd creates the root amanmcp command and wires every
// subcommand against a fresh process app.
func NewRootCmd() *cobra.Command {
	a := newApp()

	root := &cobra.Command{
		Use:     "amanmcp",
		Short:   "Per-project semantic code-search engine",
		Version: version.Version,
		Long: `amanmcp parses source files into structurally-meaningful chunks,
embeds them against a remote embedding service, and keeps a columnar
in-memory vector index in sync with the working tree.

Run 'amanmcp index' once per project, then 'amanmcp search <query>' to
query it, or 'amanmcp watch' to keep the index current automatically.`,
	}
	root.SetVersionTemplate("amanmcp version {{.Version}}\n")

	root.AddCommand(newIndexCmd(a))
	root.AddCommand(newSearchCmd(a))
	root.AddCommand(newWatchCmd(a))
	root.AddCommand(newStatsCmd(a))
	root.AddCommand(newClearCmd(a))
	root.AddCommand(newCacheCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// app is the process-wide state behind every subcommand: the registry
// of per-project Indexer singletons plus the EmbeddingCache and
// embedding HTTP client shared across projects. The registry is the
// only mutable process-wide state; everything per-project lives behind
// the Indexer it hands out.
type app struct {
	reg *registry.Registry

	mu     sync.Mutex
	roots  map[string]string // project -> resolved root, recorded by open
	cache  *embedcache.Cache
	client *embedclient.Client
	closed bool
}

func newApp() *app {
	a := &app{roots: make(map[string]string)}
	a.reg = registry.New(a.buildSession)
	return a
}

// open resolves the --root/--project flags to a project identity and
// returns that project's Indexer through the registry, assembling it on
// first access. Subcommands defer a.Close once they are done.
func (a *app) open(ctx context.Context, rootFlag, projectFlag string) (*indexer.Indexer, error) {
	root, err := filepath.Abs(rootFlag)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", rootFlag, err)
	}

	project := projectFlag
	if project == "" {
		if found, err := config.FindProjectRoot(root); err == nil {
			root = found
		}
		project = filepath.Base(root)
	}

	a.mu.Lock()
	a.roots[project] = root
	a.mu.Unlock()

	return a.reg.Get(ctx, project)
}

// buildSession is the registry's Factory: it loads the project's
// configuration and assembles the full Indexer stack against the
// per-project ChunkStore and the process-wide EmbeddingCache's
// filesystem layout (<app-data>/codesearch-<sanitized-project>.db,
// embedding_cache.db, state/).
func (a *app) buildSession(ctx context.Context, project string) (*indexer.Indexer, error) {
	a.mu.Lock()
	root := a.roots[project]
	a.mu.Unlock()
	if root == "" {
		return nil, fmt.Errorf("project %q has no registered root directory", project)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appData := config.DefaultAppDataDir()
	sanitized := config.SanitizeProjectName(project)

	store, err := chunkstore.Open(filepath.Join(appData, fmt.Sprintf("codesearch-%s.db", sanitized)))
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}

	cache, err := a.sharedCache(appData)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	client := a.sharedClient(cfg)

	retry := errlog.DefaultRetryConfig()
	retry.MaxRetries = cfg.Embedding.MaxRetries
	retry.InitialDelay = time.Duration(cfg.Embedding.RetryDelayMS) * time.Millisecond

	batcher := embedbatch.New(client, cache, embedbatch.Options{
		BatchSize:              cfg.Embedding.BatchSize,
		Model:                  cfg.Embedding.Model,
		Project:                project,
		QueryInstructionPrefix: cfg.Embedding.QueryInstructionPrefix,
		Retry:                  retry,
	})

	tr := tracker.New(filepath.Join(appData, "state"),
		tracker.WithParallelism(cfg.Performance.MaxParallelism),
		tracker.WithExtensions(cfg.Chunking.Extensions),
	)

	chunker := chunk.New(chunk.Options{
		MaxChunkSize:          cfg.Chunking.MaxChunkSize,
		SlidingWindowTarget:   cfg.Chunking.SlidingWindowTarget,
		OverlapRatio:          cfg.Chunking.OverlapRatio,
		OverlapMaxLines:       cfg.Chunking.OverlapMaxLines,
		InjectFilePathContext: true,
	})

	precision := vectorindex.PrecisionSingle
	if cfg.Embedding.Precision == string(vectorindex.PrecisionHalf) {
		precision = vectorindex.PrecisionHalf
	}

	ix, err := indexer.New(ctx, indexer.Config{
		Root:        root,
		Project:     project,
		Tracker:     tr,
		Chunker:     chunker,
		Batcher:     batcher,
		Store:       store,
		Dimension:   cfg.Embedding.Dimension,
		Precision:   precision,
		Parallelism: cfg.Performance.MaxParallelism,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build indexer: %w", err)
	}
	return ix, nil
}

// sharedCache lazily opens the one EmbeddingCache every project's
// batcher consults.
func (a *app) sharedCache(appData string) (*embedcache.Cache, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cache == nil {
		cache, err := embedcache.Open(filepath.Join(appData, "embedding_cache.db"))
		if err != nil {
			return nil, err
		}
		a.cache = cache
	}
	return a.cache, nil
}

// sharedClient lazily builds the one embedding HTTP client, configured
// from the first project that needs it.
func (a *app) sharedClient(cfg *config.Config) *embedclient.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil {
		a.client = embedclient.New(embedclient.Config{
			Endpoint: cfg.Embedding.Endpoint,
			Model:    cfg.Embedding.Model,
		})
	}
	return a.client
}

// Close tears down every registered project session, then the shared
// cache and client. Safe to call more than once.
func (a *app) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	cache, client := a.cache, a.client
	a.mu.Unlock()

	err := a.reg.CloseAll()
	if cache != nil {
		_ = cache.Close()
	}
	if client != nil {
		_ = client.Close()
	}
	return err
}

// addRootAndProjectFlags registers the --root/--project flags shared by
// every project-scoped subcommand.
func addRootAndProjectFlags(cmd *cobra.Command, root, project *string) {
	cmd.Flags().StringVar(root, "root", ".", "project root directory")
	cmd.Flags().StringVar(project, "project", "", "project name (defaults to the root directory's base name)")
}
