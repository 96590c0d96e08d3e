package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/embedcache"
	"github.com/Aman-CERP/amanmcp/internal/output"
)

// openCache opens the process-wide EmbeddingCache directly, for the
// cache subcommands that operate on it without needing a full Indexer
// session (the cache is shared across projects and survives
// force-reindex cycles).
func openCache() (*embedcache.Cache, error) {
	path := filepath.Join(config.DefaultAppDataDir(), "embedding_cache.db")
	return embedcache.Open(path)
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the shared EmbeddingCache",
	}

	cmd.AddCommand(newCacheSizeCmd())
	cmd.AddCommand(newCacheEvictCmd())
	cmd.AddCommand(newCacheClearProjectCmd())

	return cmd
}

func newCacheSizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "size",
		Short: "Print the cache's row count and approximate byte size",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			ctx := cmd.Context()

			cache, err := openCache()
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			defer func() { _ = cache.Close() }()

			n, err := cache.Size(ctx)
			if err != nil {
				return fmt.Errorf("cache size: %w", err)
			}
			bytes, err := cache.SizeBytes(ctx)
			if err != nil {
				return fmt.Errorf("cache size bytes: %w", err)
			}

			out.Statusf("", "entries: %d", n)
			out.Statusf("", "bytes:   %d", bytes)
			return nil
		},
	}
}

func newCacheEvictCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "evict",
		Short: "Evict cache entries not accessed within the last N days",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			ctx := cmd.Context()

			cache, err := openCache()
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			defer func() { _ = cache.Close() }()

			n, err := cache.EvictOlderThan(ctx, days)
			if err != nil {
				return fmt.Errorf("evict: %w", err)
			}
			out.Successf("evicted %d entries not accessed in the last %d days", n, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 90, "eviction threshold in days since last access")
	return cmd
}

func newCacheClearProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear-project <project>",
		Short: "Drop every cache entry scoped to one project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())
			ctx := cmd.Context()

			cache, err := openCache()
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			defer func() { _ = cache.Close() }()

			if err := cache.ClearProject(ctx, args[0]); err != nil {
				return fmt.Errorf("clear project: %w", err)
			}
			out.Successf("cleared cache entries for project %q", args[0])
			return nil
		},
	}
	return cmd
}
