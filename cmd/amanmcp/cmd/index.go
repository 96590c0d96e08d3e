package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/output"
)

func newIndexCmd(a *app) *cobra.Command {
	var root, project string
	var force bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index a project's source tree",
		Long: `Index drives the full reindex control flow: ChangeTracker
computes the file diff against the last run, changed files are chunked,
chunks are embedded (consulting the EmbeddingCache first), and the
results are persisted to the ChunkStore and appended to the VectorIndex.

With no prior index, every eligible file is treated as added. Running
index again with no filesystem changes is a no-op.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			ix, err := a.open(ctx, root, project)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out.Statusf("*", "indexing %s (project %q)", ix.Root(), ix.Project())

			stats, err := ix.IndexDirectory(ctx, force, nil)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			out.Successf("indexed in %s", stats.Duration)
			out.Statusf("", "files: +%d ~%d -%d", stats.FilesAdded, stats.FilesModified, stats.FilesRemoved)
			out.Statusf("", "chunks: %d indexed, %d skipped", stats.ChunksIndexed, stats.ChunksSkipped)
			out.Statusf("", "embedding cache: %d hits, %d misses", stats.CacheHits, stats.CacheMisses)
			if stats.BatchesDropped > 0 {
				out.Warningf("%d embedding batches dropped after retries exhausted", stats.BatchesDropped)
			}
			return nil
		},
	}

	addRootAndProjectFlags(cmd, &root, &project)
	cmd.Flags().BoolVar(&force, "force", false, "discard ChunkStore and VectorIndex (preserving the EmbeddingCache) and reindex from scratch")

	return cmd
}
