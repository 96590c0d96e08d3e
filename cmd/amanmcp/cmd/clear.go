package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/output"
)

func newClearCmd(a *app) *cobra.Command {
	var root, project string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard a project's ChunkStore and VectorIndex",
		Long: `Clear discards the ChunkStore, VectorIndex, and ChangeTracker snapshot
for one project, but never touches the EmbeddingCache:
the next 'amanmcp index' will re-embed nothing that hasn't actually
changed content since the cache was last populated.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			ix, err := a.open(ctx, root, project)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := ix.Clear(ctx); err != nil {
				return fmt.Errorf("clear: %w", err)
			}
			out.Successf("cleared index for project %q", ix.Project())
			return nil
		},
	}

	addRootAndProjectFlags(cmd, &root, &project)
	return cmd
}
