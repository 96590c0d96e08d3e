package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/output"
)

func newStatsCmd(a *app) *cobra.Command {
	var root, project string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print a point-in-time snapshot of a project's index state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			ix, err := a.open(ctx, root, project)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			stats, err := ix.Stats(ctx)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}

			out.Statusf("", "project:     %s", stats.Project)
			out.Statusf("", "chunks:      %d", stats.ChunkCount)
			out.Statusf("", "vectors:     %d", stats.VectorCount)
			out.Statusf("", "dimension:   %d", stats.Dimension)
			out.Statusf("", "precision:   %s", stats.Precision)
			out.Statusf("", "simd method: %s", stats.SIMDMethod)
			out.Statusf("", "parallelism: %d", stats.Parallelism)
			return nil
		},
	}

	addRootAndProjectFlags(cmd, &root, &project)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output stats as JSON")

	return cmd
}
