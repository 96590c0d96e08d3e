package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/output"
)

type searchHit struct {
	ID     string  `json:"id"`
	Path   string  `json:"path"`
	Start  int     `json:"start_line"`
	End    int     `json:"end_line"`
	Kind   string  `json:"kind"`
	Cosine float32 `json:"cosine"`
	Text   string  `json:"text"`
}

func newSearchCmd(a *app) *cobra.Command {
	var root, project string
	var k int
	var expand bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Top-K cosine-similarity search over an indexed project",
		Long: `Search embeds the query (optionally expanding it with the fixed
synonym groups) and asks the VectorIndex for the top-K results by
combined re-ranking score, while always reporting the raw cosine
similarity.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			ix, err := a.open(ctx, root, project)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			results, err := ix.Search(ctx, args[0], k, expand)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			hits := make([]searchHit, 0, len(results))
			for _, r := range results {
				hits = append(hits, searchHit{
					ID:     r.Entry.ID,
					Path:   r.Entry.Path,
					Start:  r.Entry.StartLine,
					End:    r.Entry.EndLine,
					Kind:   string(r.Entry.Kind),
					Cosine: r.Cosine,
					Text:   r.Entry.Text,
				})
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(hits)
			}

			if len(hits) == 0 {
				out.Status("", "no results")
				return nil
			}
			for i, h := range hits {
				out.Statusf("", "%d. %s:%d-%d [%s] cosine=%.4f", i+1, h.Path, h.Start, h.End, h.Kind, h.Cosine)
			}
			return nil
		},
	}

	addRootAndProjectFlags(cmd, &root, &project)
	cmd.Flags().IntVar(&k, "k", 10, "number of results to return")
	cmd.Flags().BoolVar(&expand, "expand", false, "expand the query with auth/security/config/db/http synonym groups before embedding")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output results as JSON")

	return cmd
}
