package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewReindexCommand() *cobra.Command {
	var (
		index     string
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild a search index from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if !a.Search.Enabled() {
				return fmt.Errorf("search is not configured or unreachable (search.url=%q)", a.Config.Search.URL)
			}
			r := a.Reindexer(batchSize)
			var n int
			if index == "" {
				n, err = r.ReindexEverything(cmd.Context())
			} else {
				n, err = r.ReindexAll(cmd.Context(), index)
			}
			fmt.Printf("reindexed %d documents\n", n)
			return err
		},
	}
	cmd.Flags().StringVar(&index, "index", "post", "Index to rebuild; empty rebuilds every registered index")
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "Rows loaded per batch")
	return cmd
}
