package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if docStore == nil {
			return errors.New("document store not configured")
		}

		stats, err := docStore.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("stats failed: %w", err)
		}

		cmd.Printf("Documents:  %d\n", stats.TotalDocuments)
		cmd.Printf("Embeddings: %d\n", stats.TotalEmbeddings)
		if len(stats.BySource) > 0 {
			cmd.Println("By source:")
			for source, count := range stats.BySource {
				cmd.Printf("  %-8s %d\n", source, count)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
