package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/recall-labs/recall-cli/internal/core/domain"
)

var syncCmd = &cobra.Command{
	Use:   "sync [source]",
	Short: "Synchronise documents from sources",
	Long: `Pulls new items from connected sources into the local store.
With a source argument only that source is synchronised, otherwise all
registered sources are.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if syncOrchestrator == nil {
		return errors.New("sync service not configured")
	}

	if len(args) == 1 {
		source := domain.SourceType(args[0])
		cmd.Printf("Synchronising %s...\n", source)

		result, err := syncOrchestrator.Sync(cmd.Context(), source)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		printSyncResult(cmd, result)
		return nil
	}

	cmd.Println("Synchronising all sources...")
	results, err := syncOrchestrator.SyncAll(cmd.Context())
	for i := range results {
		printSyncResult(cmd, &results[i])
	}
	if err != nil {
		return fmt.Errorf("sync finished with errors: %w", err)
	}
	return nil
}

func printSyncResult(cmd *cobra.Command, result *domain.SyncResult) {
	cmd.Printf("%s: %d synced, %d failed\n", result.Source, result.ItemsSynced, result.ItemsFailed)
	for _, e := range result.Errors {
		if e.PartitionID != "" {
			cmd.Printf("  partition %s: %s\n", e.PartitionID, e.Message)
			continue
		}
		cmd.Printf("  %s\n", e.Message)
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-source sync status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if syncOrchestrator == nil {
			return errors.New("sync service not configured")
		}

		statuses, err := syncOrchestrator.Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("status failed: %w", err)
		}
		if len(statuses) == 0 {
			cmd.Println("No documents indexed yet.")
			return nil
		}

		for _, s := range statuses {
			last := "never"
			if !s.LastSync.IsZero() {
				last = s.LastSync.Format("2006-01-02 15:04:05")
			}
			cmd.Printf("%-8s %6d documents, last sync %s\n", s.Source, s.DocumentCount, last)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
