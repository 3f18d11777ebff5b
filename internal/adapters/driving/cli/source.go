package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/recall-labs/recall-cli/internal/adapters/driven/config/file"
	"github.com/recall-labs/recall-cli/internal/core/domain"
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Manage connected sources",
}

var sourceWorkspace string

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [source]",
	Short: "Clear sync cursors, forcing a full resync",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncOrchestrator == nil {
			return errors.New("sync service not configured")
		}

		source := domain.SourceType(args[0])
		if err := syncOrchestrator.ResetCursor(cmd.Context(), source, sourceWorkspace); err != nil {
			return fmt.Errorf("reset cursor failed: %w", err)
		}
		cmd.Printf("Cursors cleared for %s. The next sync is a full resync.\n", source)
		return nil
	},
}

var deleteSourceCmd = &cobra.Command{
	Use:   "delete [source]",
	Short: "Delete all indexed documents of a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncOrchestrator == nil {
			return errors.New("sync service not configured")
		}

		source := domain.SourceType(args[0])
		deleted, err := syncOrchestrator.DeleteSource(cmd.Context(), source, sourceWorkspace)
		if err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}
		cmd.Printf("Deleted %d documents from %s.\n", deleted, source)
		return nil
	},
}

var channelsCmd = &cobra.Command{
	Use:   "channels [source] [channel-id ...]",
	Short: "Restrict a source to a channel allow-list",
	Long: `Stores a channel allow-list for a source. Sync and search only
touch the listed channels. With no channel arguments the current list
is printed; use --clear to remove the restriction.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChannels,
}

var channelsClear bool

func runChannels(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	key := file.ChannelsKey(args[0])
	if channelsClear {
		if err := configStore.Delete(key); err != nil {
			return fmt.Errorf("clear channels: %w", err)
		}
		cmd.Printf("Channel restriction removed for %s.\n", args[0])
		return nil
	}

	if len(args) == 1 {
		channels := configStore.GetStringSlice(key)
		if channels == nil {
			cmd.Printf("No channel restriction for %s (all channels included).\n", args[0])
			return nil
		}
		cmd.Printf("%s channels: %s\n", args[0], strings.Join(channels, ", "))
		return nil
	}

	if err := configStore.Set(key, args[1:]); err != nil {
		return fmt.Errorf("set channels: %w", err)
	}
	cmd.Printf("%s restricted to %d channels.\n", args[0], len(args)-1)
	return nil
}

func init() {
	resetCursorCmd.Flags().StringVar(&sourceWorkspace, "workspace", "", "restrict to one workspace")
	deleteSourceCmd.Flags().StringVar(&sourceWorkspace, "workspace", "", "restrict to one workspace")
	channelsCmd.Flags().BoolVar(&channelsClear, "clear", false, "remove the channel restriction")

	sourceCmd.AddCommand(resetCursorCmd)
	sourceCmd.AddCommand(deleteSourceCmd)
	sourceCmd.AddCommand(channelsCmd)
	rootCmd.AddCommand(sourceCmd)
}
