// Package cli is the operational command surface: search, sync and
// store maintenance. Commands talk to the core exclusively through the
// driving ports.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/recall-labs/recall-cli/internal/core/ports/driven"
	"github.com/recall-labs/recall-cli/internal/core/ports/driving"
	"github.com/recall-labs/recall-cli/internal/logger"
)

// Services are the wired driving-port implementations the commands use.
// Nil fields make the dependent commands fail with a clear error
// instead of panicking.
type Services struct {
	Search driving.SearchService
	Sync   driving.SyncOrchestrator
	Store  driven.DocumentStore
	Config driven.ConfigStore
}

var (
	version = "dev"

	searchService    driving.SearchService
	syncOrchestrator driving.SyncOrchestrator
	docStore         driven.DocumentStore
	configStore      driven.ConfigStore

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Local hybrid search over your work tools",
	Long: `Recall indexes messages, pages, issues and mail from connected
sources into a local store and answers queries with hybrid
keyword + semantic search.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute wires the services into the command tree and runs it.
func Execute(v string, svcs Services) error {
	version = v
	searchService = svcs.Search
	syncOrchestrator = svcs.Sync
	docStore = svcs.Store
	configStore = svcs.Config
	return rootCmd.Execute()
}
