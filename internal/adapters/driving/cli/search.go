package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/recall-labs/recall-cli/internal/adapters/driven/config/file"
	"github.com/recall-labs/recall-cli/internal/core/domain"
)

var (
	searchLimit  int
	searchSource string
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed documents",
	Long: `Performs hybrid search across all indexed documents.
Combines keyword (FTS) and semantic (vector) search, reranks the top
candidates and boosts recent items.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "maximum number of results")
	searchCmd.Flags().StringVar(&searchSource, "source", "", "restrict to one source (slack, notion, linear, gmail)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}

	limit := searchLimit
	if !cmd.Flags().Changed("limit") && configStore != nil {
		if v := configStore.GetInt(file.KeySearchLimit); v > 0 {
			limit = v
		}
	}

	opts := domain.SearchOptions{
		Limit:  limit,
		Source: domain.SourceType(searchSource),
	}
	if configStore != nil {
		if channels := configStore.GetStringSlice(file.ChannelsKey(string(domain.SourceSlack))); channels != nil {
			opts.Channels = &domain.ChannelFilter{Source: domain.SourceSlack, Allowed: channels}
		}
	}
	results, err := searchService.Search(cmd.Context(), args[0], opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}
	return outputSearchTable(cmd, results)
}

func outputSearchJSON(cmd *cobra.Command, results []domain.SearchResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.SearchResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = r.ID
		}
		cmd.Printf("  [%d] %s (%.2f)\n", i+1, title, r.Score)
		cmd.Printf("      Source: %s", r.Source)
		if r.ChannelID != "" {
			cmd.Printf(" / %s", r.ChannelID)
		}
		cmd.Println()
		if snippet := snippetOf(r.Content); snippet != "" {
			cmd.Printf("      %s\n", snippet)
		}
		cmd.Println()
	}
	return nil
}

const snippetLength = 120

// snippetOf returns the first line of content, truncated for display.
// Truncation counts runes so a multi-byte character is never split.
func snippetOf(content string) string {
	for i, r := range content {
		if r == '\n' {
			content = content[:i]
			break
		}
	}
	runes := []rune(content)
	if len(runes) > snippetLength {
		return string(runes[:snippetLength]) + "..."
	}
	return content
}
