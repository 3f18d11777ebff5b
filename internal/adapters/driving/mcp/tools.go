package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/recall-labs/recall-cli/internal/core/domain"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query  string `json:"query" jsonschema:"the search query to find documents"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 5)"`
	Source string `json:"source,omitempty" jsonschema:"restrict to one source: slack, notion, linear or gmail"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title,omitempty"`
	URL        string  `json:"url,omitempty"`
	Source     string  `json:"source"`
	Score      float64 `json:"score"`
	Content    string  `json:"content,omitempty"`
}

// SyncInput is the input schema for the trigger_sync tool.
type SyncInput struct {
	Source string `json:"source" jsonschema:"source to synchronise: slack, notion, linear or gmail"`
}

// SyncOutput is the output schema for the trigger_sync tool.
type SyncOutput struct {
	Source      string `json:"source"`
	ItemsSynced int    `json:"items_synced"`
	ItemsFailed int    `json:"items_failed"`
}

// SyncStatusOutput is the output schema for the sync_status tool.
type SyncStatusOutput struct {
	Sources []SourceStatusOutput `json:"sources"`
}

// SourceStatusOutput is the per-source status record.
type SourceStatusOutput struct {
	Source        string `json:"source"`
	DocumentCount int    `json:"document_count"`
	LastSync      string `json:"last_sync,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Search across all indexed documents",
	}, s.handleSearch)

	if s.ports.Sync == nil {
		return
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "sync_status",
		Description: "Report per-source document counts and last sync times",
	}, s.handleSyncStatus)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "trigger_sync",
		Description: "Pull new items from one connected source",
	}, s.handleTriggerSync)
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	opts := domain.SearchOptions{
		Limit:  input.Limit,
		Source: domain.SourceType(input.Source),
	}
	results, err := s.ports.Search.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results)),
		Count:   len(results),
	}
	for i := range results {
		output.Results[i] = SearchResultOutput{
			DocumentID: results[i].ID,
			Title:      results[i].Title,
			URL:        results[i].URL,
			Source:     string(results[i].Source),
			Score:      results[i].Score,
			Content:    results[i].Content,
		}
	}
	return nil, output, nil
}

// handleSyncStatus handles the sync_status tool invocation.
func (s *Server) handleSyncStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ struct{},
) (*mcp.CallToolResult, SyncStatusOutput, error) {
	statuses, err := s.ports.Sync.Status(ctx)
	if err != nil {
		return nil, SyncStatusOutput{}, err
	}

	output := SyncStatusOutput{Sources: make([]SourceStatusOutput, len(statuses))}
	for i, status := range statuses {
		record := SourceStatusOutput{
			Source:        string(status.Source),
			DocumentCount: status.DocumentCount,
		}
		if !status.LastSync.IsZero() {
			record.LastSync = status.LastSync.UTC().Format("2006-01-02T15:04:05Z")
		}
		output.Sources[i] = record
	}
	return nil, output, nil
}

// handleTriggerSync handles the trigger_sync tool invocation.
func (s *Server) handleTriggerSync(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SyncInput,
) (*mcp.CallToolResult, SyncOutput, error) {
	result, err := s.ports.Sync.Sync(ctx, domain.SourceType(input.Source))
	if err != nil {
		return nil, SyncOutput{}, fmt.Errorf("sync %s: %w", input.Source, err)
	}
	return nil, SyncOutput{
		Source:      string(result.Source),
		ItemsSynced: result.ItemsSynced,
		ItemsFailed: result.ItemsFailed,
	}, nil
}
