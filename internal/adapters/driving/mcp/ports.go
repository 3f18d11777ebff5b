package mcp

import (
	"github.com/recall-labs/recall-cli/internal/core/ports/driving"
)

// Ports aggregates the driving port interfaces the MCP server needs.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Search provides search capabilities.
	Search driving.SearchService

	// Sync exposes sync status and triggers. Optional: without it the
	// sync tools are not registered.
	Sync driving.SyncOrchestrator
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	return nil
}
