package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// uriScheme is the custom URI scheme for Recall resources.
const uriScheme = "recall://"

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "status",
		Name:        "status",
		Description: "Per-source sync status of the local index",
		MIMEType:    "application/json",
	}, s.handleStatusResource)
}

// handleStatusResource returns the per-source sync status as JSON.
func (s *Server) handleStatusResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Sync == nil {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     "[]",
			}},
		}, nil
	}

	statuses, err := s.ports.Sync.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading sync status: %w", err)
	}

	output := make([]SourceStatusOutput, len(statuses))
	for i, status := range statuses {
		output[i] = SourceStatusOutput{
			Source:        string(status.Source),
			DocumentCount: status.DocumentCount,
		}
		if !status.LastSync.IsZero() {
			output[i].LastSync = status.LastSync.UTC().Format("2006-01-02T15:04:05Z")
		}
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding sync status: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
