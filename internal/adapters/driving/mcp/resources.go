package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// uriScheme is the custom URI scheme for forge-rag resources.
const uriScheme = "forge-rag://"

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource listing all collections.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "collections",
		Name:        "collections",
		Description: "All knowledge collections and their statistics",
		MIMEType:    "application/json",
	}, s.handleCollectionsResource)

	// Template for per-collection statistics.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "collections/{name}/stats",
		Name:        "collection-stats",
		Description: "Statistics for a specific collection",
		MIMEType:    "application/json",
	}, s.handleStatsResource)
}

// handleCollectionsResource returns all collections as JSON.
func (s *Server) handleCollectionsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	infos, err := s.ports.Index.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	outputs := make([]CollectionOutput, len(infos))
	for i, info := range infos {
		outputs[i] = collectionOutput(info)
	}

	data, err := json.MarshalIndent(outputs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling collections: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleStatsResource returns statistics for a single collection.
func (s *Server) handleStatsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	name := extractCollectionName(req.Params.URI)
	if name == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	info, err := s.ports.Index.DescribeCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("describing collection %q: %w", name, err)
	}

	data, err := json.MarshalIndent(collectionOutput(info), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling stats: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractCollectionName extracts the collection name from a URI like
// forge-rag://collections/{name}/stats.
func extractCollectionName(uri string) string {
	const prefix = uriScheme + "collections/"
	const suffix = "/stats"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	uri = strings.TrimPrefix(uri, prefix)
	if !strings.HasSuffix(uri, suffix) {
		return ""
	}
	return strings.TrimSuffix(uri, suffix)
}
