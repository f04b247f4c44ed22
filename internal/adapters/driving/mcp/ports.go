package mcp

import (
	"github.com/digital-forge/forge-rag/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP
// server. This provides a single injection point for dependency
// injection.
type Ports struct {
	// Ingest adds documents to the knowledge base.
	Ingest driving.IngestService

	// Query answers similarity queries and assembles context.
	Query driving.QueryService

	// Index manages collection lifecycle and statistics.
	Index driving.IndexService

	// DefaultCollection is used when a request names no collection.
	DefaultCollection string
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Ingest == nil {
		return ErrMissingIngestService
	}
	if p.Query == nil {
		return ErrMissingQueryService
	}
	if p.Index == nil {
		return ErrMissingIndexService
	}
	return nil
}

// collection resolves the target collection for a request.
func (p *Ports) collection(requested string) string {
	if requested != "" {
		return requested
	}
	if p.DefaultCollection != "" {
		return p.DefaultCollection
	}
	return "knowledge"
}
