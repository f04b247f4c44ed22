// Package driving provides interfaces exposed to external actors (primary/inbound ports).
// Transport adapters (CLI, MCP) depend on these, never on concrete services.
package driving

import (
	"context"

	"github.com/digital-forge/forge-rag/internal/core/domain"
)

// IngestService accepts loaded documents and indexes them.
type IngestService interface {
	// Ingest chunks, embeds and upserts one document into a collection.
	// Partial failures return both a report and a *domain.PartialIngestError.
	Ingest(ctx context.Context, doc domain.Document, collection string, opts domain.IngestOptions) (domain.IngestReport, error)
}

// QueryService answers similarity queries over a collection.
type QueryService interface {
	// Search returns up to k ranked results for the query text.
	Search(ctx context.Context, query, collection string, k int, filter *domain.Filter, prefs *domain.Preferences) ([]domain.SearchResult, error)

	// QueryWithContext retrieves, assembles the context block and
	// builds a generation-ready prompt.
	QueryWithContext(ctx context.Context, query, collection string, k int) (domain.ContextBlock, error)
}

// IndexService owns the collection lifecycle.
type IndexService interface {
	// CreateCollection creates a collection with fixed dimension and metric.
	CreateCollection(ctx context.Context, name string, dimension int, metric domain.DistanceMetric) error

	// ListCollections returns all collections with statistics.
	ListCollections(ctx context.Context) ([]domain.CollectionInfo, error)

	// DescribeCollection returns one collection's statistics.
	DescribeCollection(ctx context.Context, name string) (domain.CollectionInfo, error)

	// Rebuild runs incremental or full index optimization and returns
	// the refreshed statistics.
	Rebuild(ctx context.Context, name string, mode domain.RebuildMode) (domain.CollectionInfo, error)
}
