package driven

import (
	"context"

	"github.com/digital-forge/forge-rag/internal/core/domain"
)

// Point is one (id, vector, payload) entry for upsert.
type Point struct {
	// ID is the stable chunk identifier; duplicate IDs overwrite.
	ID string

	// Vector is the embedding; its length must equal the collection's
	// fixed dimension.
	Vector []float32

	// Payload carries the chunk content and metadata.
	Payload map[string]any
}

// Payload keys used by every VectorStore implementation.
const (
	PayloadContent      = "content"
	PayloadDocumentPath = "document_path"
	PayloadChunkIndex   = "chunk_index"
	PayloadTotalChunks  = "total_chunks"
)

// ChunkFromPayload hydrates a chunk from a stored payload. Every
// backend stores the same payload shape, so hydration is shared.
func ChunkFromPayload(id string, payload map[string]any) domain.Chunk {
	chunk := domain.Chunk{ID: id, Metadata: make(map[string]any)}
	for k, v := range payload {
		switch k {
		case PayloadContent:
			if s, ok := v.(string); ok {
				chunk.Content = s
			}
		case PayloadDocumentPath:
			if s, ok := v.(string); ok {
				chunk.DocumentPath = s
			}
		case PayloadChunkIndex:
			chunk.Index = asInt(v)
			chunk.Metadata[k] = v
		case PayloadTotalChunks:
			chunk.Total = asInt(v)
			chunk.Metadata[k] = v
		default:
			chunk.Metadata[k] = v
		}
	}
	return chunk
}

// asInt converts JSON-decoded or native numeric values.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// VectorStore is a uniform interface over a similarity-search backend.
// The backend is the durable system of record; the core holds no
// durable state of its own.
type VectorStore interface {
	// CreateCollection creates a named collection with a fixed
	// dimension and metric. Idempotent when an identical collection
	// exists; fails with domain.ErrCollectionExists when the name is
	// taken with a different dimension or metric.
	CreateCollection(ctx context.Context, name string, dimension int, metric domain.DistanceMetric) error

	// ListCollections returns every collection with its statistics.
	ListCollections(ctx context.Context) ([]domain.CollectionInfo, error)

	// DescribeCollection returns the collection's current statistics.
	// Fails with domain.ErrCollectionNotFound if absent.
	DescribeCollection(ctx context.Context, name string) (domain.CollectionInfo, error)

	// Upsert writes points at-least-once; duplicate IDs overwrite.
	// Vector lengths are validated against the collection dimension
	// before any network call (domain.ErrDimensionMismatch).
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns up to k results ordered by descending score,
	// ties broken by ascending chunk index then document path.
	// k <= 0 fails with domain.ErrConfiguration.
	Search(ctx context.Context, collection string, vector []float32, k int, filter *domain.Filter) ([]domain.SearchResult, error)

	// Rebuild triggers index optimization. Incremental returns
	// immediately and the backend converges in the background; full
	// blocks until the backend reports completion or the context
	// deadline produces domain.ErrRebuildTimeout.
	Rebuild(ctx context.Context, collection string, mode domain.RebuildMode) error

	// Close releases resources.
	Close() error
}
