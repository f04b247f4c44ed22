// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import "context"

// EmbeddingProvider maps a batch of strings to fixed-length float
// vectors over a network boundary.
//
// Implementations must classify failures: transient conditions (rate
// limit, timeout, 5xx) wrap domain.ErrProviderUnavailable so callers
// can retry; validation failures wrap domain.ErrEmbeddingRejected and
// are never retried.
//
// Note: this is the raw provider. Batching, caching, coalescing and
// retry live in services.Embedder, which fronts it.
type EmbeddingProvider interface {
	// EmbedBatch returns one vector per input, in input order.
	// The batch size is bounded by MaxBatchSize.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector length (e.g. 1536).
	// Must match the target collection's fixed dimension.
	Dimensions() int

	// ModelName returns the embedding model identifier. It is part of
	// the cache fingerprint domain.
	ModelName() string

	// MaxBatchSize returns the largest batch the provider accepts.
	MaxBatchSize() int

	// Ping validates the provider is reachable with a lightweight call.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
