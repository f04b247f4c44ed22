package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent retrieval-pipeline failures.
// These are distinct from infrastructure errors.
var (
	// ErrConfiguration indicates an invalid caller-supplied parameter
	// (overlap >= chunk size, k <= 0, unknown metric). Never retried.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrEmptyDocument indicates an ingestion request with no text.
	// An empty document is never silently ingested.
	ErrEmptyDocument = errors.New("empty document")

	// ErrEmptyQuery indicates a blank or whitespace-only query.
	ErrEmptyQuery = errors.New("empty query")

	// ErrProviderUnavailable indicates the embedding provider kept
	// failing transiently until the retry budget was exhausted.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrEmbeddingRejected indicates a single input the provider will
	// never accept (malformed or oversized). Permanent for that item.
	ErrEmbeddingRejected = errors.New("embedding rejected")

	// ErrDimensionMismatch indicates a vector whose length disagrees
	// with the collection's fixed dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrCollectionExists indicates a create for a name already taken
	// with a different dimension or metric.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrCollectionNotFound indicates the named collection is absent.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrTimeout indicates a network-bound operation exceeded its
	// caller-supplied deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrRebuildTimeout indicates a full rebuild exceeded its
	// wall-clock budget; the collection is left in Optimizing so the
	// caller can poll or retry.
	ErrRebuildTimeout = errors.New("index rebuild timed out")
)

// RejectedInput reports a single batch item the provider permanently
// refused. The rest of the batch is unaffected.
type RejectedInput struct {
	// Index is the item's position in the original input order.
	Index int

	// Reason wraps ErrEmbeddingRejected with detail.
	Reason error
}

// ProviderFailure is returned when the embedding provider stayed
// unavailable past the retry budget. Succeeded enumerates fingerprints
// resolved (from cache or earlier batches) before the failure so the
// caller may persist partial results.
type ProviderFailure struct {
	Succeeded []string
	Err       error
}

func (e *ProviderFailure) Error() string {
	return fmt.Sprintf("embedding provider unavailable after retries (%d fingerprints succeeded): %v",
		len(e.Succeeded), e.Err)
}

func (e *ProviderFailure) Unwrap() error { return ErrProviderUnavailable }

// PartialIngestError reports an ingestion batch where some but not all
// chunks were embedded and upserted. The collection moves to Degraded.
type PartialIngestError struct {
	// DocumentPath identifies the incompletely indexed document.
	DocumentPath string

	// SucceededIDs are the chunk IDs written to the vector store.
	SucceededIDs []string

	// FailedIndexes are chunk indexes that were not written.
	FailedIndexes []int

	// Cause is the underlying failure.
	Cause error
}

func (e *PartialIngestError) Error() string {
	return fmt.Sprintf("partial ingestion of %q: %d chunks written, %d failed: %v",
		e.DocumentPath, len(e.SucceededIDs), len(e.FailedIndexes), e.Cause)
}

func (e *PartialIngestError) Unwrap() error { return e.Cause }
