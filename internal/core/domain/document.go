package domain

import "time"

// Metadata keys stamped onto every chunk at ingestion time.
const (
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
	MetaAddedAt     = "added_at"
	MetaSource      = "source"
)

// Document represents a unit of source text submitted for ingestion.
// The caller owns it; the pipeline never mutates it.
type Document struct {
	// Path identifies the document (file path, URL, logical name).
	Path string

	// Content is the full text to be chunked and indexed.
	Content string

	// Metadata contains arbitrary key-value pairs carried onto every
	// chunk derived from this document.
	Metadata map[string]any
}

// Chunk is the unit of embedding and retrieval: a contiguous slice of a
// document's text. Immutable once created.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	// Deterministic per (collection, document path, index) so that
	// re-ingesting an unchanged document overwrites instead of duplicating.
	ID string

	// DocumentPath links back to the parent Document.
	DocumentPath string

	// Content is the text content of this chunk.
	Content string

	// Index is the 0-based position among the chunks of the parent.
	Index int

	// Total is the number of chunks derived from the parent.
	Total int

	// Metadata is the parent's metadata merged with chunk_index,
	// total_chunks and the ingestion timestamp.
	Metadata map[string]any
}

// NewChunkMetadata merges document metadata with the per-chunk keys.
// The document's map is copied, never written through.
func NewChunkMetadata(doc Document, index, total int, addedAt time.Time) map[string]any {
	md := make(map[string]any, len(doc.Metadata)+4)
	for k, v := range doc.Metadata {
		md[k] = v
	}
	md[MetaChunkIndex] = index
	md[MetaTotalChunks] = total
	md[MetaAddedAt] = addedAt.UTC().Format(time.RFC3339)
	if _, ok := md[MetaSource]; !ok && doc.Path != "" {
		md[MetaSource] = doc.Path
	}
	return md
}
