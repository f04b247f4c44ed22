package domain

// IngestOptions tunes chunking for a single ingestion request.
// Zero values select the defaults (1000/200).
type IngestOptions struct {
	ChunkSize int
	Overlap   int
}

// IngestReport summarises one ingestion request. A partially failed
// request still returns a report, alongside a PartialIngestError, so
// the caller can see exactly which chunks were written.
type IngestReport struct {
	// Collection is the target collection name.
	Collection string

	// DocumentPath identifies the ingested document.
	DocumentPath string

	// ChunksAdded is the number of chunks written to the vector store.
	ChunksAdded int

	// ChunkIDs are the IDs of the written chunks, in chunk order.
	ChunkIDs []string

	// ChunksFailed is the number of chunks that could not be written.
	ChunksFailed int

	// Rejected enumerates inputs the provider permanently refused.
	Rejected []RejectedInput
}

// ContextBlock is the assembled output of queryWithContext: the ranked
// chunk contents annotated with source markers, plus a prompt ready for
// a downstream generation step.
type ContextBlock struct {
	// Query is the original query text.
	Query string

	// Context is the source-annotated text block.
	Context string

	// Prompt embeds Context and Query into a generation-ready template.
	Prompt string

	// Sources is the number of retrieved chunks in Context.
	Sources int
}
