package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/digital-forge/forge-rag/internal/chunker"
	"github.com/digital-forge/forge-rag/internal/core/domain"
	"github.com/digital-forge/forge-rag/internal/core/ports/driven"
	"github.com/digital-forge/forge-rag/internal/core/ports/driving"
	"github.com/digital-forge/forge-rag/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// chunkNamespace is the UUIDv5 namespace for chunk IDs.
var chunkNamespace = uuid.MustParse("6f1c8f5a-25f0-4e4c-9a6b-6d1f3a2e8c41")

// IngestService runs the ingestion path: chunk, embed, upsert, update
// lifecycle state.
type IngestService struct {
	embedder *Embedder
	index    *IndexService
}

// NewIngestService creates an ingestion service.
func NewIngestService(embedder *Embedder, index *IndexService) *IngestService {
	return &IngestService{embedder: embedder, index: index}
}

// ChunkID returns the deterministic ID for a chunk, stable across
// re-ingestion of the same document into the same collection so
// duplicate writes overwrite instead of accumulating.
func ChunkID(collection, documentPath string, index int) string {
	return uuid.NewSHA1(chunkNamespace, fmt.Appendf(nil, "%s\x00%s\x00%d", collection, documentPath, index)).String()
}

// Ingest chunks, embeds and upserts one document. An empty document
// fails with domain.ErrEmptyDocument before any network call. Items
// the provider permanently rejects are dropped per item; if the rest
// was written the collection moves to Degraded and the returned error
// is a *domain.PartialIngestError enumerating exactly what succeeded.
func (s *IngestService) Ingest(ctx context.Context, doc domain.Document, collection string, opts domain.IngestOptions) (domain.IngestReport, error) {
	report := domain.IngestReport{Collection: collection, DocumentPath: doc.Path}

	if strings.TrimSpace(doc.Content) == "" {
		return report, domain.ErrEmptyDocument
	}

	var chunkOpts []chunker.Option
	if opts.ChunkSize > 0 {
		chunkOpts = append(chunkOpts, chunker.WithChunkSize(opts.ChunkSize))
	}
	if opts.Overlap > 0 || opts.ChunkSize > 0 {
		chunkOpts = append(chunkOpts, chunker.WithOverlap(opts.Overlap))
	}
	splitter, err := chunker.New(chunkOpts...)
	if err != nil {
		return report, err
	}

	logger.Section("Ingestion")
	logger.Debug("document %q: %d chars into collection %q", doc.Path, len(doc.Content), collection)

	contents, err := splitter.Split(doc.Content)
	if err != nil {
		return report, err
	}
	total := len(contents)
	addedAt := time.Now()

	outcome, err := s.embedder.Embed(ctx, contents)
	if err != nil {
		// Nothing was written; the caller sees which fingerprints
		// resolved through the *domain.ProviderFailure itself.
		return report, err
	}
	report.Rejected = outcome.Rejected

	points := make([]driven.Point, 0, total)
	ids := make([]string, 0, total)
	var failedIndexes []int
	for i, content := range contents {
		if outcome.Vectors[i] == nil {
			failedIndexes = append(failedIndexes, i)
			continue
		}
		id := ChunkID(collection, doc.Path, i)
		md := domain.NewChunkMetadata(doc, i, total, addedAt)

		payload := make(map[string]any, len(md)+2)
		for k, v := range md {
			payload[k] = v
		}
		payload[driven.PayloadContent] = content
		payload[driven.PayloadDocumentPath] = doc.Path

		points = append(points, driven.Point{ID: id, Vector: outcome.Vectors[i], Payload: payload})
		ids = append(ids, id)
	}

	if len(points) > 0 {
		if err := s.index.UpsertSerialized(ctx, collection, points); err != nil {
			return report, fmt.Errorf("upserting %d chunks into %q: %w", len(points), collection, err)
		}
	}

	report.ChunksAdded = len(points)
	report.ChunkIDs = ids
	report.ChunksFailed = len(failedIndexes)

	partial := len(failedIndexes) > 0
	s.index.RecordIngest(collection, doc.Path, partial)

	if partial {
		return report, &domain.PartialIngestError{
			DocumentPath:  doc.Path,
			SucceededIDs:  ids,
			FailedIndexes: failedIndexes,
			Cause:         domain.ErrEmbeddingRejected,
		}
	}

	logger.Info("ingested %q: %d chunks into %q", doc.Path, report.ChunksAdded, collection)
	return report, nil
}
