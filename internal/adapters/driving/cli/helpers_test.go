package cli

import (
	"context"

	"github.com/digital-forge/forge-rag/internal/adapters/driven/config/file"
	"github.com/digital-forge/forge-rag/internal/adapters/driven/vector/memory"
	"github.com/digital-forge/forge-rag/internal/core/domain"
	"github.com/digital-forge/forge-rag/internal/core/services"
)

// stubProvider is a deterministic in-process embedding provider. Every
// text maps to a fixed-length vector derived from its bytes, so equal
// texts always embed identically.
type stubProvider struct{}

func (stubProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec := []float32{1, 0, 0}
		for j := 0; j < len(text); j++ {
			vec[j%3] += float32(text[j]) / 255
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func (stubProvider) Dimensions() int            { return 3 }
func (stubProvider) ModelName() string          { return "stub-embed" }
func (stubProvider) MaxBatchSize() int          { return 16 }
func (stubProvider) Ping(context.Context) error { return nil }
func (stubProvider) Close() error               { return nil }

// setupTestServices wires the package-level services against an
// in-memory vector store with one pre-seeded document, so commands can
// run end to end without network access. The returned cleanup restores
// the package state.
func setupTestServices() func() {
	ctx := context.Background()

	store := memory.NewStore()
	provider := stubProvider{}
	embedder, err := services.NewEmbedder(provider)
	if err != nil {
		panic(err)
	}

	index := services.NewIndexService(store)
	ingest := services.NewIngestService(embedder, index)
	query := services.NewQueryService(embedder, store, index)

	if err := index.CreateCollection(ctx, "knowledge", 3, domain.DistanceCosine); err != nil {
		panic(err)
	}
	doc := domain.Document{
		Path:    "seed/notes.md",
		Content: "Vectors capture meaning.\n\nSimilar texts land close together.",
	}
	if _, err := ingest.Ingest(ctx, doc, "knowledge", domain.IngestOptions{ChunkSize: 40, Overlap: 0}); err != nil {
		panic(err)
	}

	cfg = file.Default()
	vectorStore = store
	embedProvider = provider
	indexService = index
	ingestService = ingest
	queryService = query

	return func() {
		cfg = file.Config{}
		vectorStore = nil
		embedProvider = nil
		indexService = nil
		ingestService = nil
		queryService = nil
	}
}
