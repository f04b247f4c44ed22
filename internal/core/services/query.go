package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/digital-forge/forge-rag/internal/core/domain"
	"github.com/digital-forge/forge-rag/internal/core/ports/driven"
	"github.com/digital-forge/forge-rag/internal/core/ports/driving"
	"github.com/digital-forge/forge-rag/internal/logger"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

// scoreEpsilon bounds the difference under which two scores are treated
// as tied for re-ranking purposes.
const scoreEpsilon = 1e-9

// QueryService answers similarity queries: it embeds the query through
// the shared embedder (one fingerprint domain for chunks and queries),
// runs ranked search against the vector store and assembles context
// blocks for downstream prompting.
type QueryService struct {
	embedder *Embedder
	store    driven.VectorStore
	index    *IndexService
}

// NewQueryService creates a query service.
func NewQueryService(embedder *Embedder, store driven.VectorStore, index *IndexService) *QueryService {
	return &QueryService{embedder: embedder, store: store, index: index}
}

// Search returns up to k ranked results. k is clamped to the
// collection's vector count when larger; k <= 0 is a configuration
// error; an empty query fails before any embedding call.
func (s *QueryService) Search(ctx context.Context, query, collection string, k int, filter *domain.Filter, prefs *domain.Preferences) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrConfiguration, k)
	}

	logger.Section("Search Execution")
	logger.Debug("query %q against %q, k=%d", query, collection, k)

	info, err := s.index.DescribeCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if info.VectorCount > 0 && int64(k) > info.VectorCount {
		k = int(info.VectorCount)
		logger.Debug("k clamped to vector count %d", k)
	}

	vec, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := s.store.Search(ctx, collection, vec, k, filter)
	if err != nil {
		return nil, err
	}

	rerank(results, prefs)
	logger.Info("search returned %d results", len(results))
	return results, nil
}

// QueryWithContext retrieves k chunks and assembles them into a
// source-annotated context block plus a generation-ready prompt.
func (s *QueryService) QueryWithContext(ctx context.Context, query, collection string, k int) (domain.ContextBlock, error) {
	results, err := s.Search(ctx, query, collection, k, nil, nil)
	if err != nil {
		return domain.ContextBlock{}, err
	}

	contextText := AssembleContext(results)
	return domain.ContextBlock{
		Query:   query,
		Context: contextText,
		Prompt:  BuildPrompt(query, contextText),
		Sources: len(results),
	}, nil
}

// rerank applies the deterministic secondary ordering: descending score
// first, then among tied scores preference-hint matches, then ascending
// chunk index, then ascending document path. The primary similarity
// ordering is never altered beyond tie-breaking.
func rerank(results []domain.SearchResult, prefs *domain.Preferences) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if math.Abs(a.Score-b.Score) > scoreEpsilon {
			return a.Score > b.Score
		}
		am, bm := prefs.Matches(a.Chunk.Metadata), prefs.Matches(b.Chunk.Metadata)
		if am != bm {
			return am
		}
		if a.Chunk.Index != b.Chunk.Index {
			return a.Chunk.Index < b.Chunk.Index
		}
		return a.Chunk.DocumentPath < b.Chunk.DocumentPath
	})
}
