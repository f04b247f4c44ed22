// Package memory provides an in-memory vector store. It is the
// reference implementation of the VectorStore port, used by tests and
// as a zero-dependency default for local runs. Nothing survives a
// process restart.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/digital-forge/forge-rag/internal/core/domain"
	"github.com/digital-forge/forge-rag/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

// collection holds one named index.
type collection struct {
	dimension int
	metric    domain.DistanceMetric
	indexedAt time.Time
	points    map[string]driven.Point
}

// Store is an in-memory vector store safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{collections: make(map[string]*collection)}
}

// CreateCollection creates a collection, idempotently when dimension
// and metric match an existing one.
func (s *Store) CreateCollection(_ context.Context, name string, dimension int, metric domain.DistanceMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.collections[name]; ok {
		if existing.dimension == dimension && existing.metric == metric {
			return nil
		}
		return fmt.Errorf("%w: %q has dimension %d and metric %s",
			domain.ErrCollectionExists, name, existing.dimension, existing.metric)
	}

	s.collections[name] = &collection{
		dimension: dimension,
		metric:    metric,
		points:    make(map[string]driven.Point),
	}
	return nil
}

// ListCollections returns every collection with statistics.
func (s *Store) ListCollections(_ context.Context) ([]domain.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]domain.CollectionInfo, 0, len(s.collections))
	for name, c := range s.collections {
		infos = append(infos, c.info(name))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// DescribeCollection returns one collection's statistics.
func (s *Store) DescribeCollection(_ context.Context, name string) (domain.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return domain.CollectionInfo{}, fmt.Errorf("%w: %q", domain.ErrCollectionNotFound, name)
	}
	return c.info(name), nil
}

// Upsert writes points; duplicate IDs overwrite. Vector lengths are
// validated before anything is written.
func (s *Store) Upsert(_ context.Context, name string, points []driven.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrCollectionNotFound, name)
	}
	for _, p := range points {
		if len(p.Vector) != c.dimension {
			return fmt.Errorf("%w: vector %q has length %d, collection %q expects %d",
				domain.ErrDimensionMismatch, p.ID, len(p.Vector), name, c.dimension)
		}
	}
	for _, p := range points {
		c.points[p.ID] = p
	}
	c.indexedAt = time.Now()
	return nil
}

// Search scans the collection, scores every point and returns the top
// k by descending score, ties broken by chunk index then document path.
func (s *Store) Search(_ context.Context, name string, vector []float32, k int, filter *domain.Filter) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrConfiguration, k)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrCollectionNotFound, name)
	}
	if len(vector) != c.dimension {
		return nil, fmt.Errorf("%w: query vector has length %d, collection %q expects %d",
			domain.ErrDimensionMismatch, len(vector), name, c.dimension)
	}

	results := make([]domain.SearchResult, 0, len(c.points))
	for id, p := range c.points {
		if !matchesFilter(p.Payload, filter) {
			continue
		}
		results = append(results, domain.SearchResult{
			Chunk: driven.ChunkFromPayload(id, p.Payload),
			Score: score(c.metric, vector, p.Vector),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.Index != b.Chunk.Index {
			return a.Chunk.Index < b.Chunk.Index
		}
		return a.Chunk.DocumentPath < b.Chunk.DocumentPath
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Rebuild refreshes the index timestamp. Incremental is a no-op
// trigger; full honours context cancellation the way a blocking
// backend call would.
func (s *Store) Rebuild(ctx context.Context, name string, mode domain.RebuildMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrCollectionNotFound, name)
	}
	if mode == domain.RebuildFull {
		c.indexedAt = time.Now()
	}
	return nil
}

// Close releases resources.
func (s *Store) Close() error { return nil }

func (c *collection) info(name string) domain.CollectionInfo {
	return domain.CollectionInfo{
		Name:        name,
		Dimension:   c.dimension,
		Distance:    c.metric,
		VectorCount: int64(len(c.points)),
		IndexedAt:   c.indexedAt,
	}
}

// score computes similarity for the collection's metric; higher is
// always more relevant, including for euclidean distance.
func score(metric domain.DistanceMetric, a, b []float32) float64 {
	switch metric {
	case domain.DistanceDot:
		return dot(a, b)
	case domain.DistanceEuclid:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return 1 / (1 + math.Sqrt(sum))
	default: // cosine
		na, nb := norm(a), norm(b)
		if na == 0 || nb == 0 {
			return 0
		}
		return dot(a, b) / (na * nb)
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

// matchesFilter applies exact-match and inclusive range predicates to
// a payload.
func matchesFilter(payload map[string]any, filter *domain.Filter) bool {
	if filter.Empty() {
		return true
	}
	for k, want := range filter.Match {
		got, ok := payload[k]
		if !ok || !looselyEqual(got, want) {
			return false
		}
	}
	for k, bound := range filter.Range {
		got, ok := payload[k]
		if !ok {
			return false
		}
		n, ok := asFloat(got)
		if !ok {
			return false
		}
		if bound.GTE != nil && n < *bound.GTE {
			return false
		}
		if bound.LTE != nil && n > *bound.LTE {
			return false
		}
	}
	return true
}

// looselyEqual compares payload values, treating all numeric types as
// equivalent since JSON round-trips turn ints into float64s.
func looselyEqual(a, b any) bool {
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af == bf
		}
		return false
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
