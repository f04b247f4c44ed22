// Package pgvector provides a VectorStore adapter over PostgreSQL with
// the pgvector extension. Collections are rows in a registry table;
// vectors live in one chunks table keyed by (collection, id).
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	// Registers the postgres driver.
	_ "github.com/lib/pq"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/digital-forge/forge-rag/internal/core/domain"
	"github.com/digital-forge/forge-rag/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

// schema is applied idempotently on startup.
const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS rag_collections (
    name       TEXT PRIMARY KEY,
    dimension  INTEGER NOT NULL,
    metric     TEXT NOT NULL,
    indexed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rag_chunks (
    collection TEXT NOT NULL REFERENCES rag_collections(name) ON DELETE CASCADE,
    id         TEXT NOT NULL,
    embedding  vector NOT NULL,
    payload    JSONB NOT NULL,
    PRIMARY KEY (collection, id)
);
`

// distance operators and score shaping per metric.
var operators = map[domain.DistanceMetric]string{
	domain.DistanceCosine: "<=>",
	domain.DistanceDot:    "<#>",
	domain.DistanceEuclid: "<->",
}

// Store is a PostgreSQL/pgvector-backed vector store.
type Store struct {
	db *sql.DB

	mu    sync.Mutex
	specs map[string]collectionSpec
}

type collectionSpec struct {
	dimension int
	metric    domain.DistanceMetric
}

// NewStore opens the database and applies the schema.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, specs: make(map[string]collectionSpec)}, nil
}

// CreateCollection registers the collection, idempotently when an
// identical registration exists.
func (s *Store) CreateCollection(ctx context.Context, name string, dimension int, metric domain.DistanceMetric) error {
	if _, ok := operators[metric]; !ok {
		return fmt.Errorf("%w: unknown distance metric %q", domain.ErrConfiguration, metric)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rag_collections (name, dimension, metric) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO NOTHING`,
		name, dimension, string(metric))
	if err != nil {
		return mapErr(err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		existing, err := s.spec(ctx, name)
		if err != nil {
			return err
		}
		if existing.dimension != dimension || existing.metric != metric {
			return fmt.Errorf("%w: %q has dimension %d and metric %s",
				domain.ErrCollectionExists, name, existing.dimension, existing.metric)
		}
		return nil
	}

	s.remember(name, collectionSpec{dimension: dimension, metric: metric})
	return nil
}

// ListCollections returns every collection with statistics.
func (s *Store) ListCollections(ctx context.Context) ([]domain.CollectionInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.name, c.dimension, c.metric, c.indexed_at, count(k.id)
		 FROM rag_collections c LEFT JOIN rag_chunks k ON k.collection = c.name
		 GROUP BY c.name, c.dimension, c.metric, c.indexed_at
		 ORDER BY c.name`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var infos []domain.CollectionInfo
	for rows.Next() {
		var info domain.CollectionInfo
		var metric string
		if err := rows.Scan(&info.Name, &info.Dimension, &metric, &info.IndexedAt, &info.VectorCount); err != nil {
			return nil, err
		}
		info.Distance = domain.DistanceMetric(metric)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// DescribeCollection returns one collection's statistics.
func (s *Store) DescribeCollection(ctx context.Context, name string) (domain.CollectionInfo, error) {
	var info domain.CollectionInfo
	var metric string
	err := s.db.QueryRowContext(ctx,
		`SELECT c.name, c.dimension, c.metric, c.indexed_at, count(k.id)
		 FROM rag_collections c LEFT JOIN rag_chunks k ON k.collection = c.name
		 WHERE c.name = $1
		 GROUP BY c.name, c.dimension, c.metric, c.indexed_at`,
		name).Scan(&info.Name, &info.Dimension, &metric, &info.IndexedAt, &info.VectorCount)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CollectionInfo{}, fmt.Errorf("%w: %q", domain.ErrCollectionNotFound, name)
	}
	if err != nil {
		return domain.CollectionInfo{}, mapErr(err)
	}
	info.Distance = domain.DistanceMetric(metric)
	s.remember(name, collectionSpec{dimension: info.Dimension, metric: info.Distance})
	return info, nil
}

// Upsert writes points; duplicate IDs overwrite. Vector lengths are
// validated against the registered dimension before touching the
// database rows.
func (s *Store) Upsert(ctx context.Context, name string, points []driven.Point) error {
	spec, err := s.spec(ctx, name)
	if err != nil {
		return err
	}
	for _, p := range points {
		if len(p.Vector) != spec.dimension {
			return fmt.Errorf("%w: vector %q has length %d, collection %q expects %d",
				domain.ErrDimensionMismatch, p.ID, len(p.Vector), name, spec.dimension)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rag_chunks (collection, id, embedding, payload) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (collection, id) DO UPDATE SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload`)
	if err != nil {
		return mapErr(err)
	}
	defer stmt.Close()

	for _, p := range points {
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload for %q: %w", p.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, name, p.ID, pgv.NewVector(p.Vector), payload); err != nil {
			return mapErr(err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE rag_collections SET indexed_at = now() WHERE name = $1`, name); err != nil {
		return mapErr(err)
	}
	return tx.Commit()
}

// Search runs filtered similarity search ordered by the metric's
// distance operator, then re-applies the deterministic tie-break.
func (s *Store) Search(ctx context.Context, name string, vector []float32, k int, filter *domain.Filter) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrConfiguration, k)
	}

	spec, err := s.spec(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(vector) != spec.dimension {
		return nil, fmt.Errorf("%w: query vector has length %d, collection %q expects %d",
			domain.ErrDimensionMismatch, len(vector), name, spec.dimension)
	}

	op := operators[spec.metric]
	query := fmt.Sprintf(
		`SELECT id, payload, embedding %s $1 FROM rag_chunks WHERE collection = $2`, op)
	args := []any{pgv.NewVector(vector), name}

	if !filter.Empty() {
		for key, v := range filter.Match {
			obj, err := json.Marshal(map[string]any{key: v})
			if err != nil {
				return nil, fmt.Errorf("marshal filter: %w", err)
			}
			args = append(args, string(obj))
			query += fmt.Sprintf(" AND payload @> $%d::jsonb", len(args))
		}
		for key, bound := range filter.Range {
			args = append(args, key)
			keyArg := len(args)
			if bound.GTE != nil {
				args = append(args, *bound.GTE)
				query += fmt.Sprintf(" AND (payload->>$%d)::numeric >= $%d", keyArg, len(args))
			}
			if bound.LTE != nil {
				args = append(args, *bound.LTE)
				query += fmt.Sprintf(" AND (payload->>$%d)::numeric <= $%d", keyArg, len(args))
			}
		}
	}

	args = append(args, k)
	query += fmt.Sprintf(" ORDER BY embedding %s $1 LIMIT $%d", op, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var id string
		var payload []byte
		var distance float64
		if err := rows.Scan(&id, &payload, &distance); err != nil {
			return nil, err
		}
		md := make(map[string]any)
		if err := json.Unmarshal(payload, &md); err != nil {
			return nil, fmt.Errorf("decode payload for %q: %w", id, err)
		}
		results = append(results, domain.SearchResult{
			Chunk: driven.ChunkFromPayload(id, md),
			Score: scoreFromDistance(spec.metric, distance),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.Index != b.Chunk.Index {
			return a.Chunk.Index < b.Chunk.Index
		}
		return a.Chunk.DocumentPath < b.Chunk.DocumentPath
	})
	return results, nil
}

// Rebuild reindexes. Incremental refreshes planner statistics and
// returns; full reindexes the chunks table and blocks until done or
// the deadline produces ErrRebuildTimeout.
func (s *Store) Rebuild(ctx context.Context, name string, mode domain.RebuildMode) error {
	if _, err := s.spec(ctx, name); err != nil {
		return err
	}

	if mode == domain.RebuildIncremental {
		_, err := s.db.ExecContext(ctx, `ANALYZE rag_chunks`)
		return mapErr(err)
	}

	if _, err := s.db.ExecContext(ctx, `REINDEX TABLE rag_chunks`); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: reindex of %q did not finish", domain.ErrRebuildTimeout, name)
		}
		return mapErr(err)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE rag_collections SET indexed_at = now() WHERE name = $1`, name)
	return mapErr(err)
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// spec returns the cached collection spec, loading it once when unknown.
func (s *Store) spec(ctx context.Context, name string) (collectionSpec, error) {
	s.mu.Lock()
	spec, ok := s.specs[name]
	s.mu.Unlock()
	if ok {
		return spec, nil
	}
	if _, err := s.DescribeCollection(ctx, name); err != nil {
		return collectionSpec{}, err
	}
	s.mu.Lock()
	spec = s.specs[name]
	s.mu.Unlock()
	return spec, nil
}

func (s *Store) remember(name string, spec collectionSpec) {
	s.mu.Lock()
	s.specs[name] = spec
	s.mu.Unlock()
}

// scoreFromDistance converts the operator's output to a
// higher-is-better similarity.
func scoreFromDistance(metric domain.DistanceMetric, d float64) float64 {
	switch metric {
	case domain.DistanceCosine:
		return 1 - d
	case domain.DistanceDot:
		// <#> yields negative inner product.
		return -d
	default:
		return 1 / (1 + d)
	}
}

// mapErr wraps deadline errors in the domain timeout sentinel.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return err
}
