// Package qdrant provides a VectorStore adapter over the Qdrant REST
// API. The backend is the durable system of record; this adapter only
// translates the capability set and absorbs transient failures.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/digital-forge/forge-rag/internal/backoff"
	"github.com/digital-forge/forge-rag/internal/core/domain"
	"github.com/digital-forge/forge-rag/internal/core/ports/driven"
	"github.com/digital-forge/forge-rag/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

// Default configuration values.
const (
	DefaultBaseURL      = "http://localhost:6333"
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 2 * time.Second
)

// errTransient marks retryable backend conditions (429, 5xx).
var errTransient = errors.New("qdrant transient error")

// metricNames maps domain metrics to Qdrant's distance names.
var metricNames = map[domain.DistanceMetric]string{
	domain.DistanceCosine: "Cosine",
	domain.DistanceDot:    "Dot",
	domain.DistanceEuclid: "Euclid",
}

// Config holds configuration for the Qdrant adapter.
type Config struct {
	// BaseURL is the Qdrant HTTP endpoint (default http://localhost:6333).
	BaseURL string

	// APIKey is sent as the api-key header when set.
	APIKey string

	// Timeout is the per-request timeout (default 30s).
	Timeout time.Duration

	// PollInterval is the status poll cadence during a full rebuild.
	PollInterval time.Duration
}

// Store is a Qdrant-backed vector store.
type Store struct {
	client       *http.Client
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	policy       backoff.Policy

	mu   sync.Mutex
	dims map[string]int // collection -> dimension, for pre-flight checks
}

// NewStore creates a Qdrant adapter.
func NewStore(cfg Config) *Store {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	policy := backoff.Default()
	policy.Retryable = func(err error) bool {
		return errors.Is(err, errTransient) || errors.Is(err, domain.ErrTimeout)
	}

	return &Store{
		client:       &http.Client{Timeout: cfg.Timeout},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		pollInterval: cfg.PollInterval,
		policy:       policy,
		dims:         make(map[string]int),
	}
}

// collectionResult is the relevant slice of Qdrant's collection info.
type collectionResult struct {
	Status          string `json:"status"`
	OptimizerStatus any    `json:"optimizer_status"`
	PointsCount     int64  `json:"points_count"`
	Config          struct {
		Params struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

// CreateCollection creates the collection, treating an existing
// identical collection as success and a conflicting one as
// domain.ErrCollectionExists.
func (s *Store) CreateCollection(ctx context.Context, name string, dimension int, metric domain.DistanceMetric) error {
	distance, ok := metricNames[metric]
	if !ok {
		return fmt.Errorf("%w: unknown distance metric %q", domain.ErrConfiguration, metric)
	}

	body := map[string]any{
		"vectors": map[string]any{"size": dimension, "distance": distance},
	}
	err := s.call(ctx, http.MethodPut, "/collections/"+name, body, nil)
	if err == nil {
		s.rememberDimension(name, dimension)
		return nil
	}

	// Qdrant answers 409 when the name is taken. Idempotent create:
	// accept when the existing schema matches exactly.
	var sc *statusError
	if errors.As(err, &sc) && sc.code == http.StatusConflict {
		existing, derr := s.DescribeCollection(ctx, name)
		if derr != nil {
			return derr
		}
		if existing.Dimension == dimension && existing.Distance == metric {
			return nil
		}
		return fmt.Errorf("%w: %q has dimension %d and metric %s",
			domain.ErrCollectionExists, name, existing.Dimension, existing.Distance)
	}
	return err
}

// ListCollections returns every collection with statistics.
func (s *Store) ListCollections(ctx context.Context) ([]domain.CollectionInfo, error) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := s.call(ctx, http.MethodGet, "/collections", nil, &resp); err != nil {
		return nil, err
	}

	infos := make([]domain.CollectionInfo, 0, len(resp.Result.Collections))
	for _, c := range resp.Result.Collections {
		info, err := s.DescribeCollection(ctx, c.Name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// DescribeCollection returns one collection's statistics.
func (s *Store) DescribeCollection(ctx context.Context, name string) (domain.CollectionInfo, error) {
	var resp struct {
		Result collectionResult `json:"result"`
	}
	if err := s.call(ctx, http.MethodGet, "/collections/"+name, nil, &resp); err != nil {
		var sc *statusError
		if errors.As(err, &sc) && sc.code == http.StatusNotFound {
			return domain.CollectionInfo{}, fmt.Errorf("%w: %q", domain.ErrCollectionNotFound, name)
		}
		return domain.CollectionInfo{}, err
	}

	dim := resp.Result.Config.Params.Vectors.Size
	s.rememberDimension(name, dim)

	metric := domain.DistanceCosine
	for m, qn := range metricNames {
		if qn == resp.Result.Config.Params.Vectors.Distance {
			metric = m
		}
	}

	return domain.CollectionInfo{
		Name:        name,
		Dimension:   dim,
		Distance:    metric,
		VectorCount: resp.Result.PointsCount,
	}, nil
}

// Upsert writes points with wait=true so completion is durable.
// Vector lengths are validated against the collection dimension before
// any network call.
func (s *Store) Upsert(ctx context.Context, name string, points []driven.Point) error {
	dim, err := s.dimension(ctx, name)
	if err != nil {
		return err
	}
	for _, p := range points {
		if len(p.Vector) != dim {
			return fmt.Errorf("%w: vector %q has length %d, collection %q expects %d",
				domain.ErrDimensionMismatch, p.ID, len(p.Vector), name, dim)
		}
	}

	qpoints := make([]map[string]any, len(points))
	for i, p := range points {
		qpoints[i] = map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		}
	}
	body := map[string]any{"points": qpoints}
	if err := s.call(ctx, http.MethodPut, "/collections/"+name+"/points?wait=true", body, nil); err != nil {
		var sc *statusError
		if errors.As(err, &sc) && sc.code == http.StatusNotFound {
			// The cached dimension can outlive the collection.
			return fmt.Errorf("%w: %q", domain.ErrCollectionNotFound, name)
		}
		return err
	}
	return nil
}

// Search runs filtered similarity search and re-applies the
// deterministic tie-break locally, since the backend's ordering of
// equal scores is unspecified.
func (s *Store) Search(ctx context.Context, name string, vector []float32, k int, filter *domain.Filter) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrConfiguration, k)
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if qf := qdrantFilter(filter); qf != nil {
		body["filter"] = qf
	}

	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.call(ctx, http.MethodPost, "/collections/"+name+"/points/search", body, &resp); err != nil {
		var sc *statusError
		if errors.As(err, &sc) && sc.code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %q", domain.ErrCollectionNotFound, name)
		}
		return nil, err
	}

	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.SearchResult{
			Chunk: driven.ChunkFromPayload(fmt.Sprint(r.ID), r.Payload),
			Score: r.Score,
		})
	}
	sortResults(results)
	return results, nil
}

// Rebuild triggers the optimizer. Incremental returns as soon as the
// trigger is accepted; full polls collection status until the backend
// reports green or the context deadline turns into ErrRebuildTimeout.
func (s *Store) Rebuild(ctx context.Context, name string, mode domain.RebuildMode) error {
	body := map[string]any{
		"optimizers_config": map[string]any{"indexing_threshold": 1},
	}
	if err := s.call(ctx, http.MethodPatch, "/collections/"+name, body, nil); err != nil {
		var sc *statusError
		if errors.As(err, &sc) && sc.code == http.StatusNotFound {
			return fmt.Errorf("%w: %q", domain.ErrCollectionNotFound, name)
		}
		return err
	}
	if mode == domain.RebuildIncremental {
		return nil
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %q did not converge: %v", domain.ErrRebuildTimeout, name, ctx.Err())
		case <-ticker.C:
		}

		var resp struct {
			Result collectionResult `json:"result"`
		}
		if err := s.call(ctx, http.MethodGet, "/collections/"+name, nil, &resp); err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrTimeout) {
				return fmt.Errorf("%w: %q did not converge", domain.ErrRebuildTimeout, name)
			}
			return err
		}
		if resp.Result.Status == "green" {
			return nil
		}
		logger.Debug("qdrant: collection %q status %s, still optimizing", name, resp.Result.Status)
	}
}

// Close releases resources.
func (s *Store) Close() error { return nil }

// dimension returns the cached collection dimension, describing the
// collection once when unknown.
func (s *Store) dimension(ctx context.Context, name string) (int, error) {
	s.mu.Lock()
	dim, ok := s.dims[name]
	s.mu.Unlock()
	if ok {
		return dim, nil
	}
	info, err := s.DescribeCollection(ctx, name)
	if err != nil {
		return 0, err
	}
	return info.Dimension, nil
}

func (s *Store) rememberDimension(name string, dim int) {
	if dim <= 0 {
		return
	}
	s.mu.Lock()
	s.dims[name] = dim
	s.mu.Unlock()
}

// statusError carries a non-2xx HTTP status.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant: status %d: %s", e.code, e.body)
}

// call performs one JSON request with retry on transient failures.
func (s *Store) call(ctx context.Context, method, path string, body, out any) error {
	_, err := backoff.Retry(ctx, s.policy, func(int) (struct{}, error) {
		return struct{}{}, s.doOnce(ctx, method, path, body, out)
	})
	return err
}

// doOnce performs one JSON request and classifies failures.
func (s *Store) doOnce(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s %s: %v", domain.ErrTimeout, method, path, err)
		}
		return fmt.Errorf("%w: %s %s: %v", errTransient, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: %v", errTransient, &statusError{code: resp.StatusCode, body: string(data)})
	}
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return &statusError{code: resp.StatusCode, body: string(data)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// sortResults applies descending score with the index/path tie-break.
func sortResults(results []domain.SearchResult) {
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
}

// qdrantFilter translates the generic filter into Qdrant's must-clause
// form.
func qdrantFilter(filter *domain.Filter) map[string]any {
	if filter.Empty() {
		return nil
	}
	var must []map[string]any
	for k, v := range filter.Match {
		must = append(must, map[string]any{
			"key":   k,
			"match": map[string]any{"value": v},
		})
	}
	for k, bound := range filter.Range {
		r := map[string]any{}
		if bound.GTE != nil {
			r["gte"] = *bound.GTE
		}
		if bound.LTE != nil {
			r["lte"] = *bound.LTE
		}
		must = append(must, map[string]any{"key": k, "range": r})
	}
	return map[string]any{"must": must}
}
