package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digital-forge/forge-rag/internal/core/domain"
	"github.com/digital-forge/forge-rag/internal/core/ports/driven"
)

// fakeQdrant is a minimal in-process Qdrant REST double.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	requests    []string
	failures    int // responds 503 to this many requests before recovering
	status      string
}

type fakeCollection struct {
	size     int
	distance string
	points   map[string]map[string]any // id -> payload
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{collections: make(map[string]*fakeCollection), status: "green"}
}

func (f *fakeQdrant) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /collections/{name}", f.createCollection)
	mux.HandleFunc("GET /collections/{name}", f.describeCollection)
	mux.HandleFunc("PATCH /collections/{name}", f.patchCollection)
	mux.HandleFunc("GET /collections", f.listCollections)
	mux.HandleFunc("PUT /collections/{name}/points", f.upsertPoints)
	mux.HandleFunc("POST /collections/{name}/points/search", f.search)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		failing := f.failures > 0
		if failing {
			f.failures--
		}
		f.mu.Unlock()
		if failing {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func (f *fakeQdrant) createCollection(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var body struct {
		Vectors struct {
			Size     int    `json:"size"`
			Distance string `json:"distance"`
		} `json:"vectors"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[name]; ok {
		w.WriteHeader(http.StatusConflict)
		return
	}
	f.collections[name] = &fakeCollection{
		size:     body.Vectors.Size,
		distance: body.Vectors.Distance,
		points:   make(map[string]map[string]any),
	}
	writeResult(w, true)
}

func (f *fakeQdrant) describeCollection(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[r.PathValue("name")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeResult(w, map[string]any{
		"status":       f.status,
		"points_count": len(c.points),
		"config": map[string]any{
			"params": map[string]any{
				"vectors": map[string]any{"size": c.size, "distance": c.distance},
			},
		},
	})
}

func (f *fakeQdrant) patchCollection(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[r.PathValue("name")]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeResult(w, true)
}

func (f *fakeQdrant) listCollections(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]map[string]any, 0, len(f.collections))
	for name := range f.collections {
		names = append(names, map[string]any{"name": name})
	}
	writeResult(w, map[string]any{"collections": names})
}

func (f *fakeQdrant) upsertPoints(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var body struct {
		Points []struct {
			ID      string         `json:"id"`
			Vector  []float32      `json:"vector"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[name]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	for _, p := range body.Points {
		c.points[p.ID] = p.Payload
	}
	writeResult(w, true)
}

func (f *fakeQdrant) search(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[name]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	// Fixed score per point; ordering correctness is the adapter's job.
	results := make([]map[string]any, 0, len(c.points))
	for id, payload := range c.points {
		results = append(results, map[string]any{
			"id":      id,
			"score":   0.5,
			"payload": payload,
		})
	}
	writeResult(w, results)
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "result": result})
}

func newTestStore(t *testing.T, fake *fakeQdrant) *Store {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return NewStore(Config{
		BaseURL:      srv.URL,
		Timeout:      2 * time.Second,
		PollInterval: 5 * time.Millisecond,
	})
}

// --- Tests ---

func TestCreateCollection(t *testing.T) {
	fake := newFakeQdrant()
	store := newTestStore(t, fake)
	ctx := context.Background()

	require.NoError(t, store.CreateCollection(ctx, "col", 4, domain.DistanceCosine))

	t.Run("idempotent with same spec", func(t *testing.T) {
		assert.NoError(t, store.CreateCollection(ctx, "col", 4, domain.DistanceCosine))
	})

	t.Run("conflicting dimension", func(t *testing.T) {
		err := store.CreateCollection(ctx, "col", 8, domain.DistanceCosine)
		assert.ErrorIs(t, err, domain.ErrCollectionExists)
	})

	t.Run("conflicting metric", func(t *testing.T) {
		err := store.CreateCollection(ctx, "col", 4, domain.DistanceEuclid)
		assert.ErrorIs(t, err, domain.ErrCollectionExists)
	})

	t.Run("unknown metric", func(t *testing.T) {
		err := store.CreateCollection(ctx, "other", 4, "manhattan")
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})
}

func TestDescribeCollection(t *testing.T) {
	fake := newFakeQdrant()
	store := newTestStore(t, fake)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "col", 4, domain.DistanceDot))

	info, err := store.DescribeCollection(ctx, "col")

	require.NoError(t, err)
	assert.Equal(t, "col", info.Name)
	assert.Equal(t, 4, info.Dimension)
	assert.Equal(t, domain.DistanceDot, info.Distance)
	assert.Zero(t, info.VectorCount)

	_, err = store.DescribeCollection(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
}

func TestListCollections(t *testing.T) {
	fake := newFakeQdrant()
	store := newTestStore(t, fake)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "a", 4, domain.DistanceCosine))
	require.NoError(t, store.CreateCollection(ctx, "b", 8, domain.DistanceEuclid))

	infos, err := store.ListCollections(ctx)

	require.NoError(t, err)
	require.Len(t, infos, 2)
	byName := map[string]domain.CollectionInfo{}
	for _, info := range infos {
		byName[info.Name] = info
	}
	assert.Equal(t, 4, byName["a"].Dimension)
	assert.Equal(t, domain.DistanceEuclid, byName["b"].Distance)
}

func TestUpsert(t *testing.T) {
	fake := newFakeQdrant()
	store := newTestStore(t, fake)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "col", 3, domain.DistanceCosine))

	t.Run("dimension checked before any network write", func(t *testing.T) {
		err := store.Upsert(ctx, "col", []driven.Point{
			{ID: "p1", Vector: []float32{1, 2}},
		})
		require.ErrorIs(t, err, domain.ErrDimensionMismatch)

		fake.mu.Lock()
		defer fake.mu.Unlock()
		assert.Empty(t, fake.collections["col"].points)
	})

	t.Run("writes points", func(t *testing.T) {
		err := store.Upsert(ctx, "col", []driven.Point{
			{ID: "p1", Vector: []float32{1, 2, 3}, Payload: map[string]any{
				driven.PayloadContent: "text", driven.PayloadDocumentPath: "doc.md",
			}},
		})
		require.NoError(t, err)

		info, err := store.DescribeCollection(ctx, "col")
		require.NoError(t, err)
		assert.EqualValues(t, 1, info.VectorCount)
	})

	t.Run("unknown collection", func(t *testing.T) {
		err := store.Upsert(ctx, "missing", []driven.Point{{ID: "p", Vector: []float32{1, 2, 3}}})
		assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
	})

	t.Run("collection dropped behind a cached dimension", func(t *testing.T) {
		fake.mu.Lock()
		delete(fake.collections, "col")
		fake.mu.Unlock()

		err := store.Upsert(ctx, "col", []driven.Point{{ID: "p", Vector: []float32{1, 2, 3}}})
		assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
	})
}

func TestSearch(t *testing.T) {
	fake := newFakeQdrant()
	store := newTestStore(t, fake)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "col", 3, domain.DistanceCosine))
	require.NoError(t, store.Upsert(ctx, "col", []driven.Point{
		{ID: "p-b", Vector: []float32{1, 0, 0}, Payload: map[string]any{
			driven.PayloadContent: "b", driven.PayloadDocumentPath: "b.md", driven.PayloadChunkIndex: 1,
		}},
		{ID: "p-a", Vector: []float32{0, 1, 0}, Payload: map[string]any{
			driven.PayloadContent: "a", driven.PayloadDocumentPath: "a.md", driven.PayloadChunkIndex: 1,
		}},
	}))

	t.Run("invalid k", func(t *testing.T) {
		_, err := store.Search(ctx, "col", []float32{1, 0, 0}, 0, nil)
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("unknown collection", func(t *testing.T) {
		_, err := store.Search(ctx, "missing", []float32{1, 0, 0}, 2, nil)
		assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
	})

	t.Run("equal scores tie-break by path", func(t *testing.T) {
		results, err := store.Search(ctx, "col", []float32{1, 0, 0}, 2, nil)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "a.md", results[0].Chunk.DocumentPath)
		assert.Equal(t, "b.md", results[1].Chunk.DocumentPath)
	})
}

func TestSearch_FilterTranslation(t *testing.T) {
	gte := 1.0
	tests := []struct {
		name   string
		filter *domain.Filter
		want   map[string]any
	}{
		{"nil filter", nil, nil},
		{"empty filter", &domain.Filter{}, nil},
		{
			"match clause",
			&domain.Filter{Match: map[string]any{"lang": "go"}},
			map[string]any{"must": []map[string]any{
				{"key": "lang", "match": map[string]any{"value": "go"}},
			}},
		},
		{
			"range clause",
			&domain.Filter{Range: map[string]domain.RangeBound{"chunk_index": {GTE: &gte}}},
			map[string]any{"must": []map[string]any{
				{"key": "chunk_index", "range": map[string]any{"gte": 1.0}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := qdrantFilter(tt.filter)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.want["must"], got["must"])
		})
	}
}

func TestRetry_TransientServerError(t *testing.T) {
	fake := newFakeQdrant()
	fake.failures = 1
	store := newTestStore(t, fake)

	err := store.CreateCollection(context.Background(), "col", 3, domain.DistanceCosine)

	require.NoError(t, err, "a single 503 should be absorbed by retry")
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.GreaterOrEqual(t, len(fake.requests), 2)
}

func TestRebuild_IncrementalReturnsImmediately(t *testing.T) {
	fake := newFakeQdrant()
	store := newTestStore(t, fake)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "col", 3, domain.DistanceCosine))

	require.NoError(t, store.Rebuild(ctx, "col", domain.RebuildIncremental))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Contains(t, fake.requests, "PATCH /collections/col")
}

func TestRebuild_FullWaitsForGreen(t *testing.T) {
	fake := newFakeQdrant()
	fake.status = "yellow"
	store := newTestStore(t, fake)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "col", 3, domain.DistanceCosine))

	go func() {
		time.Sleep(20 * time.Millisecond)
		fake.mu.Lock()
		fake.status = "green"
		fake.mu.Unlock()
	}()

	err := store.Rebuild(ctx, "col", domain.RebuildFull)
	assert.NoError(t, err)
}

func TestRebuild_FullTimesOut(t *testing.T) {
	fake := newFakeQdrant()
	fake.status = "yellow" // never converges
	store := newTestStore(t, fake)
	require.NoError(t, store.CreateCollection(context.Background(), "col", 3, domain.DistanceCosine))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := store.Rebuild(ctx, "col", domain.RebuildFull)
	assert.ErrorIs(t, err, domain.ErrRebuildTimeout)
}

func TestRebuild_UnknownCollection(t *testing.T) {
	fake := newFakeQdrant()
	store := newTestStore(t, fake)

	err := store.Rebuild(context.Background(), "missing", domain.RebuildFull)
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
}

func TestAPIKeyHeader(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("api-key")
		writeResult(w, map[string]any{"collections": []any{}})
	}))
	defer srv.Close()

	store := NewStore(Config{BaseURL: srv.URL, APIKey: "secret"})
	_, err := store.ListCollections(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
}

func TestSearch_HydratesChunks(t *testing.T) {
	fake := newFakeQdrant()
	store := newTestStore(t, fake)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "col", 3, domain.DistanceCosine))
	require.NoError(t, store.Upsert(ctx, "col", []driven.Point{
		{ID: "chunk-7", Vector: []float32{1, 0, 0}, Payload: map[string]any{
			driven.PayloadContent:      "hydrated text",
			driven.PayloadDocumentPath: "doc.md",
			driven.PayloadChunkIndex:   7,
			driven.PayloadTotalChunks:  9,
			"team":                     "platform",
		}},
	}))

	results, err := store.Search(ctx, "col", []float32{1, 0, 0}, 1, nil)

	require.NoError(t, err)
	require.Len(t, results, 1)
	chunk := results[0].Chunk
	assert.Equal(t, "chunk-7", chunk.ID)
	assert.Equal(t, "hydrated text", chunk.Content)
	assert.Equal(t, "doc.md", chunk.DocumentPath)
	assert.Equal(t, 7, chunk.Index)
	assert.Equal(t, 9, chunk.Total)
	assert.Equal(t, "platform", chunk.Metadata["team"])
}
