package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/digital-forge/forge-rag/internal/core/domain"
	"github.com/digital-forge/forge-rag/internal/core/ports/driven"
	"github.com/digital-forge/forge-rag/internal/core/ports/driving"
	"github.com/digital-forge/forge-rag/internal/logger"
)

// Ensure IndexService implements the interface.
var _ driving.IndexService = (*IndexService)(nil)

// DefaultRebuildBudget is the wall-clock ceiling for a full rebuild,
// independent of individual backend poll timeouts.
const DefaultRebuildBudget = 5 * time.Minute

// IndexService owns the collection lifecycle: creation, statistics and
// rebuilds. Writes to one collection are serialized through a
// per-collection mutex so a full rebuild can never race an in-flight
// upsert; different collections proceed fully in parallel.
//
// Vector counts are always the backend's; the service never estimates
// them locally.
type IndexService struct {
	store         driven.VectorStore
	rebuildBudget time.Duration

	mu       sync.Mutex
	states   map[string]domain.CollectionState
	degraded map[string]map[string]struct{} // collection -> incompletely indexed documents

	locks sync.Map // collection name -> *sync.Mutex
}

// IndexOption configures the index service.
type IndexOption func(*IndexService)

// WithRebuildBudget sets the wall-clock budget for full rebuilds.
func WithRebuildBudget(d time.Duration) IndexOption {
	return func(s *IndexService) {
		if d > 0 {
			s.rebuildBudget = d
		}
	}
}

// NewIndexService creates an index service over the given store.
func NewIndexService(store driven.VectorStore, opts ...IndexOption) *IndexService {
	s := &IndexService{
		store:         store,
		rebuildBudget: DefaultRebuildBudget,
		states:        make(map[string]domain.CollectionState),
		degraded:      make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// collectionLock returns the write mutex for a collection.
func (s *IndexService) collectionLock(name string) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(name, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// CreateCollection creates a collection with a fixed dimension and
// metric. Idempotent when an identical collection already exists.
func (s *IndexService) CreateCollection(ctx context.Context, name string, dimension int, metric domain.DistanceMetric) error {
	if name == "" {
		return fmt.Errorf("%w: collection name is required", domain.ErrConfiguration)
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", domain.ErrConfiguration, dimension)
	}
	if !metric.Valid() {
		return fmt.Errorf("%w: unknown distance metric %q", domain.ErrConfiguration, metric)
	}

	if err := s.store.CreateCollection(ctx, name, dimension, metric); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.states[name]; !ok {
		s.states[name] = domain.StateCreated
	}
	s.mu.Unlock()

	logger.Info("collection %q ready (dim=%d, metric=%s)", name, dimension, metric)
	return nil
}

// ListCollections returns every collection with backend statistics and
// the locally tracked lifecycle state.
func (s *IndexService) ListCollections(ctx context.Context) ([]domain.CollectionInfo, error) {
	infos, err := s.store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	for i := range infos {
		infos[i].State = s.stateFor(infos[i])
	}
	return infos, nil
}

// DescribeCollection returns one collection's statistics.
func (s *IndexService) DescribeCollection(ctx context.Context, name string) (domain.CollectionInfo, error) {
	info, err := s.store.DescribeCollection(ctx, name)
	if err != nil {
		return domain.CollectionInfo{}, err
	}
	info.State = s.stateFor(info)
	return info, nil
}

// Rebuild triggers index optimization. Incremental fires the backend's
// background routine and returns at once; full blocks until the
// backend converges or the wall-clock budget expires, in which case
// the collection stays Optimizing and ErrRebuildTimeout is returned so
// the caller can poll or retry.
func (s *IndexService) Rebuild(ctx context.Context, name string, mode domain.RebuildMode) (domain.CollectionInfo, error) {
	if !mode.Valid() {
		return domain.CollectionInfo{}, fmt.Errorf("%w: unknown rebuild mode %q", domain.ErrConfiguration, mode)
	}

	lock := s.collectionLock(name)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	prev, hadPrev := s.states[name]
	s.states[name] = domain.StateOptimizing
	s.mu.Unlock()

	rctx := ctx
	if mode == domain.RebuildFull {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, s.rebuildBudget)
		defer cancel()
	}

	if err := s.store.Rebuild(rctx, name, mode); err != nil {
		if mode == domain.RebuildFull && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrRebuildTimeout) || errors.Is(err, domain.ErrTimeout)) {
			// Left as Optimizing on purpose: the backend may still converge.
			return domain.CollectionInfo{}, fmt.Errorf("%w: collection %q", domain.ErrRebuildTimeout, name)
		}
		s.restoreState(name, prev, hadPrev)
		return domain.CollectionInfo{}, err
	}

	if mode == domain.RebuildFull {
		s.clearDegraded(name)
	} else {
		// Incremental optimization never recovers missing chunks, so a
		// degraded collection stays degraded.
		s.settleState(name)
	}
	logger.Info("collection %q rebuilt (%s)", name, mode)

	return s.DescribeCollection(ctx, name)
}

// UpsertSerialized writes points through the per-collection mutex.
// Used by the ingestion path so upserts never race a full rebuild.
func (s *IndexService) UpsertSerialized(ctx context.Context, collection string, points []driven.Point) error {
	lock := s.collectionLock(collection)
	lock.Lock()
	defer lock.Unlock()
	return s.store.Upsert(ctx, collection, points)
}

// RecordIngest advances the lifecycle after an ingestion batch:
// Created -> Indexed on the first fully successful batch, -> Degraded
// on partial success. A later complete re-ingestion of every missing
// document clears Degraded.
func (s *IndexService) RecordIngest(collection, documentPath string, partial bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if partial {
		s.states[collection] = domain.StateDegraded
		set, ok := s.degraded[collection]
		if !ok {
			set = make(map[string]struct{})
			s.degraded[collection] = set
		}
		set[documentPath] = struct{}{}
		logger.Warn("collection %q degraded: document %q incompletely indexed", collection, documentPath)
		return
	}

	if set, ok := s.degraded[collection]; ok {
		delete(set, documentPath)
		if len(set) > 0 {
			s.states[collection] = domain.StateDegraded
			return
		}
		delete(s.degraded, collection)
	}
	s.states[collection] = domain.StateIndexed
}

// DegradedDocuments returns the documents recorded as incompletely
// indexed for a collection.
func (s *IndexService) DegradedDocuments(collection string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.degraded[collection]
	docs := make([]string, 0, len(set))
	for path := range set {
		docs = append(docs, path)
	}
	return docs
}

// restoreState rolls a failed rebuild back to the state it started in.
func (s *IndexService) restoreState(name string, prev domain.CollectionState, hadPrev bool) {
	s.mu.Lock()
	if hadPrev {
		s.states[name] = prev
	} else {
		delete(s.states, name)
	}
	s.mu.Unlock()
}

// settleState leaves Optimizing after a completed rebuild: Degraded
// while incompletely indexed documents remain, Indexed otherwise.
func (s *IndexService) settleState(name string) {
	s.mu.Lock()
	if len(s.degraded[name]) > 0 {
		s.states[name] = domain.StateDegraded
	} else {
		s.states[name] = domain.StateIndexed
	}
	s.mu.Unlock()
}

// clearDegraded wipes the degraded bookkeeping after a full rebuild.
func (s *IndexService) clearDegraded(name string) {
	s.mu.Lock()
	delete(s.degraded, name)
	s.states[name] = domain.StateIndexed
	s.mu.Unlock()
}

// stateFor resolves the lifecycle state for backend info, falling back
// to what the backend implies when this process has no local history.
func (s *IndexService) stateFor(info domain.CollectionInfo) domain.CollectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[info.Name]; ok {
		return state
	}
	if info.VectorCount > 0 {
		return domain.StateIndexed
	}
	return domain.StateCreated
}
