package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/digital-forge/forge-rag/internal/backoff"
	"github.com/digital-forge/forge-rag/internal/core/domain"
	"github.com/digital-forge/forge-rag/internal/core/ports/driven"
	"github.com/digital-forge/forge-rag/internal/logger"
)

// Embedder defaults.
const (
	// DefaultCacheSize is the LRU capacity in entries.
	DefaultCacheSize = 8192

	// DefaultMaxInputChars is the per-item size ceiling. Larger inputs
	// are rejected per item, never sent to the provider.
	DefaultMaxInputChars = 32768
)

// EmbedOutcome is the result of one Embed call. Vectors is aligned with
// the input order; entries for rejected items are nil and enumerated in
// Rejected.
type EmbedOutcome struct {
	Vectors  [][]float32
	Rejected []domain.RejectedInput
}

// inflightCall tracks one provider request in flight for a fingerprint.
// Concurrent Embed calls for the same fingerprint wait on done instead
// of issuing redundant provider calls.
type inflightCall struct {
	done chan struct{}
	vec  []float32
	err  error
}

// Embedder fronts the embedding provider with an LRU cache, in-flight
// request coalescing, bounded batching and retry with backoff. It is
// safe for concurrent use; the cache is an accelerator only, its loss
// never changes results.
type Embedder struct {
	provider driven.EmbeddingProvider
	cache    *lru.Cache[string, []float32]
	policy   backoff.Policy
	maxBatch int
	maxChars int

	group    singleKeyGroup
}

// EmbedderOption configures the embedder.
type EmbedderOption func(*embedderConfig)

type embedderConfig struct {
	cacheSize int
	maxBatch  int
	maxChars  int
	policy    *backoff.Policy
}

// WithCacheSize sets the LRU cache capacity in entries.
func WithCacheSize(n int) EmbedderOption {
	return func(c *embedderConfig) {
		if n > 0 {
			c.cacheSize = n
		}
	}
}

// WithMaxBatch caps provider batches below the provider's own limit.
func WithMaxBatch(n int) EmbedderOption {
	return func(c *embedderConfig) {
		if n > 0 {
			c.maxBatch = n
		}
	}
}

// WithMaxInputChars sets the per-item input size ceiling.
func WithMaxInputChars(n int) EmbedderOption {
	return func(c *embedderConfig) {
		if n > 0 {
			c.maxChars = n
		}
	}
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p backoff.Policy) EmbedderOption {
	return func(c *embedderConfig) { c.policy = &p }
}

// NewEmbedder creates an embedder fronting the given provider.
func NewEmbedder(provider driven.EmbeddingProvider, opts ...EmbedderOption) (*Embedder, error) {
	cfg := embedderConfig{
		cacheSize: DefaultCacheSize,
		maxChars:  DefaultMaxInputChars,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	cache, err := lru.New[string, []float32](cfg.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("embedder cache: %w", err)
	}

	maxBatch := provider.MaxBatchSize()
	if cfg.maxBatch > 0 && cfg.maxBatch < maxBatch {
		maxBatch = cfg.maxBatch
	}
	if maxBatch <= 0 {
		maxBatch = 1
	}

	policy := backoff.Default()
	if cfg.policy != nil {
		policy = *cfg.policy
	}
	if policy.Retryable == nil {
		policy.Retryable = transientEmbedError
	}

	return &Embedder{
		provider: provider,
		cache:    cache,
		policy:   policy,
		maxBatch: maxBatch,
		maxChars: cfg.maxChars,
		group:    newSingleKeyGroup(),
	}, nil
}

// transientEmbedError is the retryable predicate for provider calls.
func transientEmbedError(err error) bool {
	return errors.Is(err, domain.ErrProviderUnavailable) || errors.Is(err, domain.ErrTimeout)
}

// Fingerprint returns the stable cache key for a text. One fingerprint
// domain covers document chunks and queries alike, keyed by model so a
// model change never serves stale vectors.
func (e *Embedder) Fingerprint(text string) string {
	h := sha256.New()
	h.Write([]byte(e.provider.ModelName()))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Dimensions returns the provider's embedding length.
func (e *Embedder) Dimensions() int { return e.provider.Dimensions() }

// ModelName returns the provider's model identifier.
func (e *Embedder) ModelName() string { return e.provider.ModelName() }

// Embed converts texts to vectors, preserving input order. Cache hits
// are served locally; misses are deduplicated, coalesced with any
// in-flight requests for the same fingerprints, batched to the provider
// and retried on transient failure. Oversized or empty items are
// rejected per item without failing the batch. When the provider stays
// unavailable past the retry budget the whole call fails with a
// *domain.ProviderFailure naming the fingerprints that did resolve.
func (e *Embedder) Embed(ctx context.Context, texts []string) (EmbedOutcome, error) {
	out := EmbedOutcome{Vectors: make([][]float32, len(texts))}
	if len(texts) == 0 {
		return out, nil
	}

	// Partition inputs: rejected, cache hit, owned miss, or in flight
	// elsewhere. indexesByFP maps each distinct fingerprint to every
	// input position wanting it, so duplicates cost one provider item.
	indexesByFP := make(map[string][]int, len(texts))
	var owned []string                            // fingerprints this call must resolve
	ownedText := make(map[string]string)          // fingerprint -> text
	ownedCalls := make(map[string]*inflightCall)  // this call's own records
	waiting := make(map[string]*inflightCall)     // resolved by a concurrent call
	var succeeded []string                        // resolved fingerprints, for partial-failure reporting

	for i, text := range texts {
		if reason := e.validateInput(text); reason != nil {
			out.Rejected = append(out.Rejected, domain.RejectedInput{Index: i, Reason: reason})
			continue
		}
		fp := e.Fingerprint(text)
		if prev, seen := indexesByFP[fp]; seen {
			indexesByFP[fp] = append(prev, i)
			continue
		}
		indexesByFP[fp] = []int{i}

		if vec, ok := e.cache.Get(fp); ok {
			e.assign(&out, indexesByFP[fp], vec)
			succeeded = append(succeeded, fp)
			delete(indexesByFP, fp)
			continue
		}

		call, owner := e.group.join(fp)
		if owner {
			owned = append(owned, fp)
			ownedText[fp] = text
			ownedCalls[fp] = call
		} else {
			waiting[fp] = call
		}
	}

	logger.Debug("embed: %d inputs, %d cache hits, %d owned misses, %d coalesced",
		len(texts), len(succeeded), len(owned), len(waiting))

	failure := e.resolveOwned(ctx, owned, ownedText, ownedCalls)

	// Collect owned results. Failed keys were already dropped from the
	// group; completed ones are forgotten here, after the cache holds them.
	for _, fp := range owned {
		if call := ownedCalls[fp]; call.err == nil {
			e.assign(&out, indexesByFP[fp], call.vec)
			succeeded = append(succeeded, fp)
		}
	}
	e.group.forget(owned, ownedCalls)

	// Wait for fingerprints being resolved by concurrent calls.
	for fp, call := range waiting {
		select {
		case <-call.done:
		case <-ctx.Done():
			err := ctx.Err()
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: waiting for in-flight embedding: %v", domain.ErrTimeout, err)
			}
			return EmbedOutcome{}, err
		}
		if call.err != nil {
			if failure == nil {
				failure = call.err
			}
			continue
		}
		e.assign(&out, indexesByFP[fp], call.vec)
		succeeded = append(succeeded, fp)
	}

	if failure != nil {
		return EmbedOutcome{}, &domain.ProviderFailure{Succeeded: succeeded, Err: failure}
	}
	return out, nil
}

// EmbedOne embeds a single text, typically a query.
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	out, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out.Rejected) > 0 {
		return nil, out.Rejected[0].Reason
	}
	return out.Vectors[0], nil
}

// validateInput returns a rejection reason for inputs the provider will
// never accept, or nil.
func (e *Embedder) validateInput(text string) error {
	if text == "" {
		return fmt.Errorf("%w: empty input", domain.ErrEmbeddingRejected)
	}
	if len(text) > e.maxChars {
		return fmt.Errorf("%w: input is %d chars, limit %d", domain.ErrEmbeddingRejected, len(text), e.maxChars)
	}
	return nil
}

// assign writes one vector to every input position wanting it.
func (e *Embedder) assign(out *EmbedOutcome, indexes []int, vec []float32) {
	for _, i := range indexes {
		out.Vectors[i] = vec
	}
}

// resolveOwned issues provider batches for the fingerprints this call
// owns, in parallel, populating the cache and completing the in-flight
// records. Returns the first transient failure after retries, or nil.
func (e *Embedder) resolveOwned(ctx context.Context, owned []string, text map[string]string, calls map[string]*inflightCall) error {
	if len(owned) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(owned); start += e.maxBatch {
		end := start + e.maxBatch
		if end > len(owned) {
			end = len(owned)
		}
		batch := owned[start:end]

		g.Go(func() error {
			inputs := make([]string, len(batch))
			for i, fp := range batch {
				inputs[i] = text[fp]
			}

			vectors, err := backoff.Retry(gctx, e.policy, func(attempt int) ([][]float32, error) {
				if attempt > 1 {
					logger.Debug("embed: retrying provider batch of %d (attempt %d)", len(batch), attempt)
				}
				return e.provider.EmbedBatch(gctx, inputs)
			})
			if err == nil && len(vectors) != len(inputs) {
				err = fmt.Errorf("%w: provider returned %d vectors for %d inputs",
					domain.ErrProviderUnavailable, len(vectors), len(inputs))
			}
			if err != nil {
				e.group.fail(batch, calls, err)
				return err
			}

			for i, fp := range batch {
				e.cache.Add(fp, vectors[i])
				e.group.complete(calls[fp], vectors[i])
			}
			return nil
		})
	}
	return g.Wait()
}
