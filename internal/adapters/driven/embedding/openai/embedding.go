// Package openai provides an embedding provider adapter using the
// OpenAI embeddings API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/digital-forge/forge-rag/internal/core/domain"
	"github.com/digital-forge/forge-rag/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.EmbeddingProvider = (*Provider)(nil)

// Default configuration values.
const (
	DefaultBaseURL      = "https://api.openai.com/v1"
	DefaultModel        = "text-embedding-3-small"
	DefaultTimeout      = 60 * time.Second
	DefaultMaxBatchSize = 2048
	DefaultRequestRate  = 8 // requests per second
)

// Model dimensions for OpenAI embedding models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config holds configuration for the OpenAI embedding provider.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string

	// Model is the embedding model to use (default: text-embedding-3-small).
	Model string

	// Timeout is the request timeout (default: 60s).
	Timeout time.Duration

	// Dimensions overrides the default dimension for the model.
	// Only applicable to text-embedding-3-* models.
	Dimensions int

	// MaxBatchSize caps inputs per request (default: 2048, the API limit).
	MaxBatchSize int

	// RequestsPerSecond throttles outgoing requests (default: 8).
	RequestsPerSecond float64
}

// Provider generates embeddings using the OpenAI API.
type Provider struct {
	client     *http.Client
	limiter    *rate.Limiter
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	maxBatch   int
}

// embeddingRequest is the OpenAI API request format.
type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// embeddingResponse is the OpenAI API response format.
type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewProvider creates a new OpenAI embedding provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBatchSize <= 0 || cfg.MaxBatchSize > DefaultMaxBatchSize {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestRate
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		var ok bool
		dimensions, ok = modelDimensions[cfg.Model]
		if !ok {
			dimensions = 1536 // Default fallback
		}
	}

	return &Provider{
		client:     &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: dimensions,
		maxBatch:   cfg.MaxBatchSize,
	}, nil
}

// EmbedBatch generates embeddings for a batch of texts, in input order.
// Rate-limit, timeout and 5xx conditions wrap domain.ErrProviderUnavailable
// so the caller's retry policy can distinguish them from validation
// failures, which wrap domain.ErrEmbeddingRejected.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > p.maxBatch {
		return nil, fmt.Errorf("%w: batch of %d exceeds limit %d", domain.ErrConfiguration, len(texts), p.maxBatch)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, classifyTransportErr(err)
	}

	reqBody := embeddingRequest{
		Model: p.model,
		Input: texts,
	}
	// Only include dimensions for text-embedding-3-* models.
	if p.model == "text-embedding-3-small" || p.model == "text-embedding-3-large" {
		reqBody.Dimensions = p.dimensions
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	var embedResp embeddingResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if embedResp.Error != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrEmbeddingRejected, embedResp.Error.Message)
	}
	if len(embedResp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
			domain.ErrProviderUnavailable, len(embedResp.Data), len(texts))
	}

	// Convert float64 to float32 and order by index.
	embeddings := make([][]float32, len(texts))
	for _, data := range embedResp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", domain.ErrProviderUnavailable, data.Index)
		}
		embedding := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			embedding[i] = float32(v)
		}
		embeddings[data.Index] = embedding
	}
	return embeddings, nil
}

// Dimensions returns the embedding vector size.
func (p *Provider) Dimensions() int { return p.dimensions }

// ModelName returns the name of the embedding model being used.
func (p *Provider) ModelName() string { return p.model }

// MaxBatchSize returns the largest accepted batch.
func (p *Provider) MaxBatchSize() int { return p.maxBatch }

// Ping validates the service is reachable by checking the /models
// endpoint. This validates the API key without running inference.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("openai: failed to create ping request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return classifyStatus(resp.StatusCode, body)
	}
	return nil
}

// Close releases resources.
func (p *Provider) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}

// classifyTransportErr distinguishes deadline expiry from other
// transport failures; both are transient from the caller's view.
func classifyTransportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
}

// classifyStatus maps HTTP statuses to the error taxonomy: 429 and 5xx
// are transient, everything else non-2xx is a validation rejection.
func classifyStatus(code int, body []byte) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%w: status %d: %s", domain.ErrProviderUnavailable, code, string(body))
	default:
		return fmt.Errorf("%w: status %d: %s", domain.ErrEmbeddingRejected, code, string(body))
	}
}
