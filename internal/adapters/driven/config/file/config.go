// Package file loads forge-rag configuration from a TOML file, with
// environment variables overriding secrets so API keys never have to
// live on disk.
package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Environment variables consulted after the file is read.
const (
	EnvOpenAIKey   = "OPENAI_API_KEY"
	EnvQdrantURL   = "QDRANT_URL"
	EnvQdrantKey   = "QDRANT_API_KEY"
	EnvPostgresDSN = "FORGE_RAG_POSTGRES_DSN"
)

// Config is the full configuration tree.
type Config struct {
	// DefaultCollection is used when a command names no collection.
	DefaultCollection string `toml:"default_collection"`

	Embedding EmbeddingConfig `toml:"embedding"`
	Store     StoreConfig     `toml:"vector_store"`
	Chunking  ChunkingConfig  `toml:"chunking"`
}

// EmbeddingConfig configures the embedding provider and cache.
type EmbeddingConfig struct {
	// Model is the embedding model (default text-embedding-3-small).
	Model string `toml:"model"`

	// BaseURL overrides the provider endpoint (Azure, proxies).
	BaseURL string `toml:"base_url"`

	// APIKey is normally left empty and supplied via OPENAI_API_KEY.
	APIKey string `toml:"api_key"`

	// Dimensions overrides the model's default vector length.
	Dimensions int `toml:"dimensions"`

	// MaxBatchSize caps items per provider request.
	MaxBatchSize int `toml:"max_batch_size"`

	// CacheSize is the embedding LRU capacity in entries.
	CacheSize int `toml:"cache_size"`
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	// Backend is one of "memory", "qdrant", "pgvector".
	Backend string `toml:"backend"`

	// QdrantURL is the Qdrant HTTP endpoint.
	QdrantURL string `toml:"qdrant_url"`

	// QdrantAPIKey is normally supplied via QDRANT_API_KEY.
	QdrantAPIKey string `toml:"qdrant_api_key"`

	// PostgresDSN is normally supplied via FORGE_RAG_POSTGRES_DSN.
	PostgresDSN string `toml:"postgres_dsn"`
}

// ChunkingConfig sets the default chunking parameters.
type ChunkingConfig struct {
	ChunkSize int `toml:"chunk_size"`
	Overlap   int `toml:"overlap"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		DefaultCollection: "knowledge",
		Embedding: EmbeddingConfig{
			Model: "text-embedding-3-small",
		},
		Store: StoreConfig{
			Backend:   "qdrant",
			QdrantURL: "http://localhost:6333",
		},
		Chunking: ChunkingConfig{
			ChunkSize: 1000,
			Overlap:   200,
		},
	}
}

// DefaultPath returns ~/.forge-rag/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".forge-rag", "config.toml"), nil
}

// Load reads the TOML file at path, falling back to defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// No file is fine; environment and defaults carry it.
	case err != nil:
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// Save writes the configuration to path, creating the directory.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// applyEnv lets environment variables override file values for secrets
// and endpoints.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvOpenAIKey); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv(EnvQdrantURL); v != "" {
		cfg.Store.QdrantURL = v
	}
	if v := os.Getenv(EnvQdrantKey); v != "" {
		cfg.Store.QdrantAPIKey = v
	}
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		cfg.Store.PostgresDSN = v
	}
}
