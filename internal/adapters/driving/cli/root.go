// Package cli implements the forge-rag command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/digital-forge/forge-rag/internal/adapters/driven/config/file"
	"github.com/digital-forge/forge-rag/internal/adapters/driven/embedding/openai"
	"github.com/digital-forge/forge-rag/internal/adapters/driven/vector/memory"
	"github.com/digital-forge/forge-rag/internal/adapters/driven/vector/pgvector"
	"github.com/digital-forge/forge-rag/internal/adapters/driven/vector/qdrant"
	"github.com/digital-forge/forge-rag/internal/core/ports/driven"
	"github.com/digital-forge/forge-rag/internal/core/services"
	"github.com/digital-forge/forge-rag/internal/logger"
)

// version is overridden at build time via -ldflags.
var version = "dev"

var (
	cfgPath string
	verbose bool

	cfg file.Config

	vectorStore   driven.VectorStore
	embedProvider driven.EmbeddingProvider
	indexService  *services.IndexService
	ingestService *services.IngestService
	queryService  *services.QueryService
)

var rootCmd = &cobra.Command{
	Use:   "forge-rag",
	Short: "Retrieval-augmented knowledge base",
	Long: `forge-rag ingests documents into a vector store and retrieves
relevant context for queries, either directly or as an MCP server
for AI assistant integration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		if skipsWiring(cmd) {
			return nil
		}
		return initServices(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
		return closeServices()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.forge-rag/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// Execute runs the root command and returns its exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// skipsWiring reports whether a command runs without backend services.
func skipsWiring(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "version", "help", "completion":
		return true
	}
	return false
}

func initServices(cmd *cobra.Command) error {
	// Already wired, either by a previous invocation or by a test.
	if indexService != nil && ingestService != nil && queryService != nil {
		return nil
	}

	path := cfgPath
	if path == "" {
		var err error
		path, err = file.DefaultPath()
		if err != nil {
			return fmt.Errorf("resolving config path: %w", err)
		}
	}

	var err error
	cfg, err = file.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Debug("config loaded from %s (backend=%s)", path, cfg.Store.Backend)

	embedProvider, err = openai.NewProvider(openai.Config{
		APIKey:       cfg.Embedding.APIKey,
		BaseURL:      cfg.Embedding.BaseURL,
		Model:        cfg.Embedding.Model,
		Dimensions:   cfg.Embedding.Dimensions,
		MaxBatchSize: cfg.Embedding.MaxBatchSize,
	})
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}

	vectorStore, err = newVectorStore(cmd)
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}

	var embedOpts []services.EmbedderOption
	if cfg.Embedding.CacheSize > 0 {
		embedOpts = append(embedOpts, services.WithCacheSize(cfg.Embedding.CacheSize))
	}
	embedder, err := services.NewEmbedder(embedProvider, embedOpts...)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	indexService = services.NewIndexService(vectorStore)
	ingestService = services.NewIngestService(embedder, indexService)
	queryService = services.NewQueryService(embedder, vectorStore, indexService)
	return nil
}

func newVectorStore(cmd *cobra.Command) (driven.VectorStore, error) {
	switch cfg.Store.Backend {
	case "memory":
		return memory.NewStore(), nil
	case "qdrant", "":
		return qdrant.NewStore(qdrant.Config{
			BaseURL: cfg.Store.QdrantURL,
			APIKey:  cfg.Store.QdrantAPIKey,
		}), nil
	case "pgvector":
		return pgvector.NewStore(cmd.Context(), cfg.Store.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.Store.Backend)
	}
}

func closeServices() error {
	var errs []error
	if embedProvider != nil {
		if err := embedProvider.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if vectorStore != nil {
		if err := vectorStore.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, err := range errs {
		logger.Warn("shutdown: %v", err)
	}
	return nil
}

// collectionOrDefault resolves the collection a command should act on.
func collectionOrDefault(requested string) string {
	if requested != "" {
		return requested
	}
	if cfg.DefaultCollection != "" {
		return cfg.DefaultCollection
	}
	return "knowledge"
}
