package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/digital-forge/forge-rag/internal/core/domain"
)

var (
	ingestCollection string
	ingestChunkSize  int
	ingestOverlap    int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Add documents to a collection",
	Long: `Reads each file, splits it into overlapping chunks, embeds the
chunks and writes them to the vector store. Re-ingesting the same
file replaces its previous chunks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestCollection, "collection", "c", "", "target collection")
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", 0, "chunk size in characters")
	ingestCmd.Flags().IntVar(&ingestOverlap, "overlap", 0, "overlap between chunks in characters")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	collection := collectionOrDefault(ingestCollection)

	opts := domain.IngestOptions{
		ChunkSize: ingestChunkSize,
		Overlap:   ingestOverlap,
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = cfg.Chunking.ChunkSize
	}
	if opts.Overlap == 0 {
		opts.Overlap = cfg.Chunking.Overlap
	}

	var failed int
	for _, path := range args {
		content, err := os.ReadFile(path)
		if err != nil {
			cmd.PrintErrf("  %s: %v\n", path, err)
			failed++
			continue
		}

		doc := domain.Document{Path: path, Content: string(content)}
		report, err := ingestService.Ingest(cmd.Context(), doc, collection, opts)

		var partial *domain.PartialIngestError
		switch {
		case errors.As(err, &partial):
			cmd.Printf("  %s: %d chunks added, %d rejected\n", path, report.ChunksAdded, report.ChunksFailed)
		case err != nil:
			cmd.PrintErrf("  %s: %v\n", path, err)
			failed++
		default:
			cmd.Printf("  %s: %d chunks added\n", path, report.ChunksAdded)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(args))
	}
	return nil
}
