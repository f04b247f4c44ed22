package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/digital-forge/forge-rag/internal/core/domain"
)

var (
	searchCollection string
	searchLimit      int
	searchJSON       bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search a collection",
	Long: `Embeds the query and returns the most similar chunks from the
collection, ordered by score.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchCollection, "collection", "c", "", "collection to search")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]
	collection := collectionOrDefault(searchCollection)

	results, err := queryService.Search(cmd.Context(), query, collection, searchLimit, nil, nil)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}

	return outputSearchTable(cmd, results)
}

func outputSearchJSON(cmd *cobra.Command, results []domain.SearchResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.SearchResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		cmd.Printf("  [%d] %s #%d (%.4f)\n", i+1, results[i].Chunk.DocumentPath, results[i].Chunk.Index, results[i].Score)
		cmd.Printf("      %s\n", snippet(results[i].Chunk.Content, 120))
		cmd.Println()
	}

	return nil
}

// snippet returns the first line of content, truncated to max runes.
func snippet(content string, max int) string {
	for i, r := range content {
		if r == '\n' {
			content = content[:i]
			break
		}
	}
	runes := []rune(content)
	if len(runes) > max {
		return string(runes[:max]) + "..."
	}
	return content
}
