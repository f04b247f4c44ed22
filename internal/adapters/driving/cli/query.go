package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	queryCollection string
	queryLimit      int
	queryShowPrompt bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Retrieve context for a question",
	Long: `Searches the collection and assembles the matching chunks into a
context block with numbered source markers, ready to hand to a
language model.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryCollection, "collection", "c", "", "collection to query")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 3, "maximum number of context chunks")
	queryCmd.Flags().BoolVar(&queryShowPrompt, "prompt", false, "print the full assembled prompt")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	question := args[0]
	collection := collectionOrDefault(queryCollection)

	block, err := queryService.QueryWithContext(cmd.Context(), question, collection, queryLimit)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryShowPrompt {
		cmd.Println(block.Prompt)
		return nil
	}

	cmd.Println(block.Context)
	return nil
}
