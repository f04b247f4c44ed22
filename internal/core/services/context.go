package services

import (
	"fmt"
	"strings"

	"github.com/digital-forge/forge-rag/internal/core/domain"
)

// EmptyContextMarker is emitted when retrieval produced no results, so
// downstream prompting can tell "no context retrieved" apart from a
// zero-length context.
const EmptyContextMarker = "[no context retrieved]"

// promptTemplate frames the assembled context for a generation step.
const promptTemplate = `Based on the following context, answer the query.

Context:
%s

Query: %s

Answer:`

// AssembleContext turns ranked results into a single annotated text
// block. Each chunk is prefixed with its 1-based source marker and
// separated from the next by a blank line; input order is preserved
// exactly.
func AssembleContext(results []domain.SearchResult) string {
	if len(results) == 0 {
		return EmptyContextMarker
	}

	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[Source %d]\n%s", i+1, r.Chunk.Content)
	}
	return strings.Join(parts, "\n\n")
}

// BuildPrompt embeds the context block and query into the generation
// template.
func BuildPrompt(query, context string) string {
	return fmt.Sprintf(promptTemplate, context, query)
}
