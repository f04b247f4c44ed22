package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/digital-forge/forge-rag/internal/core/domain"
)

// SearchInput is the input schema for the search_knowledge tool.
type SearchInput struct {
	Query      string `json:"query" jsonschema:"search query for the knowledge base"`
	K          int    `json:"k,omitempty" jsonschema:"number of results to return (default 5)"`
	Collection string `json:"collection,omitempty" jsonschema:"collection to search"`
}

// SearchOutput is the output schema for the search_knowledge tool.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []ResultOutput `json:"results"`
	Count   int            `json:"count"`
}

// ResultOutput represents a single search result.
type ResultOutput struct {
	Content      string         `json:"content"`
	Score        float64        `json:"score"`
	DocumentPath string         `json:"document_path,omitempty"`
	ChunkIndex   int            `json:"chunk_index"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// AddInput is the input schema for the add_knowledge tool.
type AddInput struct {
	Content    string         `json:"content" jsonschema:"content to add to the knowledge base"`
	Source     string         `json:"source,omitempty" jsonschema:"source name or path for the content"`
	Metadata   map[string]any `json:"metadata,omitempty" jsonschema:"metadata attached to every chunk"`
	Collection string         `json:"collection,omitempty" jsonschema:"target collection"`
	ChunkSize  int            `json:"chunk_size,omitempty" jsonschema:"chunk size in characters (default 1000)"`
	Overlap    int            `json:"overlap,omitempty" jsonschema:"overlap between chunks in characters (default 200, or 0 when chunk_size is set)"`
}

// AddOutput is the output schema for the add_knowledge tool.
type AddOutput struct {
	Collection   string   `json:"collection"`
	ChunksAdded  int      `json:"chunks_added"`
	ChunksFailed int      `json:"chunks_failed,omitempty"`
	IDs          []string `json:"ids"`
	Partial      bool     `json:"partial"`
}

// QueryContextInput is the input schema for the query_with_context tool.
type QueryContextInput struct {
	Query      string `json:"query" jsonschema:"query to answer"`
	ContextK   int    `json:"context_k,omitempty" jsonschema:"number of context chunks (default 3)"`
	Collection string `json:"collection,omitempty" jsonschema:"collection to query"`
}

// QueryContextOutput is the output schema for the query_with_context tool.
type QueryContextOutput struct {
	Query            string `json:"query"`
	Context          string `json:"context"`
	Prompt           string `json:"prompt"`
	ContextDocuments int    `json:"context_documents"`
}

// UpdateIndexInput is the input schema for the update_knowledge_index tool.
type UpdateIndexInput struct {
	Collection   string `json:"collection,omitempty" jsonschema:"collection to update"`
	ForceRebuild bool   `json:"force_rebuild,omitempty" jsonschema:"block until a complete index rebuild finishes"`
}

// CollectionOutput describes one collection's statistics.
type CollectionOutput struct {
	Name        string `json:"name"`
	VectorCount int64  `json:"vectors_count"`
	Dimension   int    `json:"dimension"`
	Distance    string `json:"distance"`
	State       string `json:"state"`
	IndexedAt   string `json:"indexed_at,omitempty"`
}

// ListCollectionsOutput is the output schema for list_knowledge_collections.
type ListCollectionsOutput struct {
	Collections []CollectionOutput `json:"collections"`
	Count       int                `json:"count"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_knowledge",
		Description: "Search the knowledge base using semantic similarity",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "add_knowledge",
		Description: "Chunk and index new content into the knowledge base",
	}, s.handleAdd)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "query_with_context",
		Description: "Retrieve context for a query and build a generation-ready prompt",
	}, s.handleQueryContext)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "update_knowledge_index",
		Description: "Optimize or rebuild a collection's vector index",
	}, s.handleUpdateIndex)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_knowledge_collections",
		Description: "List all knowledge collections and their statistics",
	}, s.handleListCollections)
}

// handleSearch handles the search_knowledge tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	k := input.K
	if k <= 0 {
		k = 5
	}

	results, err := s.ports.Query.Search(ctx, input.Query, s.ports.collection(input.Collection), k, nil, nil)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Query:   input.Query,
		Results: make([]ResultOutput, len(results)),
		Count:   len(results),
	}
	for i := range results {
		output.Results[i] = ResultOutput{
			Content:      results[i].Chunk.Content,
			Score:        results[i].Score,
			DocumentPath: results[i].Chunk.DocumentPath,
			ChunkIndex:   results[i].Chunk.Index,
			Metadata:     results[i].Chunk.Metadata,
		}
	}
	return nil, output, nil
}

// handleAdd handles the add_knowledge tool invocation.
func (s *Server) handleAdd(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AddInput,
) (*mcp.CallToolResult, AddOutput, error) {
	path := input.Source
	if path == "" {
		path = "mcp:" + time.Now().UTC().Format(time.RFC3339Nano)
	}

	doc := domain.Document{
		Path:     path,
		Content:  input.Content,
		Metadata: input.Metadata,
	}
	opts := domain.IngestOptions{ChunkSize: input.ChunkSize, Overlap: input.Overlap}

	collection := s.ports.collection(input.Collection)
	report, err := s.ports.Ingest.Ingest(ctx, doc, collection, opts)

	// Partial success still carries a useful report; surface both.
	var partial *domain.PartialIngestError
	if err != nil && !errors.As(err, &partial) {
		return nil, AddOutput{}, err
	}

	return nil, AddOutput{
		Collection:   collection,
		ChunksAdded:  report.ChunksAdded,
		ChunksFailed: report.ChunksFailed,
		IDs:          report.ChunkIDs,
		Partial:      partial != nil,
	}, nil
}

// handleQueryContext handles the query_with_context tool invocation.
func (s *Server) handleQueryContext(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryContextInput,
) (*mcp.CallToolResult, QueryContextOutput, error) {
	k := input.ContextK
	if k <= 0 {
		k = 3
	}

	block, err := s.ports.Query.QueryWithContext(ctx, input.Query, s.ports.collection(input.Collection), k)
	if err != nil {
		return nil, QueryContextOutput{}, err
	}

	return nil, QueryContextOutput{
		Query:            block.Query,
		Context:          block.Context,
		Prompt:           block.Prompt,
		ContextDocuments: block.Sources,
	}, nil
}

// handleUpdateIndex handles the update_knowledge_index tool invocation.
func (s *Server) handleUpdateIndex(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input UpdateIndexInput,
) (*mcp.CallToolResult, CollectionOutput, error) {
	mode := domain.RebuildIncremental
	if input.ForceRebuild {
		mode = domain.RebuildFull
	}

	info, err := s.ports.Index.Rebuild(ctx, s.ports.collection(input.Collection), mode)
	if err != nil {
		return nil, CollectionOutput{}, err
	}
	return nil, collectionOutput(info), nil
}

// handleListCollections handles the list_knowledge_collections tool invocation.
func (s *Server) handleListCollections(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ struct{},
) (*mcp.CallToolResult, ListCollectionsOutput, error) {
	infos, err := s.ports.Index.ListCollections(ctx)
	if err != nil {
		return nil, ListCollectionsOutput{}, err
	}

	output := ListCollectionsOutput{
		Collections: make([]CollectionOutput, len(infos)),
		Count:       len(infos),
	}
	for i, info := range infos {
		output.Collections[i] = collectionOutput(info)
	}
	return nil, output, nil
}

// collectionOutput converts collection info to the wire shape.
func collectionOutput(info domain.CollectionInfo) CollectionOutput {
	out := CollectionOutput{
		Name:        info.Name,
		VectorCount: info.VectorCount,
		Dimension:   info.Dimension,
		Distance:    string(info.Distance),
		State:       string(info.State),
	}
	if !info.IndexedAt.IsZero() {
		out.IndexedAt = info.IndexedAt.UTC().Format(time.RFC3339)
	}
	return out
}
