package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// researchPromptTemplate is the template served by the
// rag_research_prompt prompt. Placeholders are filled from the prompt
// arguments when provided.
const researchPromptTemplate = `You are a research assistant with access to a knowledge base.

When answering questions:
1. Search the knowledge base for relevant information
2. Synthesize information from multiple sources
3. Cite sources when possible
4. Acknowledge when information is not available
5. Provide clear, accurate, and helpful responses

Knowledge Base Query: {query}

Retrieved Context:
{context}

Based on the above context, provide a comprehensive answer to: {query}

Answer:`

// registerPrompts registers all prompt handlers with the MCP server.
func (s *Server) registerPrompts() {
	s.server.AddPrompt(&mcp.Prompt{
		Name:        "rag_research_prompt",
		Description: "Template for RAG-based research queries",
		Arguments: []*mcp.PromptArgument{
			{Name: "query", Description: "The question to research", Required: false},
			{Name: "context", Description: "Retrieved context to ground the answer", Required: false},
		},
	}, s.handleResearchPrompt)
}

// handleResearchPrompt serves the research prompt, substituting any
// supplied arguments into the template.
func (s *Server) handleResearchPrompt(
	_ context.Context,
	req *mcp.GetPromptRequest,
) (*mcp.GetPromptResult, error) {
	text := researchPromptTemplate
	for name, value := range req.Params.Arguments {
		text = strings.ReplaceAll(text, fmt.Sprintf("{%s}", name), value)
	}

	return &mcp.GetPromptResult{
		Description: "Template for RAG-based research queries",
		Messages: []*mcp.PromptMessage{{
			Role:    "user",
			Content: &mcp.TextContent{Text: text},
		}},
	}, nil
}
