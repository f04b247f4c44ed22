// Package mcp provides an MCP (Model Context Protocol) server adapter
// exposing the retrieval pipeline as tools, resources and prompts. It
// is a thin shim: every handler maps one request onto one driving-port
// call and formats the result.
package mcp

import "errors"

// Errors returned when required ports are missing.
var (
	ErrMissingIngestService = errors.New("mcp: ingest service is required")
	ErrMissingQueryService  = errors.New("mcp: query service is required")
	ErrMissingIndexService  = errors.New("mcp: index service is required")
)
