// Package domain holds the core types of the retrieval pipeline:
// documents, chunks, collections, search results and the error taxonomy.
// It has no dependencies on adapters or infrastructure.
package domain
