// Package services implements the retrieval pipeline behind the
// driving ports: embedding with caching and coalescing, ingestion,
// ranked retrieval with context assembly, and collection lifecycle
// management. Services depend only on domain types and driven ports.
package services
