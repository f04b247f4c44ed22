package mcp

import (
	"context"

	"github.com/digital-forge/forge-rag/internal/core/domain"
)

// --- Mock implementations of the driving ports ---

type mockIngestService struct {
	report domain.IngestReport
	err    error

	gotDoc        domain.Document
	gotCollection string
	gotOpts       domain.IngestOptions
}

func (m *mockIngestService) Ingest(_ context.Context, doc domain.Document, collection string, opts domain.IngestOptions) (domain.IngestReport, error) {
	m.gotDoc = doc
	m.gotCollection = collection
	m.gotOpts = opts
	return m.report, m.err
}

type mockQueryService struct {
	results []domain.SearchResult
	block   domain.ContextBlock
	err     error

	gotQuery      string
	gotCollection string
	gotK          int
}

func (m *mockQueryService) Search(_ context.Context, query, collection string, k int, _ *domain.Filter, _ *domain.Preferences) ([]domain.SearchResult, error) {
	m.gotQuery = query
	m.gotCollection = collection
	m.gotK = k
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

func (m *mockQueryService) QueryWithContext(_ context.Context, query, collection string, k int) (domain.ContextBlock, error) {
	m.gotQuery = query
	m.gotCollection = collection
	m.gotK = k
	if m.err != nil {
		return domain.ContextBlock{}, m.err
	}
	return m.block, nil
}

type mockIndexService struct {
	infos []domain.CollectionInfo
	info  domain.CollectionInfo
	err   error

	gotName string
	gotMode domain.RebuildMode
}

func (m *mockIndexService) CreateCollection(_ context.Context, name string, _ int, _ domain.DistanceMetric) error {
	m.gotName = name
	return m.err
}

func (m *mockIndexService) ListCollections(_ context.Context) ([]domain.CollectionInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.infos, nil
}

func (m *mockIndexService) DescribeCollection(_ context.Context, name string) (domain.CollectionInfo, error) {
	m.gotName = name
	if m.err != nil {
		return domain.CollectionInfo{}, m.err
	}
	return m.info, nil
}

func (m *mockIndexService) Rebuild(_ context.Context, name string, mode domain.RebuildMode) (domain.CollectionInfo, error) {
	m.gotName = name
	m.gotMode = mode
	if m.err != nil {
		return domain.CollectionInfo{}, m.err
	}
	return m.info, nil
}

// testPorts returns a Ports with fresh mocks for every slot.
func testPorts() (*Ports, *mockIngestService, *mockQueryService, *mockIndexService) {
	ingest := &mockIngestService{}
	query := &mockQueryService{}
	index := &mockIndexService{}
	return &Ports{Ingest: ingest, Query: query, Index: index}, ingest, query, index
}
