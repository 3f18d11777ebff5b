package mcp

import (
	"context"
	"time"

	"github.com/recall-labs/recall-cli/internal/core/domain"
)

// mockSearchService implements driving.SearchService for tests.
type mockSearchService struct {
	results  []domain.SearchResult
	err      error
	gotQuery string
	gotOpts  domain.SearchOptions
}

func (m *mockSearchService) Search(_ context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	m.gotQuery = query
	m.gotOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

// mockSyncOrchestrator implements driving.SyncOrchestrator for tests.
type mockSyncOrchestrator struct {
	result    *domain.SyncResult
	statuses  []domain.SyncStatus
	err       error
	gotSource domain.SourceType
}

func (m *mockSyncOrchestrator) Sync(_ context.Context, source domain.SourceType) (*domain.SyncResult, error) {
	m.gotSource = source
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockSyncOrchestrator) SyncAll(context.Context) ([]domain.SyncResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []domain.SyncResult{*m.result}, nil
}

func (m *mockSyncOrchestrator) Status(context.Context) ([]domain.SyncStatus, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.statuses, nil
}

func (m *mockSyncOrchestrator) ResetCursor(context.Context, domain.SourceType, string) error {
	return m.err
}

func (m *mockSyncOrchestrator) DeleteSource(context.Context, domain.SourceType, string) (int, error) {
	return 0, m.err
}

func testStatuses() []domain.SyncStatus {
	return []domain.SyncStatus{
		{
			Source:        domain.SourceSlack,
			DocumentCount: 42,
			LastSync:      time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
		},
		{Source: domain.SourceNotion, DocumentCount: 7},
	}
}
