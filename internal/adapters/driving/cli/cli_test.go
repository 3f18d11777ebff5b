package cli

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/recall-labs/recall-cli/internal/core/domain"
)

// mockSearchService implements driving.SearchService for command tests.
type mockSearchService struct {
	results  []domain.SearchResult
	err      error
	gotQuery string
	gotOpts  domain.SearchOptions
}

func (m *mockSearchService) Search(_ context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	m.gotQuery = query
	m.gotOpts = opts
	return m.results, m.err
}

// mockSyncOrchestrator implements driving.SyncOrchestrator for command tests.
type mockSyncOrchestrator struct {
	result      *domain.SyncResult
	statuses    []domain.SyncStatus
	err         error
	gotSource   domain.SourceType
	resetCalled bool
	deleted     int
}

func (m *mockSyncOrchestrator) Sync(_ context.Context, source domain.SourceType) (*domain.SyncResult, error) {
	m.gotSource = source
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockSyncOrchestrator) SyncAll(context.Context) ([]domain.SyncResult, error) {
	if m.result == nil {
		return nil, m.err
	}
	return []domain.SyncResult{*m.result}, m.err
}

func (m *mockSyncOrchestrator) Status(context.Context) ([]domain.SyncStatus, error) {
	return m.statuses, m.err
}

func (m *mockSyncOrchestrator) ResetCursor(_ context.Context, source domain.SourceType, _ string) error {
	m.gotSource = source
	m.resetCalled = true
	return m.err
}

func (m *mockSyncOrchestrator) DeleteSource(_ context.Context, source domain.SourceType, _ string) (int, error) {
	m.gotSource = source
	return m.deleted, m.err
}

var errMockFailure = errors.New("mock failure")

// execute runs the root command with the given args, capturing output.
// Package-level services are restored afterwards.
func execute(search *mockSearchService, sync *mockSyncOrchestrator, args ...string) (string, error) {
	prevSearch, prevSync := searchService, syncOrchestrator
	if search != nil {
		searchService = search
	}
	if sync != nil {
		syncOrchestrator = sync
	}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	rootCmd.SetArgs(nil)
	searchService, syncOrchestrator = prevSearch, prevSync
	return buf.String(), err
}

func sampleResult(id, title string, score float64) domain.SearchResult {
	return domain.SearchResult{
		Document: domain.Document{
			ID:        id,
			Source:    domain.SourceSlack,
			ChannelID: "C1",
			Title:     title,
			Content:   "standup moved to 10am\nsecond line",
			Timestamp: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		},
		Score: score,
	}
}
