package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recall-labs/recall-cli/internal/core/domain"
)

func TestSyncCmd_SingleSource(t *testing.T) {
	sync := &mockSyncOrchestrator{
		result: &domain.SyncResult{
			Source:      domain.SourceSlack,
			ItemsSynced: 12,
			ItemsFailed: 1,
			Errors: []domain.SyncError{
				{PartitionID: "C2", Message: "channel archived"},
			},
		},
	}

	out, err := execute(nil, sync, "sync", "slack")
	require.NoError(t, err)

	assert.Equal(t, domain.SourceSlack, sync.gotSource)
	assert.Contains(t, out, "slack: 12 synced, 1 failed")
	assert.Contains(t, out, "partition C2: channel archived")
}

func TestSyncCmd_UnknownSource(t *testing.T) {
	sync := &mockSyncOrchestrator{err: domain.ErrUnsupportedSource}

	_, err := execute(nil, sync, "sync", "jira")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedSource)
}

func TestSyncCmd_AllSources(t *testing.T) {
	sync := &mockSyncOrchestrator{
		result: &domain.SyncResult{Source: domain.SourceNotion, ItemsSynced: 3},
	}

	out, err := execute(nil, sync, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Synchronising all sources...")
	assert.Contains(t, out, "notion: 3 synced, 0 failed")
}

func TestSyncCmd_AllSourcesPartialFailure(t *testing.T) {
	sync := &mockSyncOrchestrator{
		result: &domain.SyncResult{Source: domain.SourceSlack, ItemsSynced: 5},
		err:    domain.ErrNotConnected,
	}

	// Successful sources are still printed before the error surfaces.
	out, err := execute(nil, sync, "sync")
	require.Error(t, err)
	assert.Contains(t, out, "slack: 5 synced")
}

func TestStatusCmd(t *testing.T) {
	sync := &mockSyncOrchestrator{
		statuses: []domain.SyncStatus{
			{
				Source:        domain.SourceSlack,
				DocumentCount: 42,
				LastSync:      time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
			},
			{Source: domain.SourceGmail, DocumentCount: 7},
		},
	}

	out, err := execute(nil, sync, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "slack")
	assert.Contains(t, out, "42 documents")
	assert.Contains(t, out, "2025-06-01 09:30:00")
	assert.Contains(t, out, "never")
}

func TestStatusCmd_Empty(t *testing.T) {
	out, err := execute(nil, &mockSyncOrchestrator{}, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No documents indexed yet.")
}
