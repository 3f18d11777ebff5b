package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recall-labs/recall-cli/internal/core/domain"
)

func TestResetCursorCmd(t *testing.T) {
	sync := &mockSyncOrchestrator{}

	out, err := execute(nil, sync, "source", "reset-cursor", "slack")
	require.NoError(t, err)

	assert.True(t, sync.resetCalled)
	assert.Equal(t, domain.SourceSlack, sync.gotSource)
	assert.Contains(t, out, "Cursors cleared for slack")
}

func TestResetCursorCmd_Error(t *testing.T) {
	sync := &mockSyncOrchestrator{err: errMockFailure}

	_, err := execute(nil, sync, "source", "reset-cursor", "slack")
	require.Error(t, err)
	assert.ErrorIs(t, err, errMockFailure)
}

func TestDeleteSourceCmd(t *testing.T) {
	sync := &mockSyncOrchestrator{deleted: 17}

	out, err := execute(nil, sync, "source", "delete", "gmail")
	require.NoError(t, err)

	assert.Equal(t, domain.SourceGmail, sync.gotSource)
	assert.Contains(t, out, "Deleted 17 documents from gmail.")
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(nil, nil, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "recall version")
}
