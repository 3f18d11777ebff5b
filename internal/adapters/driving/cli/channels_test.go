package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recall-labs/recall-cli/internal/adapters/driven/config/file"
)

func withConfigStore(t *testing.T) {
	t.Helper()
	store, err := file.NewConfigStore(t.TempDir())
	require.NoError(t, err)

	prev := configStore
	configStore = store
	t.Cleanup(func() { configStore = prev })
}

func TestChannelsCmd_SetAndShow(t *testing.T) {
	withConfigStore(t)

	out, err := execute(nil, nil, "source", "channels", "slack", "C1", "C2")
	require.NoError(t, err)
	assert.Contains(t, out, "slack restricted to 2 channels.")

	out, err = execute(nil, nil, "source", "channels", "slack")
	require.NoError(t, err)
	assert.Contains(t, out, "C1, C2")
}

func TestChannelsCmd_Unrestricted(t *testing.T) {
	withConfigStore(t)

	out, err := execute(nil, nil, "source", "channels", "slack")
	require.NoError(t, err)
	assert.Contains(t, out, "all channels included")
}

func TestChannelsCmd_Clear(t *testing.T) {
	withConfigStore(t)

	_, err := execute(nil, nil, "source", "channels", "slack", "C1")
	require.NoError(t, err)

	out, err := execute(nil, nil, "source", "channels", "--clear", "slack")
	require.NoError(t, err)
	assert.Contains(t, out, "restriction removed")

	out, err = execute(nil, nil, "source", "channels", "--clear=false", "slack")
	require.NoError(t, err)
	assert.Contains(t, out, "all channels included")
}
