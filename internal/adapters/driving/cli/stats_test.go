package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recall-labs/recall-cli/internal/adapters/driven/storage/memory"
	"github.com/recall-labs/recall-cli/internal/core/domain"
)

func TestStatsCmd(t *testing.T) {
	store := memory.NewDocStore()
	require.NoError(t, store.Initialize(context.Background()))
	_, err := store.Upsert(context.Background(), []domain.EmbeddedDocument{{
		Document: domain.Document{
			ID:          "slack:T1:C1:1",
			Source:      domain.SourceSlack,
			WorkspaceID: "T1",
			Content:     "standup at 10am",
			ContentHash: domain.ComputeContentHash("standup at 10am"),
		},
		Embedding: []float32{0.1, 0.2},
	}})
	require.NoError(t, err)

	prev := docStore
	docStore = store
	t.Cleanup(func() { docStore = prev })

	out, err := execute(nil, nil, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Documents:  1")
	assert.Contains(t, out, "Embeddings: 1")
	assert.Contains(t, out, "slack")
}
