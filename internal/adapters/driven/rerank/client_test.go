package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recall-labs/recall-cli/internal/core/domain"
)

func rerankServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Config{URL: server.URL})
	require.NoError(t, err)
	return client
}

func docs(ids ...string) []domain.RerankDocument {
	out := make([]domain.RerankDocument, len(ids))
	for i, id := range ids {
		out[i] = domain.RerankDocument{ID: id, Text: "text " + id}
	}
	return out
}

func TestClient_Rerank(t *testing.T) {
	var gotReq rerankRequest
	client := rerankServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(rerankResponse{Results: []domain.RerankResult{ //nolint:errcheck
			{ID: "b", Relevance: 0.9, Index: 1},
			{ID: "a", Relevance: 0.2, Index: 0},
		}})
	})

	results, err := client.Rerank(context.Background(), "deploy status", docs("a", "b"), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].ID)
	assert.Equal(t, 0.9, results[0].Relevance)
	assert.Equal(t, "deploy status", gotReq.Query)
	assert.Equal(t, 2, gotReq.TopN)
}

func TestClient_NoDocumentsNoCall(t *testing.T) {
	var calls atomic.Int32
	client := rerankServer(t, func(http.ResponseWriter, *http.Request) { calls.Add(1) })

	results, err := client.Rerank(context.Background(), "query", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, int32(0), calls.Load())
}

func TestClient_SingleDocumentNoCall(t *testing.T) {
	var calls atomic.Int32
	client := rerankServer(t, func(http.ResponseWriter, *http.Request) { calls.Add(1) })

	results, err := client.Rerank(context.Background(), "query", docs("only"), 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "only", results[0].ID)
	assert.Equal(t, 1.0, results[0].Relevance)
	assert.Equal(t, int32(0), calls.Load())
}

func TestClient_EmptyQueryKeepsOrder(t *testing.T) {
	var calls atomic.Int32
	client := rerankServer(t, func(http.ResponseWriter, *http.Request) { calls.Add(1) })

	results, err := client.Rerank(context.Background(), "   ", docs("a", "b"), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, int32(0), calls.Load())
}

func TestClient_FailureDegradesToIncomingOrder(t *testing.T) {
	client := rerankServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	results, err := client.Rerank(context.Background(), "query", docs("a", "b", "c"), 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	// Synthetic descending scores preserve the incoming order.
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Relevance, 1e-9)
	assert.Equal(t, "b", results[1].ID)
	assert.InDelta(t, 1.0-1.0/3, results[1].Relevance, 1e-9)
	assert.Equal(t, "c", results[2].ID)
	assert.InDelta(t, 1.0-2.0/3, results[2].Relevance, 1e-9)
}

func TestClient_MalformedResponseDegrades(t *testing.T) {
	client := rerankServer(t, func(w http.ResponseWriter, _ *http.Request) {
		// References an id that was never submitted.
		json.NewEncoder(w).Encode(rerankResponse{Results: []domain.RerankResult{ //nolint:errcheck
			{ID: "stranger", Relevance: 0.9},
		}})
	})

	results, err := client.Rerank(context.Background(), "query", docs("a", "b"), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
}

func TestClient_RetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	client := rerankServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(rerankResponse{Results: []domain.RerankResult{ //nolint:errcheck
			{ID: "a", Relevance: 0.8},
			{ID: "b", Relevance: 0.4},
		}})
	})

	results, err := client.Rerank(context.Background(), "query", docs("a", "b"), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_TopNClamp(t *testing.T) {
	client := rerankServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		// topN larger than the candidate set is clamped client-side.
		assert.Equal(t, 2, req.TopN)
		json.NewEncoder(w).Encode(rerankResponse{Results: []domain.RerankResult{ //nolint:errcheck
			{ID: "a", Relevance: 0.8},
			{ID: "b", Relevance: 0.4},
		}})
	})

	results, err := client.Rerank(context.Background(), "query", docs("a", "b"), 99)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}
