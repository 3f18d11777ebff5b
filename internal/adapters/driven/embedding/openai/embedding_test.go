package openai

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

func embeddingServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newTestService(t *testing.T, baseURL string, cfg Config) *EmbeddingService {
	t.Helper()
	cfg.APIKey = "test-key"
	cfg.BaseURL = baseURL
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = -1 // no pacing in tests
	}
	svc, err := NewEmbeddingService(cfg)
	require.NoError(t, err)
	return svc
}

func writeEmbeddings(w http.ResponseWriter, vectors ...[]float64) {
	data := make([]map[string]any, len(vectors))
	for i, v := range vectors {
		data[i] = map[string]any{"embedding": v, "index": i}
	}
	json.NewEncoder(w).Encode(map[string]any{"data": data}) //nolint:errcheck
}

func TestNewEmbeddingService(t *testing.T) {
	t.Run("requires api key", func(t *testing.T) {
		_, err := NewEmbeddingService(Config{})
		assert.Error(t, err)
	})

	t.Run("model dimensions", func(t *testing.T) {
		svc, err := NewEmbeddingService(Config{APIKey: "k", Model: "text-embedding-3-large"})
		require.NoError(t, err)
		assert.Equal(t, 3072, svc.Dimensions())
	})

	t.Run("default model", func(t *testing.T) {
		svc, err := NewEmbeddingService(Config{APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, DefaultModel, svc.ModelName())
		assert.Equal(t, 1536, svc.Dimensions())
	})
}

func TestEmbeddingService_Embed(t *testing.T) {
	var gotAuth string
	server := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeEmbeddings(w, []float64{0.1, 0.2, 0.3})
	})
	svc := newTestService(t, server.URL, Config{})

	got, err := svc.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestEmbeddingService_EmbedBatchOrdersByIndex(t *testing.T) {
	server := embeddingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		// Responses may arrive out of order; the index field is the
		// contract.
		resp := map[string]any{"data": []map[string]any{
			{"embedding": []float64{2}, "index": 1},
			{"embedding": []float64{1}, "index": 0},
		}}
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	})
	svc := newTestService(t, server.URL, Config{})

	got, err := svc.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []float32{1}, got[0])
	assert.Equal(t, []float32{2}, got[1])
}

func TestEmbeddingService_EmptyBatch(t *testing.T) {
	svc := newTestService(t, "http://unused", Config{})
	got, err := svc.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEmbeddingService_Budgets(t *testing.T) {
	var calls atomic.Int32
	server := embeddingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeEmbeddings(w, []float64{0.1})
	})

	t.Run("batch size", func(t *testing.T) {
		svc := newTestService(t, server.URL, Config{MaxBatchSize: 2})
		_, err := svc.EmbedBatch(context.Background(), []string{"a", "b", "c"})
		assert.ErrorIs(t, err, domain.ErrBatchBudget)
	})

	t.Run("tokens per text", func(t *testing.T) {
		svc := newTestService(t, server.URL, Config{MaxTokensPerText: 2})
		_, err := svc.EmbedBatch(context.Background(), []string{"one two three four five six"})
		assert.ErrorIs(t, err, domain.ErrTokenBudget)
	})

	t.Run("batch tokens", func(t *testing.T) {
		svc := newTestService(t, server.URL, Config{MaxBatchTokens: 3})
		_, err := svc.EmbedBatch(context.Background(), []string{"one two three", "four five six"})
		assert.ErrorIs(t, err, domain.ErrBatchBudget)
	})

	// All three rejections happened before any request was sent.
	assert.Equal(t, int32(0), calls.Load())
}

func TestEmbeddingService_RetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := embeddingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeEmbeddings(w, []float64{0.5})
	})
	svc := newTestService(t, server.URL, Config{})

	got, err := svc.Embed(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5}, got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbeddingService_APIErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := embeddingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"error": map[string]any{"message": "invalid api key", "type": "auth"},
		})
	})
	svc := newTestService(t, server.URL, Config{})

	_, err := svc.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
	// Auth failures do not retry.
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbeddingService_CountTokens(t *testing.T) {
	svc := newTestService(t, "http://unused", Config{})
	assert.Greater(t, svc.CountTokens("hello world"), 0)
	assert.Zero(t, svc.CountTokens(""))
}
