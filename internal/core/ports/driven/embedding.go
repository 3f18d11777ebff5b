package driven

import (
	"context"

	"github.com/recall-labs/recall-cli/internal/core/domain"
)

// EmbeddingService generates dense vector embeddings from text.
// It is an external network service: implementations must bound retries
// and enforce their token/batch budgets before making a call.
//
// Implementations may include:
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Any OpenAI-compatible inference server
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	// Rejects inputs exceeding the per-call token budget.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	// Rejects batches exceeding the batch size or total token budget.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g. 1536).
	Dimensions() int
}

// Reranker reorders a candidate set by cross-encoder relevance.
// Reranking is strictly an enhancement: implementations degrade to the
// original order with synthetic descending scores instead of failing.
type Reranker interface {
	// Rerank scores documents against the query and returns them in
	// relevance order, truncated to topN (clamped to len(documents)).
	Rerank(ctx context.Context, query string, documents []domain.RerankDocument, topN int) ([]domain.RerankResult, error)
}
