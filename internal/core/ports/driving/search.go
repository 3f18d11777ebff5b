package driving

import (
	"context"

	"github.com/recall-labs/recall-cli/internal/core/domain"
)

// SearchService answers ranked queries over the indexed corpus.
// A search never fails for degraded external dependencies: it returns a
// best-effort, possibly empty, ranked list.
type SearchService interface {
	// Search runs the full pipeline: preprocess, hybrid retrieval,
	// rerank, recency boost, final sort, truncate to the limit.
	Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error)
}
