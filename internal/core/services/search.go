package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/recall-labs/recall-cli/internal/core/domain"
	"github.com/recall-labs/recall-cli/internal/core/ports/driven"
	"github.com/recall-labs/recall-cli/internal/core/ports/driving"
	"github.com/recall-labs/recall-cli/internal/logger"
)

// Pipeline constants.
const (
	// retrievalLimit is the candidate count fetched per channel before
	// fusion.
	retrievalLimit = 100

	// rerankDepth is how many fused candidates are submitted to the
	// reranker.
	rerankDepth = 30

	// rerankTextLimit caps the per-document text sent to the reranker.
	rerankTextLimit = 1000

	// defaultSearchLimit is the final result count when unspecified.
	defaultSearchLimit = 5
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// SearchService composes the full search pipeline: preprocess the
// query, retrieve fused candidates from the backend, rerank the top
// slice, apply the recency boost, sort and truncate. Every stage runs
// even when a prior optional stage degraded; only store-level failures
// surface as errors.
type SearchService struct {
	backend  driven.SearchBackend
	reranker driven.Reranker
	booster  *RecencyBooster
}

// NewSearchService creates the search pipeline. The reranker may be
// nil, in which case the fused order stands.
func NewSearchService(backend driven.SearchBackend, reranker driven.Reranker, booster *RecencyBooster) *SearchService {
	if booster == nil {
		booster = NewRecencyBooster(nil)
	}
	return &SearchService{
		backend:  backend,
		reranker: reranker,
		booster:  booster,
	}
}

// Search answers a ranked query.
func (s *SearchService) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	logger.Section("Search Execution")
	logger.Debug("Query: %q", query)

	query = normalizeQuery(query)
	if query == "" {
		logger.Debug("Empty query, returning no results")
		return []domain.SearchResult{}, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	retrievalOpts := opts
	retrievalOpts.Limit = retrievalLimit
	candidates, err := s.backend.Retrieve(ctx, query, retrievalOpts)
	if err != nil {
		return nil, fmt.Errorf("retrieve candidates: %w", err)
	}
	logger.Debug("Retrieved %d candidates", len(candidates))
	if len(candidates) == 0 {
		return []domain.SearchResult{}, nil
	}

	top := candidates
	if len(top) > rerankDepth {
		top = top[:rerankDepth]
	}

	reranked := s.applyRerank(ctx, query, top)
	boosted := s.booster.Apply(reranked)

	sort.SliceStable(boosted, func(i, j int) bool {
		return boosted[i].Score > boosted[j].Score
	})

	if len(boosted) > limit {
		boosted = boosted[:limit]
	}
	logger.Info("Final results: %d", len(boosted))
	return boosted, nil
}

// applyRerank replaces candidate scores with cross-encoder relevance
// scores. Reranking is an enhancement: any failure keeps the fused
// order and scores.
func (s *SearchService) applyRerank(ctx context.Context, query string, results []domain.SearchResult) []domain.SearchResult {
	if s.reranker == nil || len(results) == 0 {
		return results
	}

	docs := make([]domain.RerankDocument, len(results))
	for i := range results {
		docs[i] = domain.RerankDocument{
			ID:   results[i].ID,
			Text: rerankText(&results[i].Document),
		}
	}

	judged, err := s.reranker.Rerank(ctx, query, docs, len(docs))
	if err != nil {
		logger.Warn("Rerank failed, keeping fused order: %v", err)
		return results
	}

	scores := make(map[string]float64, len(judged))
	for _, j := range judged {
		scores[j.ID] = j.Relevance
	}

	out := make([]domain.SearchResult, len(results))
	copy(out, results)
	for i := range out {
		if sc, ok := scores[out[i].ID]; ok {
			out[i].Score = sc
		}
	}
	return out
}

// rerankText assembles the text submitted per document: title plus
// content, truncated to the reranker's useful window.
func rerankText(doc *domain.Document) string {
	text := strings.TrimSpace(doc.Title + " " + doc.Content)
	if len(text) > rerankTextLimit {
		text = text[:rerankTextLimit]
	}
	return text
}

// normalizeQuery trims and collapses internal whitespace.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
