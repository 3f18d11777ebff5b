package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/recall-labs/recall-cli/internal/core/domain"
	"github.com/recall-labs/recall-cli/internal/core/ports/driven"
	"github.com/recall-labs/recall-cli/internal/logger"
)

// rrfK dampens domination by any single very-high-rank hit.
const rrfK = 60

// shortQueryLength is the longest query routed straight to substring
// search; full-text engines discard very short terms as noise.
const shortQueryLength = 3

// minOverfetch is the floor on per-channel candidate counts, giving
// fusion enough material even for small limits.
const minOverfetch = 20

// Ensure HybridSearcher implements the backend port.
var _ driven.SearchBackend = (*HybridSearcher)(nil)

// HybridSearcher runs vector and lexical search concurrently against
// the local document store and fuses the two ranked lists with
// Reciprocal Rank Fusion. When the embedding service is unavailable it
// degrades to lexical-only retrieval; that is not an error to the
// caller.
type HybridSearcher struct {
	store    driven.DocumentStore
	embedder driven.EmbeddingService
	prep     *TextPreprocessor
}

// NewHybridSearcher creates a hybrid searcher. The embedder may be nil,
// in which case every search is lexical-only.
func NewHybridSearcher(store driven.DocumentStore, embedder driven.EmbeddingService) *HybridSearcher {
	return &HybridSearcher{
		store:    store,
		embedder: embedder,
		prep:     NewTextPreprocessor(),
	}
}

// Retrieve implements driven.SearchBackend.
func (h *HybridSearcher) Retrieve(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	return h.Search(ctx, query, opts)
}

// Search runs the hybrid retrieval for one query.
func (h *HybridSearcher) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		logger.Debug("Empty query, skipping retrieval")
		return []domain.SearchResult{}, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	vectorWeight := opts.VectorWeight
	if vectorWeight == 0 {
		vectorWeight = 1.0
	}
	ftsWeight := opts.FTSWeight
	if ftsWeight == 0 {
		ftsWeight = 1.0
	}

	// Over-fetch per channel to give fusion enough material.
	overfetch := limit * 2
	if overfetch < minOverfetch {
		overfetch = minOverfetch
	}
	filter := domain.SearchFilter{
		Source:      opts.Source,
		WorkspaceID: opts.WorkspaceID,
		Limit:       overfetch,
		Channels:    opts.Channels,
	}

	embedding := h.queryEmbedding(ctx, query)
	if embedding == nil {
		return h.lexicalOnly(ctx, query, filter, limit)
	}

	// Vector and lexical channels run concurrently to bound latency.
	var vectorResults, lexicalResults []domain.SearchResult
	var vectorErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorResults, vectorErr = h.store.VectorSearch(ctx, embedding, filter)
	}()
	go func() {
		defer wg.Done()
		lexicalResults = h.lexicalSearch(ctx, query, filter)
	}()
	wg.Wait()

	if vectorErr != nil {
		logger.Warn("Vector search failed, using lexical results only: %v", vectorErr)
		return tagAll(truncate(lexicalResults, limit), domain.MatchFTS), nil
	}

	logger.Debug("Hybrid search: vector=%d lexical=%d", len(vectorResults), len(lexicalResults))

	fused := fuseRRF(vectorResults, lexicalResults, vectorWeight, ftsWeight, rrfK)
	return truncate(fused, limit), nil
}

// queryEmbedding returns the query vector, or nil when the embedding
// path is unavailable and the search should degrade to lexical-only.
func (h *HybridSearcher) queryEmbedding(ctx context.Context, query string) []float32 {
	if h.embedder == nil {
		logger.Debug("No embedding service configured, lexical-only search")
		return nil
	}

	embedding, err := h.embedder.Embed(ctx, h.prep.Preprocess(query))
	if err != nil {
		logger.Warn("Query embedding failed, falling back to lexical-only: %v", err)
		return nil
	}
	if len(embedding) == 0 {
		logger.Warn("Empty query embedding, falling back to lexical-only")
		return nil
	}
	return embedding
}

// lexicalOnly is the degraded path when no query embedding is available.
func (h *HybridSearcher) lexicalOnly(ctx context.Context, query string, filter domain.SearchFilter, limit int) ([]domain.SearchResult, error) {
	results := h.lexicalSearch(ctx, query, filter)
	return tagAll(truncate(results, limit), domain.MatchFTS), nil
}

// lexicalSearch runs the lexical channel. Short queries go straight to
// substring search; full-text queries that error or match nothing fall
// back to substring search as well. Errors never propagate: a failed
// lexical channel is an empty list.
func (h *HybridSearcher) lexicalSearch(ctx context.Context, query string, filter domain.SearchFilter) []domain.SearchResult {
	if utf8.RuneCountInString(query) <= shortQueryLength {
		logger.Debug("Short query %q, using substring search", query)
		return h.substringSearch(ctx, query, filter)
	}

	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return h.substringSearch(ctx, query, filter)
	}

	results, err := h.store.FTSSearch(ctx, sanitized, filter)
	if err != nil {
		logger.Warn("FTS query rejected: %v", err)
		results = nil
	}
	if len(results) == 0 {
		logger.Debug("FTS returned no hits for %q, falling back to substring", query)
		return h.substringSearch(ctx, query, filter)
	}
	return results
}

func (h *HybridSearcher) substringSearch(ctx context.Context, query string, filter domain.SearchFilter) []domain.SearchResult {
	results, err := h.store.SubstringSearch(ctx, query, filter)
	if err != nil {
		logger.Warn("Substring search failed: %v", err)
		return nil
	}
	return results
}

// sanitizeFTSQuery tokenizes on whitespace, strips embedded quotes and
// quotes each token independently, guarding against operator injection
// in the full-text engine.
func sanitizeFTSQuery(query string) string {
	fields := strings.Fields(strings.ReplaceAll(query, `"`, ""))
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + f + `"`
	}
	return strings.Join(quoted, " ")
}

// fusedCandidate accumulates RRF contributions for one document.
type fusedCandidate struct {
	result   domain.SearchResult
	score    float64
	inVector bool
	inFTS    bool
}

// fuseRRF merges two ranked lists with Reciprocal Rank Fusion. Each
// list contributes weight/(k+rank+1) per document, rank starting at 0.
// Documents in both lists accumulate both contributions and are tagged
// MatchBoth. Ties break on first-seen insertion order, keeping the
// output deterministic across repeated runs on identical input.
func fuseRRF(vector, fts []domain.SearchResult, vectorWeight, ftsWeight float64, k int) []domain.SearchResult {
	order := make([]string, 0, len(vector)+len(fts))
	byID := make(map[string]*fusedCandidate, len(vector)+len(fts))

	accumulate := func(list []domain.SearchResult, weight float64, vectorChannel bool) {
		for rank, r := range list {
			c, ok := byID[r.ID]
			if !ok {
				c = &fusedCandidate{result: r}
				byID[r.ID] = c
				order = append(order, r.ID)
			}
			c.score += weight / float64(k+rank+1)
			if vectorChannel {
				c.inVector = true
			} else {
				c.inFTS = true
			}
		}
	}
	accumulate(vector, vectorWeight, true)
	accumulate(fts, ftsWeight, false)

	out := make([]domain.SearchResult, 0, len(order))
	for _, id := range order {
		c := byID[id]
		r := c.result
		r.Score = c.score
		switch {
		case c.inVector && c.inFTS:
			r.Match = domain.MatchBoth
		case c.inVector:
			r.Match = domain.MatchVector
		default:
			r.Match = domain.MatchFTS
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func tagAll(results []domain.SearchResult, match domain.MatchType) []domain.SearchResult {
	for i := range results {
		results[i].Match = match
	}
	return results
}

func truncate(results []domain.SearchResult, limit int) []domain.SearchResult {
	if len(results) > limit {
		return results[:limit]
	}
	return results
}
