// Package postgres provides the remote SearchBackend over a shared
// Postgres database with pgvector and tsvector columns.
//
// Unlike the local store, ranking happens server-side: semantic
// candidates come back ordered by cosine distance and keyword
// candidates by ts_rank. The two lists are fused with the same
// reciprocal-rank scheme the local searcher uses, but the displayed
// score stays the semantic similarity, which reads naturally as a
// percentage. Keyword-only hits have no similarity to show and carry a
// fixed placeholder instead.
package postgres

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recall-labs/recall-cli/internal/core/domain"
	"github.com/recall-labs/recall-cli/internal/core/ports/driven"
	"github.com/recall-labs/recall-cli/internal/logger"
)

const (
	// rrfK matches the local fusion constant.
	rrfK = 60

	// keywordOnlyScore is displayed for hits the semantic channel never
	// saw. Low enough to read as a weak match, high enough not to look
	// like noise.
	keywordOnlyScore = 0.3

	// shortQueryLength mirrors the local searcher's substring cutoff.
	shortQueryLength = 3
)

var _ driven.SearchBackend = (*Backend)(nil)

// Backend is the remote search backend over a pgx connection pool.
type Backend struct {
	pool     *pgxpool.Pool
	embedder driven.EmbeddingService
}

// NewBackend creates a remote backend. The embedder may be nil, in
// which case every search is keyword-only.
func NewBackend(pool *pgxpool.Pool, embedder driven.EmbeddingService) *Backend {
	return &Backend{pool: pool, embedder: embedder}
}

// Connect opens a pooled connection to the remote database and checks
// it is reachable.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// Retrieve implements driven.SearchBackend.
func (b *Backend) Retrieve(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.SearchResult{}, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	overfetch := limit * 2
	if overfetch < 20 {
		overfetch = 20
	}

	semantic := b.semanticSearch(ctx, query, opts, overfetch)
	keyword, err := b.keywordSearch(ctx, query, opts, overfetch)
	if err != nil {
		if semantic == nil {
			return nil, err
		}
		logger.Warn("Remote keyword search failed, semantic only: %v", err)
		keyword = nil
	}

	fused := mergeWithRRF(semantic, keyword, rrfK)
	return selectResults(fused, opts.Channels, limit), nil
}

// semanticSearch returns candidates ordered by cosine similarity, or
// nil when the embedding path is unavailable.
func (b *Backend) semanticSearch(ctx context.Context, query string, opts domain.SearchOptions, limit int) []domain.SearchResult {
	if b.embedder == nil {
		return nil
	}
	embedding, err := b.embedder.Embed(ctx, query)
	if err != nil || len(embedding) == 0 {
		logger.Warn("Query embedding failed, remote search degrades to keyword: %v", err)
		return nil
	}

	sql := `
		SELECT id, source, workspace_id, channel_id, title, content, url, timestamp, content_hash,
		       1 - (embedding <=> $1::vector) AS score
		FROM documents
	`
	args := []any{vectorLiteral(embedding)}
	where, args := filterClauses(opts, args)
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += fmt.Sprintf(" ORDER BY embedding <=> $1::vector LIMIT %d", limit)

	rows, err := b.pool.Query(ctx, sql, args...)
	if err != nil {
		logger.Warn("Remote semantic search failed: %v", err)
		return nil
	}
	results, err := scanResults(rows, domain.MatchVector)
	if err != nil {
		logger.Warn("Remote semantic scan failed: %v", err)
		return nil
	}
	return results
}

// keywordSearch runs the lexical channel: websearch syntax against the
// tsvector column, with an ILIKE fallback for short queries.
func (b *Backend) keywordSearch(ctx context.Context, query string, opts domain.SearchOptions, limit int) ([]domain.SearchResult, error) {
	var sql string
	var args []any
	if utf8.RuneCountInString(query) <= shortQueryLength {
		sql = `
			SELECT id, source, workspace_id, channel_id, title, content, url, timestamp, content_hash,
			       0.0 AS score
			FROM documents
		`
		args = []any{"%" + query + "%"}
		where, withFilters := filterClauses(opts, args)
		where = append([]string{"(content ILIKE $1 OR title ILIKE $1)"}, where...)
		args = withFilters
		sql += " WHERE " + strings.Join(where, " AND ")
		sql += fmt.Sprintf(" ORDER BY timestamp DESC NULLS LAST LIMIT %d", limit)
	} else {
		sql = `
			SELECT id, source, workspace_id, channel_id, title, content, url, timestamp, content_hash,
			       ts_rank(tsv, websearch_to_tsquery('english', $1)) AS score
			FROM documents
		`
		args = []any{query}
		where, withFilters := filterClauses(opts, args)
		where = append([]string{"tsv @@ websearch_to_tsquery('english', $1)"}, where...)
		args = withFilters
		sql += " WHERE " + strings.Join(where, " AND ")
		sql += fmt.Sprintf(" ORDER BY score DESC LIMIT %d", limit)
	}

	rows, err := b.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("remote keyword search: %w", err)
	}
	results, err := scanResults(rows, domain.MatchFTS)
	if err != nil {
		return nil, fmt.Errorf("remote keyword scan: %w", err)
	}
	return results, nil
}

// filterClauses appends source and workspace conditions, numbering
// placeholders after the ones already in args.
func filterClauses(opts domain.SearchOptions, args []any) ([]string, []any) {
	var where []string
	if opts.Source != "" {
		args = append(args, opts.Source)
		where = append(where, fmt.Sprintf("source = $%d", len(args)))
	}
	if opts.WorkspaceID != "" {
		args = append(args, opts.WorkspaceID)
		where = append(where, fmt.Sprintf("workspace_id = $%d", len(args)))
	}
	return where, args
}

func scanResults(rows pgx.Rows, match domain.MatchType) ([]domain.SearchResult, error) {
	defer rows.Close()

	var results []domain.SearchResult //nolint:prealloc // size unknown from query
	for rows.Next() {
		var r domain.SearchResult
		var ts *time.Time
		if err := rows.Scan(&r.ID, &r.Source, &r.WorkspaceID, &r.ChannelID,
			&r.Title, &r.Content, &r.URL, &ts, &r.ContentHash, &r.Score); err != nil {
			return nil, err
		}
		if ts != nil {
			r.Timestamp = *ts
		}
		r.Match = match
		results = append(results, r)
	}
	return results, rows.Err()
}

// mergeWithRRF orders the union of both lists by reciprocal-rank score
// but keeps the semantic similarity as the displayed score. Keyword-only
// hits display keywordOnlyScore. Match provenance is tagged the same way
// as the local fusion.
func mergeWithRRF(semantic, keyword []domain.SearchResult, k int) []domain.SearchResult {
	type candidate struct {
		result     domain.SearchResult
		rrf        float64
		inSemantic bool
		inKeyword  bool
	}

	order := make([]string, 0, len(semantic)+len(keyword))
	byID := make(map[string]*candidate, len(semantic)+len(keyword))

	for rank, r := range semantic {
		c := &candidate{result: r, inSemantic: true}
		c.rrf = 1.0 / float64(k+rank+1)
		byID[r.ID] = c
		order = append(order, r.ID)
	}
	for rank, r := range keyword {
		if c, ok := byID[r.ID]; ok {
			c.rrf += 1.0 / float64(k+rank+1)
			c.inKeyword = true
			continue
		}
		c := &candidate{result: r, inKeyword: true}
		c.result.Score = keywordOnlyScore
		c.rrf = 1.0 / float64(k+rank+1)
		byID[r.ID] = c
		order = append(order, r.ID)
	}

	out := make([]domain.SearchResult, 0, len(order))
	for _, id := range order {
		c := byID[id]
		r := c.result
		switch {
		case c.inSemantic && c.inKeyword:
			r.Match = domain.MatchBoth
		case c.inSemantic:
			r.Match = domain.MatchVector
		default:
			r.Match = domain.MatchFTS
		}
		out = append(out, r)
	}

	rrfOf := func(id string) float64 { return byID[id].rrf }
	sort.SliceStable(out, func(i, j int) bool {
		return rrfOf(out[i].ID) > rrfOf(out[j].ID)
	})
	return out
}

// selectResults filters the fused list down to the channel allow-list
// before truncating, so filtered-out hits do not use up result slots.
func selectResults(fused []domain.SearchResult, f *domain.ChannelFilter, limit int) []domain.SearchResult {
	return truncate(applyChannels(fused, f), limit)
}

// applyChannels drops results outside the channel allow-list.
func applyChannels(results []domain.SearchResult, f *domain.ChannelFilter) []domain.SearchResult {
	if f == nil {
		return results
	}
	kept := results[:0:0]
	for _, r := range results {
		if f.Matches(&r.Document) {
			kept = append(kept, r)
		}
	}
	return kept
}

func truncate(results []domain.SearchResult, limit int) []domain.SearchResult {
	if len(results) > limit {
		return results[:limit]
	}
	return results
}

// vectorLiteral formats an embedding as a pgvector input literal.
func vectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
