package domain

// MatchType records which retrieval channel(s) surfaced a result.
type MatchType string

// Match provenance values.
const (
	MatchVector MatchType = "vector"
	MatchFTS    MatchType = "fts"
	MatchBoth   MatchType = "both"
)

// SearchResult is an ephemeral, query-relative view of a document.
// Score is never persisted.
type SearchResult struct {
	Document

	// Score is the relevance score relative to the current query.
	Score float64

	// Match tags the retrieval channel(s) that produced this result.
	// Empty for results from a single-channel search (e.g. substring).
	Match MatchType
}

// ChannelFilter restricts one source to a subset of its sub-partitions.
// Opt-out semantics: a nil *ChannelFilter means no configuration and
// includes everything; a non-empty Allowed set includes only those
// channels; an explicitly empty Allowed set excludes the source entirely.
type ChannelFilter struct {
	// Source is the source type the filter applies to.
	Source SourceType

	// Allowed lists the channel IDs to include. Empty excludes Source.
	Allowed []string
}

// ExcludesSource reports whether the filter removes the source entirely.
func (f *ChannelFilter) ExcludesSource() bool {
	return f != nil && len(f.Allowed) == 0
}

// Matches reports whether a document passes the filter.
func (f *ChannelFilter) Matches(doc *Document) bool {
	if f == nil || doc.Source != f.Source {
		return true
	}
	for _, id := range f.Allowed {
		if doc.ChannelID == id {
			return true
		}
	}
	return false
}

// SearchFilter narrows a store-level search.
type SearchFilter struct {
	// Source restricts results to one source type. Empty matches all.
	Source SourceType

	// WorkspaceID restricts results to one workspace. Empty matches all.
	WorkspaceID string

	// Limit caps the number of results. Values <= 0 use a store default.
	Limit int

	// MinScore drops vector results scoring below the threshold.
	// Ignored by lexical search.
	MinScore float64

	// Channels optionally restricts one source to a channel subset.
	Channels *ChannelFilter
}

// SearchOptions configures a pipeline-level search.
type SearchOptions struct {
	// Limit is the maximum number of final results (default 5).
	Limit int

	// Source restricts the search to one source type.
	Source SourceType

	// WorkspaceID restricts the search to one workspace.
	WorkspaceID string

	// VectorWeight scales the vector channel's RRF contribution (default 1.0).
	VectorWeight float64

	// FTSWeight scales the lexical channel's RRF contribution (default 1.0).
	FTSWeight float64

	// Channels optionally restricts one source to a channel subset.
	Channels *ChannelFilter
}

// RerankDocument is the unit submitted to the reranking service.
type RerankDocument struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// RerankResult is a relevance judgement returned by the reranker.
type RerankResult struct {
	ID        string  `json:"id"`
	Relevance float64 `json:"relevanceScore"`
	Index     int     `json:"index"`
}
