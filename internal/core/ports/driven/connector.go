package driven

import (
	"context"

	"github.com/recall-labs/recall-cli/internal/core/domain"
)

// Connector pulls items from one external source. Implementations own
// the provider API calls, authentication and pagination; the sync
// orchestrator only sees cursors, partitions and bounded pages.
type Connector interface {
	// Source returns the source type this connector serves.
	Source() domain.SourceType

	// ConnectionStatus reports whether the account is linked and which
	// workspace it belongs to.
	ConnectionStatus(ctx context.Context) (domain.ConnectionStatus, error)

	// Partitions lists the sync units of the source (e.g. channels).
	// Sources without sub-partitions return a single partition with an
	// empty ID.
	Partitions(ctx context.Context) ([]domain.Partition, error)

	// FetchSince returns up to limit items strictly newer than cursor
	// for one partition, with the continuation token covering them.
	// An empty cursor means "from the beginning".
	FetchSince(ctx context.Context, partitionID, cursor string, limit int) (*domain.FetchPage, error)
}

// SearchBackend retrieves ranked candidates for a preprocessed query.
// Two implementations exist: the local hybrid searcher over the embedded
// store, and the remote relational backend. Both honour the same fusion
// contract.
type SearchBackend interface {
	// Retrieve returns fused candidates for the query, best first.
	Retrieve(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error)
}
