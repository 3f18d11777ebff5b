package driven

import (
	"context"

	"github.com/recall-labs/recall-cli/internal/core/domain"
)

// DocumentStore persists documents, their embeddings and sync cursors.
// A single logical writer is assumed per store instance; implementations
// serialise mutation internally but make no point-in-time consistency
// promise to readers that interleave with a write.
//
// Every method other than Initialize returns domain.ErrNotInitialized
// when called before a successful Initialize.
type DocumentStore interface {
	// Initialize creates the schema if absent and loads existing data.
	// Idempotent. Fails closed on corruption: callers must not assume
	// partial recovery.
	Initialize(ctx context.Context) error

	// Upsert inserts or replaces documents with their embeddings and
	// returns the count written. (Source, WorkspaceID, ContentHash) is
	// unique: the same content under a new id is absorbed into the
	// existing row, last-write-wins on metadata. Documents with empty
	// content are rejected.
	Upsert(ctx context.Context, items []domain.EmbeddedDocument) (int, error)

	// VectorSearch scores every matching stored embedding against the
	// query vector (dot product; callers supply normalized vectors for
	// cosine semantics), filters by MinScore, sorts descending and
	// truncates to Limit.
	VectorSearch(ctx context.Context, vector []float32, f domain.SearchFilter) ([]domain.SearchResult, error)

	// FTSSearch runs a lexical match against the full-text index. The
	// returned score is only meaningful for relative ordering within
	// the lexical channel.
	FTSSearch(ctx context.Context, query string, f domain.SearchFilter) ([]domain.SearchResult, error)

	// SubstringSearch is the LIKE-style fallback used for short queries
	// that full-text engines would discard as noise.
	SubstringSearch(ctx context.Context, query string, f domain.SearchFilter) ([]domain.SearchResult, error)

	// GetSyncCursor reads the cursor for a source partition.
	// Returns domain.ErrNotFound when no cursor has been stored yet.
	GetSyncCursor(ctx context.Context, source domain.SourceType, workspaceID, partitionID string) (*domain.SyncCursor, error)

	// SetSyncCursor stores or replaces a cursor.
	SetSyncCursor(ctx context.Context, cursor domain.SyncCursor) error

	// ResetSyncCursors clears stored cursors for a source, forcing a
	// full resync. Empty workspaceID clears all workspaces.
	ResetSyncCursors(ctx context.Context, source domain.SourceType, workspaceID string) (int, error)

	// DeleteBySource removes a source's documents, cascading to
	// embeddings, and returns rows removed. Empty workspaceID removes
	// all workspaces.
	DeleteBySource(ctx context.Context, source domain.SourceType, workspaceID string) (int, error)

	// Stats returns aggregate counts by source and workspace.
	Stats(ctx context.Context) (*domain.StoreStats, error)

	// SyncStatus returns per-source document counts and last sync times.
	SyncStatus(ctx context.Context) ([]domain.SyncStatus, error)

	// Close flushes to durable storage and releases handles.
	Close() error
}
