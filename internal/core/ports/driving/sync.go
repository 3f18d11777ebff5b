package driving

import (
	"context"

	"github.com/recall-labs/recall-cli/internal/core/domain"
)

// SyncOrchestrator coordinates document synchronisation from sources
// and exposes the operational surface of the store.
type SyncOrchestrator interface {
	// Sync pulls new items for one source. Partial failures are
	// reported inside the result, not raised; the returned error covers
	// only fatal conditions (unknown source, store failure).
	Sync(ctx context.Context, source domain.SourceType) (*domain.SyncResult, error)

	// SyncAll syncs every registered source. One source's failure does
	// not abort the others.
	SyncAll(ctx context.Context) ([]domain.SyncResult, error)

	// Status returns per-source last-sync time and document count.
	Status(ctx context.Context) ([]domain.SyncStatus, error)

	// ResetCursor clears stored cursors for a source, forcing a full
	// resync on the next run.
	ResetCursor(ctx context.Context, source domain.SourceType, workspaceID string) error

	// DeleteSource wipes a source's documents (e.g. on account
	// disconnect) and returns rows removed.
	DeleteSource(ctx context.Context, source domain.SourceType, workspaceID string) (int, error)
}
