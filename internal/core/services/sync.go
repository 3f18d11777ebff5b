package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/recall-labs/recall-cli/internal/core/domain"
	"github.com/recall-labs/recall-cli/internal/core/ports/driven"
	"github.com/recall-labs/recall-cli/internal/core/ports/driving"
	"github.com/recall-labs/recall-cli/internal/logger"
)

const (
	// defaultFetchLimit bounds items per connector call.
	defaultFetchLimit = 200

	// maxConcurrentPartitions bounds parallel partition syncs per source.
	maxConcurrentPartitions = 4
)

// Ensure SyncOrchestrator implements the interface.
var _ driving.SyncOrchestrator = (*SyncOrchestrator)(nil)

// SyncOrchestrator coordinates incremental synchronisation. Connectors
// are resolved once at construction into a registry map; there is no
// dispatch-by-string at call time. Cursor advance is strictly tied to a
// fully successful partition batch, guaranteeing at-least-once
// redelivery after any failure.
type SyncOrchestrator struct {
	store      driven.DocumentStore
	embedder   driven.EmbeddingService
	connectors map[domain.SourceType]driven.Connector
	prep       *TextPreprocessor
	channels   *domain.ChannelFilter
	fetchLimit int

	mu      sync.Mutex
	running map[domain.SourceType]bool
}

// NewSyncOrchestrator creates a sync orchestrator over the given
// connectors.
func NewSyncOrchestrator(store driven.DocumentStore, embedder driven.EmbeddingService, connectors []driven.Connector) *SyncOrchestrator {
	registry := make(map[domain.SourceType]driven.Connector, len(connectors))
	for _, c := range connectors {
		registry[c.Source()] = c
	}
	return &SyncOrchestrator{
		store:      store,
		embedder:   embedder,
		connectors: registry,
		prep:       NewTextPreprocessor(),
		fetchLimit: defaultFetchLimit,
		running:    make(map[domain.SourceType]bool),
	}
}

// SetChannelFilter restricts one source's partitions during sync.
// The same filter should be passed to search options so retrieval and
// ingestion agree on scope.
func (o *SyncOrchestrator) SetChannelFilter(f *domain.ChannelFilter) {
	o.channels = f
}

// Sync pulls new items for one source.
func (o *SyncOrchestrator) Sync(ctx context.Context, source domain.SourceType) (*domain.SyncResult, error) {
	conn, ok := o.connectors[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedSource, source)
	}

	if !o.tryStart(source) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSyncInProgress, source)
	}
	defer o.finish(source)

	status, err := conn.ConnectionStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("connection status for %s: %w", source, err)
	}
	if !status.Connected {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotConnected, source)
	}

	partitions, err := conn.Partitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list partitions for %s: %w", source, err)
	}
	partitions = o.filterPartitions(source, partitions)

	logger.Info("Syncing %s: %d partitions", source, len(partitions))

	result := &domain.SyncResult{
		RunID:  uuid.NewString(),
		Source: source,
	}
	var resultMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPartitions)
	for _, part := range partitions {
		g.Go(func() error {
			synced, cursor, err := o.syncPartition(gctx, conn, source, status.WorkspaceID, part)

			resultMu.Lock()
			defer resultMu.Unlock()
			if err != nil {
				// Partition failures are isolated: collected, not raised.
				logger.Warn("Partition %s/%s failed: %v", source, part.ID, err)
				result.ItemsFailed++
				result.Errors = append(result.Errors, domain.SyncError{
					PartitionID: part.ID,
					Message:     err.Error(),
				})
				return nil
			}
			result.ItemsSynced += synced
			if cursor > result.Cursor {
				result.Cursor = cursor
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err // only context cancellation reaches here
	}

	logger.Info("Sync %s complete: %d synced, %d failed", source, result.ItemsSynced, result.ItemsFailed)
	return result, nil
}

// syncPartition runs the fetch -> filter -> embed -> upsert -> advance
// sequence for one partition. The cursor is advanced only after the
// whole batch has been embedded and stored.
func (o *SyncOrchestrator) syncPartition(
	ctx context.Context,
	conn driven.Connector,
	source domain.SourceType,
	workspaceID string,
	part domain.Partition,
) (int, string, error) {
	var since string
	cursor, err := o.store.GetSyncCursor(ctx, source, workspaceID, part.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return 0, "", fmt.Errorf("get cursor: %w", err)
	}
	if cursor != nil {
		since = cursor.Value
	}

	page, err := conn.FetchSince(ctx, part.ID, since, o.fetchLimit)
	if err != nil {
		return 0, "", fmt.Errorf("fetch since %q: %w", since, err)
	}

	items := o.embeddable(page.Items)
	logger.Debug("Partition %s/%s: fetched %d, embeddable %d", source, part.ID, len(page.Items), len(items))

	written := 0
	if len(items) > 0 {
		texts := make([]string, len(items))
		for i := range items {
			texts[i] = o.prep.Preprocess(items[i].Content)
		}

		var vectors [][]float32
		if o.embedder != nil {
			vectors, err = o.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				// Batch legitimately fails; the unchanged cursor re-fetches
				// the same items on the next cycle.
				return 0, "", fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
			}
			if len(vectors) != len(items) {
				return 0, "", fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbeddingUnavailable, len(vectors), len(items))
			}
		}

		// Without an embedder, documents are stored lexical-only.
		batch := make([]domain.EmbeddedDocument, len(items))
		for i := range items {
			batch[i] = domain.EmbeddedDocument{Document: items[i]}
			if vectors != nil {
				batch[i].Embedding = vectors[i]
			}
		}

		written, err = o.store.Upsert(ctx, batch)
		if err != nil {
			return 0, "", fmt.Errorf("upsert: %w", err)
		}
	}

	if page.NextCursor != "" && page.NextCursor != since {
		err := o.store.SetSyncCursor(ctx, domain.SyncCursor{
			Source:      source,
			WorkspaceID: workspaceID,
			PartitionID: part.ID,
			Value:       page.NextCursor,
			LastSync:    time.Now().UTC(),
		})
		if err != nil {
			return written, "", fmt.Errorf("advance cursor: %w", err)
		}
		return written, page.NextCursor, nil
	}
	return written, since, nil
}

// embeddable drops items that fail validation (empty content above all).
func (o *SyncOrchestrator) embeddable(items []domain.Document) []domain.Document {
	kept := items[:0:0]
	for _, item := range items {
		if err := item.Validate(); err != nil {
			logger.Debug("Skipping %s: %v", item.ID, err)
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

// filterPartitions applies the channel allow-list to a source's
// partitions. No configuration includes everything; an explicitly empty
// allow-set excludes the source.
func (o *SyncOrchestrator) filterPartitions(source domain.SourceType, partitions []domain.Partition) []domain.Partition {
	f := o.channels
	if f == nil || f.Source != source {
		return partitions
	}
	if f.ExcludesSource() {
		return nil
	}
	allowed := make(map[string]bool, len(f.Allowed))
	for _, id := range f.Allowed {
		allowed[id] = true
	}
	kept := partitions[:0:0]
	for _, p := range partitions {
		if allowed[p.ID] {
			kept = append(kept, p)
		}
	}
	return kept
}

// SyncAll syncs every registered source. Failures are joined into one
// error after all sources have run.
func (o *SyncOrchestrator) SyncAll(ctx context.Context) ([]domain.SyncResult, error) {
	sources := make([]domain.SourceType, 0, len(o.connectors))
	for source := range o.connectors {
		sources = append(sources, source)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	var results []domain.SyncResult
	var errs []error
	for _, source := range sources {
		result, err := o.Sync(ctx, source)
		if err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", source, err))
			continue
		}
		results = append(results, *result)
	}
	return results, errors.Join(errs...)
}

// Status reports per-source last-sync time and document count.
func (o *SyncOrchestrator) Status(ctx context.Context) ([]domain.SyncStatus, error) {
	status, err := o.store.SyncStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync status: %w", err)
	}
	return status, nil
}

// ResetCursor clears stored cursors for a source, forcing a full resync.
func (o *SyncOrchestrator) ResetCursor(ctx context.Context, source domain.SourceType, workspaceID string) error {
	n, err := o.store.ResetSyncCursors(ctx, source, workspaceID)
	if err != nil {
		return fmt.Errorf("reset cursors: %w", err)
	}
	logger.Info("Cleared %d cursor(s) for %s", n, source)
	return nil
}

// DeleteSource wipes a source's documents and embeddings.
func (o *SyncOrchestrator) DeleteSource(ctx context.Context, source domain.SourceType, workspaceID string) (int, error) {
	n, err := o.store.DeleteBySource(ctx, source, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("delete by source: %w", err)
	}
	logger.Info("Deleted %d document(s) from %s", n, source)
	return n, nil
}

func (o *SyncOrchestrator) tryStart(source domain.SourceType) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running[source] {
		return false
	}
	o.running[source] = true
	return true
}

func (o *SyncOrchestrator) finish(source domain.SourceType) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, source)
}
