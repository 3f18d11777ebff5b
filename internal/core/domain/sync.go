package domain

import "time"

// SyncCursor marks incremental-sync progress for one source partition.
// The cursor value is opaque and source-defined (e.g. a Slack message
// timestamp). Cursors only move forward; a manual reset is the only way
// to force a full resync.
type SyncCursor struct {
	Source      SourceType
	WorkspaceID string

	// PartitionID is the optional sub-partition (e.g. channel ID).
	// Empty for sources synced as a single partition.
	PartitionID string

	// Value is the opaque continuation token.
	Value string

	// LastSync is when the cursor was last advanced.
	LastSync time.Time
}

// Partition is a sync unit within a source (e.g. a Slack channel).
type Partition struct {
	ID   string
	Name string
}

// ConnectionStatus describes a connector's readiness to sync.
type ConnectionStatus struct {
	Connected   bool
	WorkspaceID string
}

// FetchPage is one bounded batch of items from a connector.
type FetchPage struct {
	// Items are documents strictly newer than the requested cursor.
	Items []Document

	// NextCursor is the continuation token covering Items.
	// Empty when the connector returned nothing new.
	NextCursor string
}

// SyncError records one isolated failure during a sync run.
type SyncError struct {
	PartitionID string
	ItemID      string
	Message     string
}

// SyncResult summarises a sync run for one source. Partial failures are
// reported here rather than raised, so callers can decide whether to
// alert or retry later.
type SyncResult struct {
	// RunID uniquely identifies the sync run.
	RunID string

	Source      SourceType
	ItemsSynced int
	ItemsFailed int
	Errors      []SyncError

	// Cursor is the newest cursor written during the run, if any.
	Cursor string
}

// SyncStatus is the per-source observability record.
type SyncStatus struct {
	Source        SourceType
	DocumentCount int
	LastSync      time.Time
}

// StoreStats aggregates document counts for observability.
type StoreStats struct {
	TotalDocuments  int
	TotalEmbeddings int
	BySource        map[SourceType]int
	ByWorkspace     map[string]int
}
