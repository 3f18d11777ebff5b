package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// SourceType identifies the external system a document came from.
// The set is open: connectors may register additional types.
type SourceType string

// Built-in source types.
const (
	SourceSlack  SourceType = "slack"
	SourceNotion SourceType = "notion"
	SourceLinear SourceType = "linear"
	SourceGmail  SourceType = "gmail"
)

// Document is the canonical stored representation of a synced item.
// A document belongs to exactly one (source, workspace) partition.
type Document struct {
	// ID is globally unique and stable across re-syncs.
	// By convention it is source-qualified: "{source}:{workspace}:{nativeID}".
	ID string

	// Source identifies the producing system.
	Source SourceType

	// WorkspaceID partitions documents of different accounts/tenants
	// within the same source.
	WorkspaceID string

	// ChannelID is an optional sub-partition (e.g. a Slack channel).
	// Empty for sources without sub-partitions.
	ChannelID string

	// Content is the text body. Required: documents without content
	// are rejected at upsert.
	Content string

	// Title is optional display metadata.
	Title string

	// URL is the original location, if any.
	URL string

	// Timestamp is the item's creation time at the source.
	// The zero value means unknown.
	Timestamp time.Time

	// ContentHash is a derived digest of Content used for deduplication.
	// (Source, WorkspaceID, ContentHash) is unique in the store.
	ContentHash string
}

// EmbeddedDocument pairs a document with its dense vector.
// The store keeps exactly one embedding per document.
type EmbeddedDocument struct {
	Document

	// Embedding is the fixed-dimension dense vector for Content.
	Embedding []float32
}

// Validate checks the invariants required before a document may be stored.
func (d *Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: document id is required", ErrInvalidInput)
	}
	if d.Source == "" {
		return fmt.Errorf("%w: document source is required", ErrInvalidInput)
	}
	if d.WorkspaceID == "" {
		return fmt.Errorf("%w: document workspace id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("%w: document content is required", ErrEmptyContent)
	}
	return nil
}

// DocumentID builds the conventional source-qualified document ID.
func DocumentID(source SourceType, workspaceID, nativeID string) string {
	return fmt.Sprintf("%s:%s:%s", source, workspaceID, nativeID)
}

// ComputeContentHash returns the dedup digest for document content:
// the first 16 hex characters of the SHA-256 of the content.
func ComputeContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}
