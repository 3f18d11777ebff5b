// Package memory provides an in-memory DocumentStore for tests and
// ephemeral runs. Search semantics mirror the SQLite store closely
// enough for pipeline-level tests: dot-product vector scoring, word
// matching for the lexical channel and substring matching for the
// fallback.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/recall-labs/recall-cli/internal/core/domain"
	"github.com/recall-labs/recall-cli/internal/core/ports/driven"
)

const defaultSearchLimit = 10

var _ driven.DocumentStore = (*DocStore)(nil)

type storedDoc struct {
	doc       domain.Document
	embedding []float32
}

// DocStore is an in-memory implementation of driven.DocumentStore.
type DocStore struct {
	mu          sync.RWMutex
	initialized bool
	docs        map[string]*storedDoc
	byHash      map[string]string // source/workspace/hash -> id
	cursors     map[string]domain.SyncCursor
}

// NewDocStore creates an empty in-memory document store.
func NewDocStore() *DocStore {
	return &DocStore{}
}

// Initialize prepares the store. Idempotent.
func (s *DocStore) Initialize(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	s.docs = make(map[string]*storedDoc)
	s.byHash = make(map[string]string)
	s.cursors = make(map[string]domain.SyncCursor)
	s.initialized = true
	return nil
}

func (s *DocStore) ready() error {
	if !s.initialized {
		return domain.ErrNotInitialized
	}
	return nil
}

func hashKey(source domain.SourceType, workspaceID, contentHash string) string {
	return string(source) + "/" + workspaceID + "/" + contentHash
}

func cursorKey(source domain.SourceType, workspaceID, partitionID string) string {
	return string(source) + "/" + workspaceID + "/" + partitionID
}

// Upsert inserts or replaces documents, deduplicating on
// (source, workspace, content hash) like the SQLite store.
func (s *DocStore) Upsert(_ context.Context, items []domain.EmbeddedDocument) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return 0, err
	}

	written := 0
	for i := range items {
		doc := items[i].Document
		if err := doc.Validate(); err != nil {
			return 0, err
		}
		if doc.ContentHash == "" {
			doc.ContentHash = domain.ComputeContentHash(doc.Content)
		}

		key := hashKey(doc.Source, doc.WorkspaceID, doc.ContentHash)
		targetID := doc.ID
		if existingID, ok := s.byHash[key]; ok {
			targetID = existingID
		} else if old, ok := s.docs[doc.ID]; ok {
			// Same id, new content: drop the stale hash mapping.
			delete(s.byHash, hashKey(old.doc.Source, old.doc.WorkspaceID, old.doc.ContentHash))
		}

		doc.ID = targetID
		s.docs[targetID] = &storedDoc{doc: doc, embedding: items[i].Embedding}
		s.byHash[key] = targetID
		written++
	}
	return written, nil
}

// VectorSearch scores all stored embeddings with a dot product.
func (s *DocStore) VectorSearch(_ context.Context, vector []float32, f domain.SearchFilter) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}

	var results []domain.SearchResult
	for _, stored := range s.docs {
		if !matchesFilter(&stored.doc, f) || len(stored.embedding) == 0 {
			continue
		}
		if len(stored.embedding) != len(vector) {
			return nil, domain.ErrDimensionMismatch
		}
		var score float64
		for i := range vector {
			score += float64(vector[i]) * float64(stored.embedding[i])
		}
		if f.MinScore > 0 && score < f.MinScore {
			continue
		}
		results = append(results, domain.SearchResult{
			Document: stored.doc,
			Score:    score,
			Match:    domain.MatchVector,
		})
	}
	return sortAndTruncate(results, f.Limit), nil
}

// FTSSearch matches documents containing every query word.
func (s *DocStore) FTSSearch(_ context.Context, query string, f domain.SearchFilter) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}

	words := strings.Fields(strings.ToLower(strings.ReplaceAll(query, `"`, "")))
	var results []domain.SearchResult
	for _, stored := range s.docs {
		if !matchesFilter(&stored.doc, f) {
			continue
		}
		text := strings.ToLower(stored.doc.Title + " " + stored.doc.Content)
		hit := len(words) > 0
		for _, w := range words {
			if !strings.Contains(text, w) {
				hit = false
				break
			}
		}
		if hit {
			results = append(results, domain.SearchResult{
				Document: stored.doc,
				Score:    float64(len(words)),
				Match:    domain.MatchFTS,
			})
		}
	}
	return sortAndTruncate(results, f.Limit), nil
}

// SubstringSearch matches the raw query as a case-insensitive substring.
func (s *DocStore) SubstringSearch(_ context.Context, query string, f domain.SearchFilter) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	var results []domain.SearchResult
	for _, stored := range s.docs {
		if !matchesFilter(&stored.doc, f) {
			continue
		}
		text := strings.ToLower(stored.doc.Title + " " + stored.doc.Content)
		if strings.Contains(text, needle) {
			results = append(results, domain.SearchResult{
				Document: stored.doc,
				Match:    domain.MatchFTS,
			})
		}
	}
	return sortAndTruncate(results, f.Limit), nil
}

// GetSyncCursor reads a cursor.
func (s *DocStore) GetSyncCursor(_ context.Context, source domain.SourceType, workspaceID, partitionID string) (*domain.SyncCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}

	cursor, ok := s.cursors[cursorKey(source, workspaceID, partitionID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &cursor, nil
}

// SetSyncCursor stores or replaces a cursor.
func (s *DocStore) SetSyncCursor(_ context.Context, cursor domain.SyncCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	if cursor.LastSync.IsZero() {
		cursor.LastSync = time.Now().UTC()
	}
	s.cursors[cursorKey(cursor.Source, cursor.WorkspaceID, cursor.PartitionID)] = cursor
	return nil
}

// ResetSyncCursors clears a source's cursors.
func (s *DocStore) ResetSyncCursors(_ context.Context, source domain.SourceType, workspaceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return 0, err
	}

	n := 0
	for key, cursor := range s.cursors {
		if cursor.Source != source {
			continue
		}
		if workspaceID != "" && cursor.WorkspaceID != workspaceID {
			continue
		}
		delete(s.cursors, key)
		n++
	}
	return n, nil
}

// DeleteBySource removes a source's documents and embeddings.
func (s *DocStore) DeleteBySource(_ context.Context, source domain.SourceType, workspaceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return 0, err
	}

	n := 0
	for id, stored := range s.docs {
		if stored.doc.Source != source {
			continue
		}
		if workspaceID != "" && stored.doc.WorkspaceID != workspaceID {
			continue
		}
		delete(s.byHash, hashKey(stored.doc.Source, stored.doc.WorkspaceID, stored.doc.ContentHash))
		delete(s.docs, id)
		n++
	}
	return n, nil
}

// Stats aggregates counts by source and workspace.
func (s *DocStore) Stats(_ context.Context) (*domain.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}

	stats := &domain.StoreStats{
		BySource:    make(map[domain.SourceType]int),
		ByWorkspace: make(map[string]int),
	}
	for _, stored := range s.docs {
		stats.TotalDocuments++
		if len(stored.embedding) > 0 {
			stats.TotalEmbeddings++
		}
		stats.BySource[stored.doc.Source]++
		stats.ByWorkspace[stored.doc.WorkspaceID]++
	}
	return stats, nil
}

// SyncStatus reports per-source document counts and last cursor times.
func (s *DocStore) SyncStatus(_ context.Context) ([]domain.SyncStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}

	counts := make(map[domain.SourceType]int)
	for _, stored := range s.docs {
		counts[stored.doc.Source]++
	}
	lastSync := make(map[domain.SourceType]time.Time)
	for _, cursor := range s.cursors {
		if cursor.LastSync.After(lastSync[cursor.Source]) {
			lastSync[cursor.Source] = cursor.LastSync
		}
	}

	statuses := make([]domain.SyncStatus, 0, len(counts))
	for source, count := range counts {
		statuses = append(statuses, domain.SyncStatus{
			Source:        source,
			DocumentCount: count,
			LastSync:      lastSync[source],
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Source < statuses[j].Source })
	return statuses, nil
}

// Close is a no-op for the in-memory store.
func (s *DocStore) Close() error {
	return nil
}

func matchesFilter(doc *domain.Document, f domain.SearchFilter) bool {
	if f.Source != "" && doc.Source != f.Source {
		return false
	}
	if f.WorkspaceID != "" && doc.WorkspaceID != f.WorkspaceID {
		return false
	}
	return f.Channels.Matches(doc)
}

func sortAndTruncate(results []domain.SearchResult, limit int) []domain.SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
