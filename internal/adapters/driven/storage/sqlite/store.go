package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/recall-labs/recall-cli/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/recall-labs/recall-cli/internal/core/domain"
	"github.com/recall-labs/recall-cli/internal/core/ports/driven"
)

// defaultSearchLimit caps result counts when the filter leaves Limit unset.
const defaultSearchLimit = 10

var _ driven.DocumentStore = (*Store)(nil)

// Store is the SQLite-backed document store. One database file holds
// documents, embedding vectors, the FTS5 index and sync cursors.
type Store struct {
	dataDir string
	path    string

	mu sync.Mutex
	db *sql.DB
}

// NewStore creates a store rooted at the given data directory. No IO
// happens until Initialize. If dataDir is empty, defaults to
// ~/.recall/data.
func NewStore(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

// Initialize opens the database, applying pragmas and pending
// migrations. Idempotent: a second call on an open store is a no-op.
func (s *Store) Initialize(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}

	dataDir := s.dataDir
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".recall", "data")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "recall.db")

	// WAL mode for concurrent readers during sync writes.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrate(db, migrations.FS); err != nil {
		db.Close()
		return fmt.Errorf("running migrations: %w", err)
	}

	s.db = db
	s.path = dbPath
	return nil
}

// handle returns the open database or ErrNotInitialized.
func (s *Store) handle() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, domain.ErrNotInitialized
	}
	return s.db, nil
}

// migrate runs all pending .up.sql migrations in version order.
func migrate(db *sql.DB, fsys embed.FS) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// Upsert writes documents and their embeddings in one transaction.
// (source, workspace_id, content_hash) is unique: when an incoming
// document carries known content under a new id, the existing row wins
// and only its metadata and embedding are refreshed.
func (s *Store) Upsert(ctx context.Context, items []domain.EmbeddedDocument) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	written := 0
	now := time.Now().UTC()
	for i := range items {
		doc := &items[i].Document
		if err := doc.Validate(); err != nil {
			return 0, err
		}
		if doc.ContentHash == "" {
			doc.ContentHash = domain.ComputeContentHash(doc.Content)
		}

		targetID := doc.ID
		var existingID string
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM documents
			WHERE source = ? AND workspace_id = ? AND content_hash = ?
		`, doc.Source, doc.WorkspaceID, doc.ContentHash).Scan(&existingID)
		switch {
		case err == nil:
			// Known content: absorb into the existing row.
			targetID = existingID
			_, err = tx.ExecContext(ctx, `
				UPDATE documents
				SET channel_id = ?, title = ?, content = ?, url = ?, timestamp = ?, updated_at = ?
				WHERE id = ?
			`, doc.ChannelID, doc.Title, doc.Content, doc.URL, nullTime(doc.Timestamp), now, existingID)
			if err != nil {
				return 0, fmt.Errorf("updating document %s: %w", existingID, err)
			}
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx, `
				INSERT INTO documents (id, source, workspace_id, channel_id, title, content, url, timestamp, content_hash, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					source = excluded.source,
					workspace_id = excluded.workspace_id,
					channel_id = excluded.channel_id,
					title = excluded.title,
					content = excluded.content,
					url = excluded.url,
					timestamp = excluded.timestamp,
					content_hash = excluded.content_hash,
					updated_at = excluded.updated_at
			`, doc.ID, doc.Source, doc.WorkspaceID, doc.ChannelID, doc.Title, doc.Content,
				doc.URL, nullTime(doc.Timestamp), doc.ContentHash, now, now)
			if err != nil {
				return 0, fmt.Errorf("inserting document %s: %w", doc.ID, err)
			}
		default:
			return 0, fmt.Errorf("checking content hash: %w", err)
		}

		if len(items[i].Embedding) > 0 {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO embeddings (document_id, vector, dims)
				VALUES (?, ?, ?)
				ON CONFLICT(document_id) DO UPDATE SET
					vector = excluded.vector,
					dims = excluded.dims
			`, targetID, float32SliceToBytes(items[i].Embedding), len(items[i].Embedding))
			if err != nil {
				return 0, fmt.Errorf("saving embedding for %s: %w", targetID, err)
			}
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return written, nil
}

// VectorSearch scores all matching stored embeddings against the query
// vector with a full-scan dot product. Normalized inputs make this
// cosine similarity.
func (s *Store) VectorSearch(ctx context.Context, vector []float32, f domain.SearchFilter) ([]domain.SearchResult, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", domain.ErrInvalidInput)
	}

	query := `
		SELECT d.id, d.source, d.workspace_id, d.channel_id, d.title, d.content, d.url, d.timestamp, d.content_hash, e.vector, e.dims
		FROM documents d
		JOIN embeddings e ON e.document_id = d.id
	`
	where, args := filterClauses(f)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var results []domain.SearchResult //nolint:prealloc // size unknown from query
	for rows.Next() {
		var doc domain.Document
		var ts sql.NullTime
		var blob []byte
		var dims int
		if err := rows.Scan(&doc.ID, &doc.Source, &doc.WorkspaceID, &doc.ChannelID,
			&doc.Title, &doc.Content, &doc.URL, &ts, &doc.ContentHash, &blob, &dims); err != nil {
			return nil, fmt.Errorf("scanning embedding row: %w", err)
		}
		if ts.Valid {
			doc.Timestamp = ts.Time
		}
		if !f.Channels.Matches(&doc) {
			continue
		}

		if len(blob) != dims*4 {
			return nil, fmt.Errorf("%w: blob is %d bytes for %d dims", domain.ErrDimensionMismatch, len(blob), dims)
		}
		stored := bytesToFloat32Slice(blob)
		if len(stored) != len(vector) {
			return nil, fmt.Errorf("%w: stored %d, query %d", domain.ErrDimensionMismatch, len(stored), len(vector))
		}

		score := dotProduct(vector, stored)
		if f.MinScore > 0 && score < f.MinScore {
			continue
		}
		results = append(results, domain.SearchResult{
			Document: doc,
			Score:    score,
			Match:    domain.MatchVector,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embeddings: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	limit := f.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// FTSSearch matches the FTS5 index, ordered by bm25. The returned score
// is the negated bm25 rank: higher is better, but it is only meaningful
// relative to other lexical hits from the same query.
func (s *Store) FTSSearch(ctx context.Context, query string, f domain.SearchFilter) ([]domain.SearchResult, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty fts query", domain.ErrInvalidInput)
	}

	sqlQuery := `
		SELECT d.id, d.source, d.workspace_id, d.channel_id, d.title, d.content, d.url, d.timestamp, d.content_hash, bm25(documents_fts) AS rank
		FROM documents_fts
		JOIN documents d ON d.rowid = documents_fts.rowid
		WHERE documents_fts MATCH ?
	`
	args := []any{query}
	where, filterArgs := filterClauses(f)
	for _, clause := range where {
		sqlQuery += " AND " + clause
	}
	args = append(args, filterArgs...)
	sqlQuery += " ORDER BY rank"

	return s.queryLexical(ctx, db, sqlQuery, args, f, true)
}

// SubstringSearch is the LIKE fallback for queries too short or too
// hostile for the FTS engine. Case-insensitive over title and content.
func (s *Store) SubstringSearch(ctx context.Context, query string, f domain.SearchFilter) ([]domain.SearchResult, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty substring query", domain.ErrInvalidInput)
	}

	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	sqlQuery := `
		SELECT d.id, d.source, d.workspace_id, d.channel_id, d.title, d.content, d.url, d.timestamp, d.content_hash, 0.0 AS rank
		FROM documents d
		WHERE (LOWER(d.content) LIKE ? ESCAPE '\' OR LOWER(d.title) LIKE ? ESCAPE '\')
	`
	args := []any{pattern, pattern}
	where, filterArgs := filterClauses(f)
	for _, clause := range where {
		sqlQuery += " AND " + clause
	}
	args = append(args, filterArgs...)
	sqlQuery += " ORDER BY d.timestamp DESC"

	return s.queryLexical(ctx, db, sqlQuery, args, f, false)
}

// queryLexical runs a lexical query returning document columns plus a
// rank column, applying the channel filter and limit.
func (s *Store) queryLexical(ctx context.Context, db *sql.DB, sqlQuery string, args []any, f domain.SearchFilter, negateRank bool) ([]domain.SearchResult, error) {
	rows, err := db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	limit := f.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var results []domain.SearchResult //nolint:prealloc // size unknown from query
	for rows.Next() {
		var doc domain.Document
		var ts sql.NullTime
		var rank float64
		if err := rows.Scan(&doc.ID, &doc.Source, &doc.WorkspaceID, &doc.ChannelID,
			&doc.Title, &doc.Content, &doc.URL, &ts, &doc.ContentHash, &rank); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		if ts.Valid {
			doc.Timestamp = ts.Time
		}
		if !f.Channels.Matches(&doc) {
			continue
		}

		score := rank
		if negateRank {
			score = -rank
		}
		results = append(results, domain.SearchResult{
			Document: doc,
			Score:    score,
			Match:    domain.MatchFTS,
		})
		if len(results) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return results, nil
}

// GetSyncCursor reads the cursor for a source partition.
func (s *Store) GetSyncCursor(ctx context.Context, source domain.SourceType, workspaceID, partitionID string) (*domain.SyncCursor, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT source, workspace_id, partition_id, value, last_sync
		FROM sync_cursors
		WHERE source = ? AND workspace_id = ? AND partition_id = ?
	`, source, workspaceID, partitionID)

	var cursor domain.SyncCursor
	var lastSync sql.NullTime
	if err := row.Scan(&cursor.Source, &cursor.WorkspaceID, &cursor.PartitionID, &cursor.Value, &lastSync); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning sync cursor: %w", err)
	}
	if lastSync.Valid {
		cursor.LastSync = lastSync.Time
	}
	return &cursor, nil
}

// SetSyncCursor stores or replaces a cursor.
func (s *Store) SetSyncCursor(ctx context.Context, cursor domain.SyncCursor) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if cursor.LastSync.IsZero() {
		cursor.LastSync = time.Now().UTC()
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO sync_cursors (source, workspace_id, partition_id, value, last_sync)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source, workspace_id, partition_id) DO UPDATE SET
			value = excluded.value,
			last_sync = excluded.last_sync
	`, cursor.Source, cursor.WorkspaceID, cursor.PartitionID, cursor.Value, cursor.LastSync)
	if err != nil {
		return fmt.Errorf("saving sync cursor: %w", err)
	}
	return nil
}

// ResetSyncCursors clears a source's cursors. Empty workspaceID clears
// all workspaces.
func (s *Store) ResetSyncCursors(ctx context.Context, source domain.SourceType, workspaceID string) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}

	query := "DELETE FROM sync_cursors WHERE source = ?"
	args := []any{source}
	if workspaceID != "" {
		query += " AND workspace_id = ?"
		args = append(args, workspaceID)
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting sync cursors: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted cursors: %w", err)
	}
	return int(n), nil
}

// DeleteBySource removes a source's documents. Embeddings cascade and
// the FTS rows follow via trigger. Empty workspaceID removes all
// workspaces.
func (s *Store) DeleteBySource(ctx context.Context, source domain.SourceType, workspaceID string) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}

	query := "DELETE FROM documents WHERE source = ?"
	args := []any{source}
	if workspaceID != "" {
		query += " AND workspace_id = ?"
		args = append(args, workspaceID)
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted documents: %w", err)
	}
	return int(n), nil
}

// Stats aggregates document counts by source and workspace.
func (s *Store) Stats(ctx context.Context) (*domain.StoreStats, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	stats := &domain.StoreStats{
		BySource:    make(map[domain.SourceType]int),
		ByWorkspace: make(map[string]int),
	}

	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&stats.TotalDocuments); err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&stats.TotalEmbeddings); err != nil {
		return nil, fmt.Errorf("counting embeddings: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT source, workspace_id, COUNT(*) FROM documents GROUP BY source, workspace_id")
	if err != nil {
		return nil, fmt.Errorf("querying document counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var source domain.SourceType
		var workspace string
		var count int
		if err := rows.Scan(&source, &workspace, &count); err != nil {
			return nil, fmt.Errorf("scanning document count: %w", err)
		}
		stats.BySource[source] += count
		stats.ByWorkspace[workspace] += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document counts: %w", err)
	}
	return stats, nil
}

// SyncStatus reports per-source document counts and the newest cursor
// advance time. Cursor times are read row by row rather than with a SQL
// MAX: the aggregate loses the column's DATETIME affinity and comes back
// as a bare string the driver cannot scan into a time, and joining
// cursors onto documents would multiply counts for multi-partition
// sources.
func (s *Store) SyncStatus(ctx context.Context) ([]domain.SyncStatus, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	cursorRows, err := db.QueryContext(ctx, "SELECT source, last_sync FROM sync_cursors")
	if err != nil {
		return nil, fmt.Errorf("querying cursor times: %w", err)
	}
	defer cursorRows.Close()

	lastSync := make(map[domain.SourceType]time.Time)
	for cursorRows.Next() {
		var source domain.SourceType
		var ts time.Time
		if err := cursorRows.Scan(&source, &ts); err != nil {
			return nil, fmt.Errorf("scanning cursor time: %w", err)
		}
		if ts.After(lastSync[source]) {
			lastSync[source] = ts
		}
	}
	if err := cursorRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cursor times: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT source, COUNT(*)
		FROM documents
		GROUP BY source
		ORDER BY source
	`)
	if err != nil {
		return nil, fmt.Errorf("querying sync status: %w", err)
	}
	defer rows.Close()

	var statuses []domain.SyncStatus //nolint:prealloc // size unknown from query
	for rows.Next() {
		var st domain.SyncStatus
		if err := rows.Scan(&st.Source, &st.DocumentCount); err != nil {
			return nil, fmt.Errorf("scanning sync status: %w", err)
		}
		st.LastSync = lastSync[st.Source]
		statuses = append(statuses, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync status: %w", err)
	}
	return statuses, nil
}

// Close releases the database handle. Safe to call before Initialize.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// filterClauses builds WHERE fragments for source and workspace filters.
// Column references are qualified with the documents alias "d".
func filterClauses(f domain.SearchFilter) ([]string, []any) {
	var where []string
	var args []any
	if f.Source != "" {
		where = append(where, "d.source = ?")
		args = append(args, f.Source)
	}
	if f.WorkspaceID != "" {
		where = append(where, "d.workspace_id = ?")
		args = append(args, f.WorkspaceID)
	}
	return where, args
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// float32SliceToBytes converts a []float32 to a little-endian byte slice
// for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a stored byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
