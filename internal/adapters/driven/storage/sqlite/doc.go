// Package sqlite provides the SQLite-backed implementation of the
// DocumentStore port.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO, enabling easy cross-compilation. A single database file
// holds documents, their embedding vectors, the FTS5 full-text index and the
// incremental-sync cursors.
//
// # Schema
//
// The schema is managed through versioned migrations stored in the
// migrations/ directory and applied on Initialize. The full-text index is an
// external-content FTS5 table kept consistent with the documents table by
// triggers, so callers never write to it directly.
//
// # Data Location
//
// By default, the database is stored at ~/.recall/data/recall.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking
// provided by SQLite in WAL mode.
package sqlite
