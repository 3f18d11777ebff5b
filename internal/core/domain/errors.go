package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotInitialized indicates an operation on a store that has not
	// completed Initialize. Fatal to the caller, never retried internally.
	ErrNotInitialized = errors.New("store not initialized")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyContent indicates a document with no text body.
	// Such documents are rejected before indexing.
	ErrEmptyContent = errors.New("empty content")

	// ErrUnsupportedSource indicates no connector is registered for a source.
	ErrUnsupportedSource = errors.New("unsupported source")

	// ErrNotConnected indicates a connector's account is not linked.
	ErrNotConnected = errors.New("source not connected")

	// ErrEmbeddingUnavailable indicates the embedding service failed or is
	// not configured. Search degrades to lexical-only; ingestion fails the
	// batch so it is retried on the next sync cycle.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrTokenBudget indicates a single text exceeds the per-call token ceiling.
	ErrTokenBudget = errors.New("token budget exceeded")

	// ErrBatchBudget indicates an embedding batch exceeds the batch size or
	// total token ceiling.
	ErrBatchBudget = errors.New("batch budget exceeded")

	// ErrRateLimited indicates the remote API rejected the call for rate
	// limiting after bounded retries.
	ErrRateLimited = errors.New("rate limited")

	// ErrSyncInProgress indicates a sync is already running for the source.
	ErrSyncInProgress = errors.New("sync in progress")

	// ErrDimensionMismatch indicates two vectors of different lengths were
	// compared.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
