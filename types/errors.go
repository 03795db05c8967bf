package types

import "errors"

// Sentinel errors for the retrieval pipeline. Callers classify failures
// with errors.Is; the detail text wrapped around them is for logs only.
var (
	// ErrInvalidArgument marks malformed caller input. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDimensionMismatch marks a vector whose length disagrees with the
	// configured embedding dimension. Signals configuration drift.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbeddingFailed marks a remote embedding call that exhausted its
	// retry budget.
	ErrEmbeddingFailed = errors.New("embedding provider failed")

	// ErrIndexUnavailable marks a vector backend that is not configured or
	// could not be reached.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrNotFound marks a lookup or delete of a document that does not
	// exist in the catalog. Store-level fragment deletes stay idempotent
	// and never return it.
	ErrNotFound = errors.New("document not found")
)
