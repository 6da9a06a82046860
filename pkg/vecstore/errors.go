package vecstore

import "errors"

// Sentinel errors shared by all store backends. Callers distinguish failure
// classes with errors.Is; the wrapped chain carries the concrete cause.
var (
	// ErrConfiguration indicates missing or invalid setup. Fatal, surfaced
	// before any network attempt, never retried.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrInvalidFilter indicates a malformed filter expression: unknown
	// operator, type-mismatched operand, or malformed combinator node.
	// Always a caller bug, never retried.
	ErrInvalidFilter = errors.New("invalid filter expression")

	// ErrEmbedding indicates the embedder returned a vector of the wrong
	// dimensionality for the collection.
	ErrEmbedding = errors.New("embedding dimension mismatch")

	// ErrPersistence indicates a storage-engine failure. The wrapped cause
	// distinguishes transient network failure from constraint violation.
	ErrPersistence = errors.New("storage engine failure")
)
