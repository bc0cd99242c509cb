package storage

import "errors"

var (
	ErrStoreUnreachable    = errors.New("qdrant server unreachable")
	ErrDocumentNotFound    = errors.New("document not found")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
	ErrDuplicateChunkIndex = errors.New("duplicate chunk index")

	// ErrDocumentDeleted signals that the document's tree point vanished
	// between pipeline stages, i.e. a delete raced an in-flight indexing run.
	// Callers abort quietly instead of resurrecting partial state.
	ErrDocumentDeleted = errors.New("document deleted during indexing")
)
