package queue

import "errors"

// Enqueue failures as reported by callers that need an error.
var (
	ErrClosed = errors.New("ingest queue closed")
	ErrFull   = errors.New("ingest queue full")
)
