package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	// ErrNotFound is matched by handlers to answer 404. Dependencies wrap it.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is matched by handlers to answer 400. Dependencies wrap it.
	ErrInvalidInput = errors.New("invalid input")
)
