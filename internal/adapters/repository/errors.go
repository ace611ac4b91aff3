package repository

import "errors"

// Sentinel kinds for snapshot errors.
var (
	ErrNotFound        = errors.New("no snapshot stored")
	ErrInvalidSnapshot = errors.New("invalid snapshot")
	ErrUnknownBackend  = errors.New("unknown snapshot backend")
	ErrMissingLocation = errors.New("snapshot location not configured")
)
