package repository

import (
	"context"
	"fmt"
)

// BackendNone disables snapshots.
const BackendNone = "none"

// Open builds the Snapshotter for backend. It returns nil, nil for BackendNone.
func Open(ctx context.Context, backend, boltPath, postgresDSN string) (Snapshotter, error) {
	switch backend {
	case BackendNone, "":
		return nil, nil
	case BackendBolt:
		if boltPath == "" {
			return nil, fmt.Errorf("%w: bolt path is empty", ErrMissingLocation)
		}
		s, err := NewBoltStore(boltPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendPostgres:
		s, err := NewPostgresStore(ctx, postgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
