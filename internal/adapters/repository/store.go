// Package repository persists rating snapshots.
package repository

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Snapshot is a point-in-time copy of a rating store.
type Snapshot struct {
	RunID   string
	TakenAt time.Time
	Default float64
	Ratings map[string]float64
	// Applied lists game ids already rated, oldest first, so a restored
	// service still rejects them as duplicates.
	Applied []int64
}

// Validate rejects snapshots that cannot be restored.
func (s Snapshot) Validate() error {
	if math.IsNaN(s.Default) || math.IsInf(s.Default, 0) {
		return fmt.Errorf("%w: default rating %v", ErrInvalidSnapshot, s.Default)
	}
	for id, r := range s.Ratings {
		if id == "" {
			return fmt.Errorf("%w: empty player id", ErrInvalidSnapshot)
		}
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return fmt.Errorf("%w: rating %v for %q", ErrInvalidSnapshot, r, id)
		}
	}
	return nil
}

// Snapshotter saves and restores the latest snapshot.
type Snapshotter interface {
	// Save stores snap as the latest snapshot.
	Save(ctx context.Context, snap Snapshot) error
	// Load returns the latest snapshot, or ErrNotFound if none was saved.
	Load(ctx context.Context) (Snapshot, error)
	// Backend names the storage kind for logs and metrics.
	Backend() string
	Close() error
}
