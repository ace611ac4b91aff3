package service

import (
	"errors"
	"fmt"

	"github.com/okian/teamelo/internal/adapters/http/api"
)

// Sentinel kinds for service errors.
var (
	ErrUnknownPlayer = fmt.Errorf("unknown player: %w", api.ErrNotFound)
	ErrNoSnapshotter = errors.New("snapshots are not configured")
)
