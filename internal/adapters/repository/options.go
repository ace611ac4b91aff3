package repository

import (
	"os"
	"time"
)

// BoltOption applies a configuration option to the BoltStore.
type BoltOption func(*BoltStore)

// WithFileMode sets the permissions used when the database file is created.
func WithFileMode(mode os.FileMode) BoltOption {
	return func(s *BoltStore) {
		if mode != 0 {
			s.mode = mode
		}
	}
}

// WithOpenTimeout bounds how long Open waits for the file lock.
func WithOpenTimeout(d time.Duration) BoltOption {
	return func(s *BoltStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// PostgresOption applies a configuration option to the PostgresStore.
type PostgresOption func(*PostgresStore)

// WithPingTimeout bounds the connection check made on open.
func WithPingTimeout(d time.Duration) PostgresOption {
	return func(s *PostgresStore) {
		if d > 0 {
			s.pingTimeout = d
		}
	}
}

// WithKeep sets how many snapshots are retained. Non-positive keeps all.
func WithKeep(n int) PostgresOption {
	return func(s *PostgresStore) {
		s.keep = n
	}
}
