package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// BackendPostgres names the PostgreSQL store.
const BackendPostgres = "postgres"

// PostgresStore keeps snapshot history in three tables. Load returns the newest.
type PostgresStore struct {
	db          *sql.DB
	pingTimeout time.Duration
	keep        int
}

var _ Snapshotter = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn and creates the schema if needed.
func NewPostgresStore(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres DSN is required", ErrMissingLocation)
	}
	s := &PostgresStore{pingTimeout: 5 * time.Second, keep: 10}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s.db = db
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS rating_snapshots (
		id BIGSERIAL PRIMARY KEY,
		run_id VARCHAR(64) NOT NULL,
		taken_at TIMESTAMPTZ NOT NULL,
		default_rating DOUBLE PRECISION NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshot_ratings (
		snapshot_id BIGINT NOT NULL REFERENCES rating_snapshots(id) ON DELETE CASCADE,
		player_id TEXT NOT NULL,
		rating DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (snapshot_id, player_id)
	);

	CREATE TABLE IF NOT EXISTS snapshot_games (
		snapshot_id BIGINT NOT NULL REFERENCES rating_snapshots(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		game_id BIGINT NOT NULL,
		PRIMARY KEY (snapshot_id, seq)
	);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *PostgresStore) Backend() string { return BackendPostgres }

func (s *PostgresStore) Close() error { return s.db.Close() }

// Save appends snap as a new snapshot and prunes old ones beyond the keep limit.
func (s *PostgresStore) Save(ctx context.Context, snap Snapshot) (err error) {
	start := time.Now()
	defer func() { observe(BackendPostgres, "save", start, err) }()

	if err := snap.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO rating_snapshots (run_id, taken_at, default_rating) VALUES ($1, $2, $3) RETURNING id`,
		snap.RunID, snap.TakenAt.UTC(), snap.Default,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	err = copyRows(ctx, tx, pq.CopyIn("snapshot_ratings", "snapshot_id", "player_id", "rating"), func(exec func(...any) error) error {
		for pid, r := range snap.Ratings {
			if err := exec(id, pid, r); err != nil {
				return fmt.Errorf("rating for %s: %w", pid, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	err = copyRows(ctx, tx, pq.CopyIn("snapshot_games", "snapshot_id", "seq", "game_id"), func(exec func(...any) error) error {
		for i, gid := range snap.Applied {
			if err := exec(id, i, gid); err != nil {
				return fmt.Errorf("applied game %d: %w", gid, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.keep > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM rating_snapshots WHERE id NOT IN (SELECT id FROM rating_snapshots ORDER BY id DESC LIMIT $1)`,
			s.keep,
		)
		if err != nil {
			return fmt.Errorf("failed to prune snapshots: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Load returns the newest snapshot.
func (s *PostgresStore) Load(ctx context.Context) (snap Snapshot, err error) {
	start := time.Now()
	defer func() { observe(BackendPostgres, "load", start, err) }()

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id, run_id, taken_at, default_rating FROM rating_snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&id, &snap.RunID, &snap.TakenAt, &snap.Default)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to query snapshot: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT player_id, rating FROM snapshot_ratings WHERE snapshot_id = $1`, id)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to query ratings: %w", err)
	}
	defer rows.Close()

	snap.Ratings = make(map[string]float64)
	for rows.Next() {
		var (
			pid string
			r   float64
		)
		if err = rows.Scan(&pid, &r); err != nil {
			return Snapshot{}, fmt.Errorf("failed to scan rating: %w", err)
		}
		snap.Ratings[pid] = r
	}
	if err = rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("failed to read ratings: %w", err)
	}

	games, err := s.db.QueryContext(ctx, `SELECT game_id FROM snapshot_games WHERE snapshot_id = $1 ORDER BY seq`, id)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to query applied games: %w", err)
	}
	defer games.Close()
	for games.Next() {
		var gid int64
		if err = games.Scan(&gid); err != nil {
			return Snapshot{}, fmt.Errorf("failed to scan applied game: %w", err)
		}
		snap.Applied = append(snap.Applied, gid)
	}
	if err = games.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("failed to read applied games: %w", err)
	}
	return snap, nil
}

// copyRows streams the rows produced by fill through a COPY statement.
func copyRows(ctx context.Context, tx *sql.Tx, query string, fill func(exec func(...any) error) error) error {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}
	exec := func(args ...any) error {
		_, err := stmt.ExecContext(ctx, args...)
		return err
	}
	if err := fill(exec); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to copy %w", err)
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy: %w", err)
	}
	return nil
}
