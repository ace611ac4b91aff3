// Package service owns the rating state and implements the dependencies
// required by the HTTP API and the command line.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/teamelo/internal/adapters/http/api"
	"github.com/okian/teamelo/internal/adapters/mq/queue"
	"github.com/okian/teamelo/internal/adapters/mq/worker"
	"github.com/okian/teamelo/internal/adapters/repository"
	"github.com/okian/teamelo/internal/domain/balance"
	"github.com/okian/teamelo/internal/domain/dedupe"
	"github.com/okian/teamelo/internal/domain/elo"
	"github.com/okian/teamelo/internal/domain/model"
	"github.com/okian/teamelo/internal/domain/rating"
	"github.com/okian/teamelo/internal/domain/types"
	"github.com/okian/teamelo/pkg/logger"
	"github.com/okian/teamelo/pkg/metrics"
)

// Service guards one rating store. Game processing and snapshot loads take
// the write lock; reads and balancing take the read lock.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     *rating.Store
	processor *elo.Processor
	balancer  *balance.Balancer
	deduper   dedupe.Deduper
	snapshots repository.Snapshotter
	ingest    *queue.InMemoryQueue
	pool      *worker.Pool

	// Configuration
	k              float64
	scale          float64
	defaultRating  float64
	initial        map[string]float64
	maxRoster      int
	balanceWorkers int
	dedupeSize     int
	queueSize      int
	ingestWorkers  int

	// State
	runID          string
	startedAt      time.Time
	started        bool
	restored       bool
	gamesProcessed int64
	lastGameID     int64
	duplicates     atomic.Int64

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithK sets the update sensitivity.
func WithK(k float64) Option {
	return func(s *Service) {
		if k > 0 {
			s.k = k
		}
	}
}

// WithScale sets the saturation scale.
func WithScale(r float64) Option {
	return func(s *Service) {
		if r > 0 {
			s.scale = r
		}
	}
}

// WithDefaultRating sets the rating of unseen players.
func WithDefaultRating(r float64) Option {
	return func(s *Service) {
		s.defaultRating = r
	}
}

// WithInitialRatings seeds the store.
func WithInitialRatings(ratings map[string]float64) Option {
	return func(s *Service) {
		s.initial = ratings
	}
}

// WithMaxRoster caps rosters accepted by Balance.
func WithMaxRoster(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRoster = n
		}
	}
}

// WithBalanceWorkers sets the goroutines used per balance search.
func WithBalanceWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.balanceWorkers = n
		}
	}
}

// WithDedupeSize sets how many game ids are remembered for idempotency.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithIngestQueue makes Enqueue available: up to size games wait for workers
// to apply them. A non-positive size keeps game submission synchronous.
func WithIngestQueue(size, workers int) Option {
	return func(s *Service) {
		s.queueSize = size
		s.ingestWorkers = workers
	}
}

// WithSnapshotter enables SaveSnapshot and LoadSnapshot.
func WithSnapshotter(snap repository.Snapshotter) Option {
	return func(s *Service) {
		s.snapshots = snap
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.runID = id
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service with an empty or seeded store.
func New(opts ...Option) *Service {
	s := &Service{
		k:              elo.DefaultK,
		scale:          elo.DefaultScale,
		defaultRating:  rating.DefaultRating,
		maxRoster:      20,
		balanceWorkers: runtime.NumCPU(),
		dedupeSize:     100_000,
		runID:          uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger = s.logger.With(logger.String("run_id", s.runID))

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.reset(rating.NewStore(rating.WithDefault(s.defaultRating), rating.WithInitial(s.initial)))
	return s
}

// reset swaps in store and rebuilds the components reading it. Callers hold
// the write lock or own s exclusively.
func (s *Service) reset(store *rating.Store) {
	s.store = store
	s.processor = elo.NewProcessor(store, elo.WithK(s.k), elo.WithScale(s.scale))
	s.balancer = balance.New(store,
		balance.WithMaxRoster(s.maxRoster),
		balance.WithWorkers(s.balanceWorkers),
		balance.WithScale(s.scale),
	)
	metrics.UpdateTotalPlayers(store.Len())
}

// Start restores the latest snapshot when one is configured and stored, and
// starts the ingest workers when a queue is configured.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	if s.snapshots != nil {
		err := s.LoadSnapshot(ctx)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			s.logger.Info(ctx, "no snapshot stored, starting from initial ratings")
		case err != nil:
			return err
		}
	}

	if s.queueSize > 0 {
		q := queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
		pool := worker.NewPool(s.ingestWorkers, q, s, worker.WithLogger(s.logger))
		// workers outlive ctx so Stop can drain the queue
		pool.Start(context.WithoutCancel(ctx))

		s.mu.Lock()
		s.ingest, s.pool = q, pool
		s.mu.Unlock()
		s.logger.Info(ctx, "ingest queue started",
			logger.Int("capacity", s.queueSize),
			logger.Int("workers", pool.Size()),
		)
	}
	s.logger.Info(ctx, "rating service started",
		logger.Int("players", s.Players()),
		logger.Float64("k_factor", s.k),
		logger.Int("max_roster", s.maxRoster),
	)
	return nil
}

// Stop drains the ingest queue, then saves a snapshot when one is configured
// and closes the snapshotter.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	pool := s.pool
	s.mu.Unlock()

	var err error
	if pool != nil {
		// apply queued games before the snapshot is taken
		err = pool.Shutdown(ctx)
		s.logger.Info(ctx, "ingest queue drained",
			logger.Any("applied", pool.Processed()),
			logger.Any("failed", pool.Failed()),
		)
	}
	if s.snapshots != nil {
		if serr := s.SaveSnapshot(ctx); err == nil {
			err = serr
		}
		if cerr := s.snapshots.Close(); err == nil {
			err = cerr
		}
	}
	s.logger.Info(ctx, "rating service stopped")
	return err
}

// Close releases the snapshot backend without saving. A started service is
// released by Stop instead.
func (s *Service) Close() error {
	if s.snapshots == nil {
		return nil
	}
	return s.snapshots.Close()
}

// RunID identifies this service instance in logs and snapshots.
func (s *Service) RunID() string { return s.runID }

// Restored reports whether the ratings came from a snapshot.
func (s *Service) Restored() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restored
}

// Players returns the number of rated players.
func (s *Service) Players() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Len()
}

// Replay applies games in ascending id order and marks their ids as seen.
func (s *Service) Replay(ctx context.Context, games []model.Game) (elo.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	sum, err := s.processor.Replay(ctx, games, func(res elo.Result) {
		s.deduper.SeenAndRecord(ctx, res.GameID)
		s.observe(res)
	})
	metrics.RecordReplayDuration(time.Since(start).Seconds())
	metrics.UpdateTotalPlayers(s.store.Len())
	if err != nil {
		s.logger.Warn(ctx, "replay interrupted", logger.Int("games", sum.Games), logger.Error(err))
		return sum, err
	}
	s.logger.Info(ctx, "replay complete",
		logger.Int("games", sum.Games),
		logger.Int("registered", sum.Registered),
		logger.Int("players", sum.Players),
		logger.Duration("took", time.Since(start)),
	)
	return sum, nil
}

// ProcessGame applies a single game. Deduplication is the caller's concern;
// see SeenAndRecord.
func (s *Service) ProcessGame(ctx context.Context, g model.Game) (elo.Result, error) {
	if err := ctx.Err(); err != nil {
		return elo.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.processor.Process(g)
	s.observe(res)
	metrics.UpdateTotalPlayers(s.store.Len())
	s.logger.Debug(ctx, "game applied",
		logger.Any("game_id", g.ID()),
		logger.Float64("expected", res.Expected),
		logger.Float64("delta", res.Delta),
	)
	return res, nil
}

// observe must be called with the write lock held.
func (s *Service) observe(res elo.Result) {
	s.gamesProcessed++
	if res.GameID > s.lastGameID {
		s.lastGameID = res.GameID
	}
	metrics.RecordGameProcessed(res.Delta)
	metrics.RecordPlayersRegistered(res.Registered)
}

// Async reports whether games can be queued with Enqueue.
func (s *Service) Async() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ingest != nil && !s.ingest.IsClosed()
}

// Enqueue queues g for the ingest workers.
func (s *Service) Enqueue(ctx context.Context, g model.Game) error {
	s.mu.RLock()
	q := s.ingest
	s.mu.RUnlock()

	switch {
	case q == nil || q.IsClosed():
		return fmt.Errorf("game %d: %w", g.ID(), queue.ErrClosed)
	case !q.Enqueue(ctx, g):
		if err := ctx.Err(); err != nil {
			return err
		}
		if q.IsClosed() {
			return fmt.Errorf("game %d: %w", g.ID(), queue.ErrClosed)
		}
		return fmt.Errorf("game %d: %w", g.ID(), queue.ErrFull)
	}
	return nil
}

// SeenAndRecord reports whether a game id was already applied and records it if not.
func (s *Service) SeenAndRecord(ctx context.Context, id int64) bool {
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		s.duplicates.Add(1)
		metrics.RecordGameDuplicate()
	}
	return seen
}

// Unrecord forgets a game id so it can be submitted again.
func (s *Service) Unrecord(ctx context.Context, id int64) {
	s.deduper.Unrecord(ctx, id)
}

// Size returns the number of remembered game ids.
func (s *Service) Size() int64 {
	return s.deduper.Size()
}

// Standings returns up to limit rows by rating. A non-positive limit returns all rows.
func (s *Service) Standings(_ context.Context, limit int) ([]types.Entry, error) {
	s.mu.RLock()
	entries := s.store.Standings()
	s.mu.RUnlock()

	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries, nil
}

// Rank returns one player's standings row without registering unknown ids.
func (s *Service) Rank(_ context.Context, playerID string) (types.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.store.Entry(playerID)
	if !ok {
		return types.Entry{}, fmt.Errorf("%w: %q", ErrUnknownPlayer, playerID)
	}
	return e, nil
}

// Balance splits roster into two teams with the closest mean ratings.
func (s *Service) Balance(ctx context.Context, roster []string) (types.Split, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := time.Now()
	split, err := s.balancer.FindBalancedSplit(ctx, roster)
	if err != nil {
		metrics.RecordBalanceError(balanceReason(err))
		if errors.Is(err, balance.ErrNoValidSplit) || errors.Is(err, balance.ErrOddRoster) || errors.Is(err, balance.ErrRosterTooLarge) {
			return types.Split{}, fmt.Errorf("%w: %w", api.ErrInvalidInput, err)
		}
		return types.Split{}, err
	}
	took := time.Since(start)
	metrics.RecordBalance(split.Candidates, took.Seconds())
	s.logger.Debug(ctx, "roster balanced",
		logger.Int("players", len(roster)),
		logger.Float64("imbalance", split.Imbalance),
		logger.Duration("took", took),
	)

	return types.Split{
		TeamA:      split.TeamA,
		TeamB:      split.TeamB,
		MeanA:      split.MeanA,
		MeanB:      split.MeanB,
		Target:     split.Target,
		Imbalance:  split.Imbalance,
		Expected:   split.Expected,
		Candidates: split.Candidates,
	}, nil
}

// Predict returns the expected outcome of team1 against team2 on the current
// ratings. Unseen players count at the default and are not registered.
func (s *Service) Predict(ctx context.Context, team1, team2 []string) (types.Prediction, error) {
	switch {
	case len(team1) == 0 || len(team2) == 0:
		return types.Prediction{}, fmt.Errorf("%w: %w", api.ErrInvalidInput, model.ErrEmptyTeam)
	case len(team1) != len(team2):
		return types.Prediction{}, fmt.Errorf("%w: %w (%d vs %d)", api.ErrInvalidInput, model.ErrTeamSizeMismatch, len(team1), len(team2))
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := types.Prediction{
		Team1:    team1,
		Team2:    team2,
		Mean1:    elo.MeanOf(s.store, team1),
		Mean2:    elo.MeanOf(s.store, team2),
		Expected: s.processor.Predict(team1, team2),
	}
	s.logger.Debug(ctx, "matchup predicted", logger.Float64("expected", p.Expected))
	return p, nil
}

func balanceReason(err error) string {
	switch {
	case errors.Is(err, balance.ErrNoValidSplit):
		return "empty_roster"
	case errors.Is(err, balance.ErrOddRoster):
		return "odd_roster"
	case errors.Is(err, balance.ErrRosterTooLarge):
		return "roster_too_large"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "unknown"
	}
}

// SaveSnapshot stores the current ratings and the ids of the games behind them.
func (s *Service) SaveSnapshot(ctx context.Context) error {
	if s.snapshots == nil {
		return ErrNoSnapshotter
	}
	s.mu.RLock()
	snap := repository.Snapshot{
		RunID:   s.runID,
		TakenAt: time.Now(),
		Default: s.store.Default(),
		Ratings: s.store.All(),
	}
	if l, ok := s.deduper.(dedupe.Lister); ok {
		snap.Applied = l.IDs()
	}
	s.mu.RUnlock()

	if err := s.snapshots.Save(ctx, snap); err != nil {
		s.logger.Error(ctx, "snapshot save failed", logger.String("backend", s.snapshots.Backend()), logger.Error(err))
		return err
	}
	s.logger.Info(ctx, "snapshot saved",
		logger.String("backend", s.snapshots.Backend()),
		logger.Int("players", len(snap.Ratings)),
		logger.Int("applied_games", len(snap.Applied)),
	)
	return nil
}

// LoadSnapshot replaces the ratings with the latest stored snapshot and
// records its applied game ids, so resubmitting one of them is a duplicate.
func (s *Service) LoadSnapshot(ctx context.Context) error {
	if s.snapshots == nil {
		return ErrNoSnapshotter
	}
	snap, err := s.snapshots.Load(ctx)
	if err != nil {
		return err
	}
	if err := snap.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.reset(rating.NewStore(rating.WithDefault(snap.Default), rating.WithInitial(snap.Ratings)))
	for _, id := range snap.Applied {
		s.deduper.SeenAndRecord(ctx, id)
	}
	s.restored = true
	s.mu.Unlock()

	s.logger.Info(ctx, "snapshot loaded",
		logger.String("backend", s.snapshots.Backend()),
		logger.String("snapshot_run_id", snap.RunID),
		logger.Int("players", len(snap.Ratings)),
		logger.Int("applied_games", len(snap.Applied)),
	)
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	backend := repository.BackendNone
	if s.snapshots != nil {
		backend = s.snapshots.Backend()
	}
	stats := map[string]any{
		"run_id":          s.runID,
		"started":         s.started,
		"players":         s.store.Len(),
		"games_processed": s.gamesProcessed,
		"last_game_id":    s.lastGameID,
		"duplicates":      s.duplicates.Load(),
		"dedupe_size":     s.deduper.Size(),
		"k_factor":        s.k,
		"scale":           s.scale,
		"default_rating":  s.store.Default(),
		"max_roster":      s.balancer.MaxRoster(),
		"snapshot":        backend,
	}
	if s.started {
		stats["uptime_seconds"] = time.Since(s.startedAt).Seconds()
	}
	if s.ingest != nil {
		stats["ingest_queued"] = s.ingest.Len(context.Background())
		stats["ingest_capacity"] = s.ingest.Capacity()
		stats["ingest_applied"] = s.pool.Processed()
		stats["ingest_failed"] = s.pool.Failed()
	}
	return stats
}
