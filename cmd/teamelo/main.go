package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/okian/teamelo/internal/adapters/http/api"
	"github.com/okian/teamelo/internal/adapters/http/swagger"
	"github.com/okian/teamelo/internal/adapters/records"
	"github.com/okian/teamelo/internal/adapters/repository"
	app "github.com/okian/teamelo/internal/app"
	"github.com/okian/teamelo/internal/config"
	"github.com/okian/teamelo/internal/domain/calibrate"
	"github.com/okian/teamelo/internal/domain/model"
	"github.com/okian/teamelo/pkg/logger"
	"github.com/okian/teamelo/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
	standingsMaxLimit         = 1000
)

const usage = `teamelo rates players of two-team games and balances rosters.

Usage:
  teamelo <command> [options]

Commands:
  replay     replay the game history and write standings
  balance    replay, then split a roster into two balanced teams
  calibrate  fit the K factor to the game history
  serve      serve the HTTP API over the replayed ratings

Configuration is read from the file named by TEAMELO_CONFIG and from
TEAMELO_* environment variables. Run "teamelo <command> -h" for options.
`

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Stderr.WriteString("teamelo: " + err.Error() + "\n")
		os.Exit(1)
	}
}

// run dispatches one subcommand. Results go to stdout; logs go to stderr.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		_, _ = io.WriteString(stdout, usage)
		return nil
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	cmd, rest := args[0], args[1:]
	flags := flag.NewFlagSet(cmd, flag.ContinueOnError)
	flags.SetOutput(stdout)
	bindCommonFlags(flags, cfg)

	switch cmd {
	case "replay":
		if err := parse(flags, rest, cfg); err != nil {
			return err
		}
		return runReplay(ctx, cfg, stdout)
	case "balance":
		flags.StringVar(&cfg.RosterFile, "roster", cfg.RosterFile, "roster file, one player id per line")
		if err := parse(flags, rest, cfg); err != nil {
			return err
		}
		return runBalance(ctx, cfg, flags.Args(), stdout)
	case "calibrate":
		minK := flags.Float64("min-k", 1, "lower bound for K")
		maxK := flags.Float64("max-k", 400, "upper bound for K")
		if err := parse(flags, rest, cfg); err != nil {
			return err
		}
		return runCalibrate(ctx, cfg, *minK, *maxK, stdout)
	case "serve":
		flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
		if err := parse(flags, rest, cfg); err != nil {
			return err
		}
		return runServe(ctx, cfg)
	default:
		_, _ = io.WriteString(stdout, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func bindCommonFlags(flags *flag.FlagSet, cfg *config.Config) {
	flags.StringVar(&cfg.DataDir, "data", cfg.DataDir, "directory holding the data files")
	flags.StringVar(&cfg.OutputFile, "out", cfg.OutputFile, "standings output file")
	flags.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "standings format: csv, json or yaml")
	flags.Float64Var(&cfg.KFactor, "k", cfg.KFactor, "Elo K factor")
}

func parse(flags *flag.FlagSet, args []string, cfg *config.Config) error {
	if err := flags.Parse(args); err != nil {
		return err
	}
	return cfg.Validate()
}

// newService builds the service. With snapshots set it also opens the
// configured snapshot backend, which the caller releases with Stop or Close.
func newService(ctx context.Context, cfg *config.Config, initial map[string]float64, snapshots bool) (*app.Service, error) {
	var snaps repository.Snapshotter
	if snapshots {
		var err error
		if snaps, err = repository.Open(ctx, cfg.SnapshotBackend, cfg.BoltPath, cfg.PostgresDSN); err != nil {
			return nil, err
		}
	}
	opts := []app.Option{
		app.WithLogger(logger.Get()),
		app.WithK(cfg.KFactor),
		app.WithScale(cfg.Scale),
		app.WithDefaultRating(cfg.DefaultRating),
		app.WithInitialRatings(initial),
		app.WithMaxRoster(cfg.MaxRosterSize),
		app.WithBalanceWorkers(cfg.BalanceWorkers),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithIngestQueue(cfg.IngestQueueSize, cfg.IngestWorkers),
	}
	if snaps != nil {
		opts = append(opts, app.WithSnapshotter(snaps))
	}
	return app.New(opts...), nil
}

// loadInputs reads the initial ratings and the game history. A missing
// initial ratings file means everyone starts at the default.
func loadInputs(ctx context.Context, cfg *config.Config) (map[string]float64, []model.Game, error) {
	initial, err := records.LoadInitial(cfg.Path(cfg.InitialFile))
	if errors.Is(err, fs.ErrNotExist) {
		logger.Get().Info(ctx, "no initial ratings file", logger.String("path", cfg.Path(cfg.InitialFile)))
		initial, err = nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	games, err := records.LoadGames(cfg.Path(cfg.ScoresFile), cfg.Path(cfg.GamesFile))
	if err != nil {
		return nil, nil, err
	}
	return initial, games, nil
}

// replayed loads the inputs and returns a service holding the replayed ratings.
func replayed(ctx context.Context, cfg *config.Config, snapshots bool) (*app.Service, int, error) {
	initial, games, err := loadInputs(ctx, cfg)
	if err != nil {
		return nil, 0, err
	}
	svc, err := newService(ctx, cfg, initial, snapshots)
	if err != nil {
		return nil, 0, err
	}
	sum, err := svc.Replay(ctx, games)
	if err != nil {
		_ = svc.Close()
		return nil, 0, err
	}
	return svc, sum.Games, nil
}

func runReplay(ctx context.Context, cfg *config.Config, stdout io.Writer) (err error) {
	svc, n, err := replayed(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); err == nil {
			err = cerr
		}
	}()
	fmt.Fprintf(stdout, "%d games analyzed.\n", n)

	standings, err := svc.Standings(ctx, 0)
	if err != nil {
		return err
	}
	out := cfg.Path(cfg.OutputFile)
	if err := records.SaveStandings(out, standings, cfg.OutputFormat); err != nil {
		return err
	}
	logger.Get().Info(ctx, "standings written",
		logger.String("path", out),
		logger.String("format", cfg.OutputFormat),
		logger.Int("players", len(standings)),
	)

	if cfg.SnapshotBackend != config.BackendNone {
		if err := svc.SaveSnapshot(ctx); err != nil {
			return err
		}
	}
	return nil
}

func runBalance(ctx context.Context, cfg *config.Config, players []string, stdout io.Writer) error {
	roster := players
	if len(roster) == 0 {
		var err error
		if roster, err = records.LoadRoster(cfg.Path(cfg.RosterFile)); err != nil {
			return err
		}
	}

	svc, _, err := replayed(ctx, cfg, false)
	if err != nil {
		return err
	}
	split, err := svc.Balance(ctx, roster)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Team A: %s (mean %.1f)\n", strings.Join(split.TeamA, ", "), split.MeanA)
	fmt.Fprintf(stdout, "Team B: %s (mean %.1f)\n", strings.Join(split.TeamB, ", "), split.MeanB)
	fmt.Fprintf(stdout, "Imbalance: %.2f\n", split.Imbalance)
	fmt.Fprintf(stdout, "Expected outcome for team A: %.3f\n", split.Expected)
	return nil
}

func runCalibrate(ctx context.Context, cfg *config.Config, minK, maxK float64, stdout io.Writer) error {
	initial, games, err := loadInputs(ctx, cfg)
	if err != nil {
		return err
	}
	fit, err := calibrate.FitK(ctx, games,
		calibrate.WithInitial(initial),
		calibrate.WithDefaultRating(cfg.DefaultRating),
		calibrate.WithScale(cfg.Scale),
		calibrate.WithStart(cfg.KFactor),
		calibrate.WithBounds(minK, maxK),
	)
	if err != nil {
		return err
	}
	current := calibrate.LogLoss(games, cfg.KFactor,
		calibrate.WithInitial(initial),
		calibrate.WithDefaultRating(cfg.DefaultRating),
		calibrate.WithScale(cfg.Scale),
	)

	fmt.Fprintf(stdout, "%d games analyzed.\n", fit.Games)
	fmt.Fprintf(stdout, "K=%.2f log-loss=%.5f (K=%.2f gives %.5f)\n", fit.K, fit.LogLoss, cfg.KFactor, current)
	logger.Get().Info(ctx, "calibration complete",
		logger.Float64("k_factor", fit.K),
		logger.Int("iterations", fit.Iterations),
		logger.Int("evaluations", fit.Evaluations),
	)
	return nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	initial, games, err := loadInputs(ctx, cfg)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn(ctx, "no game history found", logger.Error(err))
		err = nil
	}
	if err != nil {
		return err
	}

	svc, err := newService(ctx, cfg, initial, true)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		_ = svc.Close()
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			log.Error(stopCtx, "service stop failed", logger.Error(err))
		}
	}()

	if !svc.Restored() && len(games) > 0 {
		if _, err := svc.Replay(ctx, games); err != nil {
			return err
		}
	}

	go startSystemMetricsUpdater(ctx)

	router := mux.NewRouter()
	swagger.Register(ctx, router)
	api.NewServer(svc, svc, standingsMaxLimit).Register(ctx, router)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Wrap(router, os.Stderr),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("run_id", svc.RunID()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	log.Info(shutdownCtx, "server stopped")
	return nil
}

// startSystemMetricsUpdater refreshes runtime gauges until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		metrics.RecordSystemGCPauseTime(float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond)
	}
}
