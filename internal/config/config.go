// Package config defines teamelo configuration and its loading hooks.
//
// Conventions:
//   - New(ctx) returns defaults; Load(ctx) layers file and env on top.
//   - Every loading or validation failure wraps one of the sentinels in errors.go.
package config

import (
	"context"
	"path/filepath"
	"runtime"
)

// Output formats for standings.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Snapshot backends.
const (
	BackendNone     = "none"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

// Bounds on the balancer roster ceiling. Rosters above 62 would overflow the
// combination counter.
const (
	MinRosterSize = 2
	MaxRosterSize = 62
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address for `serve`.
	Addr string `koanf:"addr"`

	// KFactor is the Elo sensitivity constant K.
	KFactor float64 `koanf:"k_factor"`

	// Scale is the rating gap R at which the expected score saturates.
	Scale float64 `koanf:"scale"`

	// DefaultRating is assigned to players with no history.
	DefaultRating float64 `koanf:"default_rating"`

	// MaxRosterSize caps the balancer's exhaustive search.
	MaxRosterSize int `koanf:"max_roster_size"`

	// BalanceWorkers splits the balancer search across goroutines; 1 is sequential.
	BalanceWorkers int `koanf:"balance_workers"`

	// DedupeSize bounds the remembered game ids for POST /games.
	DedupeSize int `koanf:"dedupe_size"`

	// IngestQueueSize enables asynchronous POST /games when positive: games
	// are queued and applied by IngestWorkers in the background.
	IngestQueueSize int `koanf:"ingest_queue_size"`

	// IngestWorkers applies queued games. Only one worker keeps arrival order.
	IngestWorkers int `koanf:"ingest_workers"`

	// DataDir is the directory relative file names below are resolved against.
	DataDir     string `koanf:"data_dir"`
	InitialFile string `koanf:"initial_file"`
	ScoresFile  string `koanf:"scores_file"`
	GamesFile   string `koanf:"games_file"`
	RosterFile  string `koanf:"roster_file"`
	OutputFile  string `koanf:"output_file"`

	// OutputFormat is one of csv, json, yaml.
	OutputFormat string `koanf:"output_format"`

	// SnapshotBackend is one of none, bolt, postgres.
	SnapshotBackend string `koanf:"snapshot_backend"`
	BoltPath        string `koanf:"bolt_path"`
	PostgresDSN     string `koanf:"postgres_dsn"`
}

// New creates a Config holding defaults. The data file names match the
// layout the ratings have always been kept in: data/initial.csv,
// data/scores.csv, data/games.csv and data/elo.csv.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:        "info",
		Addr:            ":9080",
		KFactor:         60,
		Scale:           400,
		DefaultRating:   2000,
		MaxRosterSize:   20,
		BalanceWorkers:  runtime.NumCPU(),
		DedupeSize:      100_000,
		IngestWorkers:   1,
		DataDir:         "data",
		InitialFile:     "initial.csv",
		ScoresFile:      "scores.csv",
		GamesFile:       "games.csv",
		RosterFile:      "roster.csv",
		OutputFile:      "elo.csv",
		OutputFormat:    FormatCSV,
		SnapshotBackend: BackendNone,
		BoltPath:        "teamelo.db",
	}
}

// Path resolves name against DataDir unless it is absolute or empty.
func (c *Config) Path(name string) string {
	if name == "" || filepath.IsAbs(name) || c.DataDir == "" {
		return name
	}
	return filepath.Join(c.DataDir, name)
}
