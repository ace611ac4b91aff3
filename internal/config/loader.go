package config

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g. TEAMELO_K_FACTOR.
const EnvPrefix = "TEAMELO_"

// EnvConfigFile names the optional YAML file layered over the defaults.
const EnvConfigFile = EnvPrefix + "CONFIG"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if TEAMELO_CONFIG is set
//  3. env (prefix TEAMELO_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// TEAMELO_K_FACTOR -> k_factor. Underscores are kept to match the flat koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants the engine relies on.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case !finite(c.KFactor) || c.KFactor <= 0:
		return fmt.Errorf("%w: k_factor must be positive, got %v", ErrInvalidConfig, c.KFactor)
	case !finite(c.Scale) || c.Scale <= 0:
		return fmt.Errorf("%w: scale must be positive, got %v", ErrInvalidConfig, c.Scale)
	case !finite(c.DefaultRating):
		return fmt.Errorf("%w: default_rating must be finite, got %v", ErrInvalidConfig, c.DefaultRating)
	case c.MaxRosterSize < MinRosterSize || c.MaxRosterSize > MaxRosterSize:
		return fmt.Errorf("%w: max_roster_size must be within [%d,%d], got %d",
			ErrInvalidConfig, MinRosterSize, MaxRosterSize, c.MaxRosterSize)
	case c.IngestQueueSize < 0:
		return fmt.Errorf("%w: ingest_queue_size must not be negative, got %d", ErrInvalidConfig, c.IngestQueueSize)
	case c.IngestQueueSize > 0 && c.IngestWorkers < 1:
		return fmt.Errorf("%w: ingest_workers must be positive, got %d", ErrInvalidConfig, c.IngestWorkers)
	}

	switch c.OutputFormat {
	case FormatCSV, FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("%w: unknown output_format %q", ErrInvalidConfig, c.OutputFormat)
	}

	switch c.SnapshotBackend {
	case BackendNone, "":
	case BackendBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("%w: bolt_path must be set for the bolt backend", ErrInvalidConfig)
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn must be set for the postgres backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown snapshot_backend %q", ErrInvalidConfig, c.SnapshotBackend)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
