package synth

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/teamelo/pkg/logger"
)

// Report summarizes one run.
type Report struct {
	Players  int
	Games    int
	Files    []string
	Submit   SubmitStats
	Compared int
	Spearman float64
	Duration time.Duration
}

// Run generates a dataset, writes it when OutDir is set, and when BaseURL is
// set submits the games and compares the served standings to the hidden skills.
func Run(ctx context.Context, cfg Config) (Report, error) {
	start := time.Now()
	log := logger.Get()

	ds, err := Generate(ctx, cfg)
	if err != nil {
		return Report{}, fmt.Errorf("generation failed: %w", err)
	}
	rep := Report{Players: len(ds.Players), Games: len(ds.Games)}

	if cfg.OutDir != "" {
		if rep.Files, err = WriteDataset(cfg.OutDir, ds); err != nil {
			return rep, err
		}
		log.Info(ctx, "dataset written", logger.String("dir", cfg.OutDir), logger.Int("files", len(rep.Files)))
	}

	if cfg.BaseURL != "" {
		client := NewClient(cfg.BaseURL, cfg.Timeout)
		if err := client.Health(ctx); err != nil {
			return rep, fmt.Errorf("service health check failed: %w", err)
		}
		if rep.Submit, err = Submit(ctx, client, ds.Games, cfg.Workers, cfg.Verbose); err != nil {
			return rep, fmt.Errorf("game submission failed: %w", err)
		}

		limit := cfg.FetchLimit
		if limit <= 0 || limit > len(ds.Players) {
			limit = len(ds.Players)
		}
		standings, err := client.Standings(ctx, limit)
		if err != nil {
			return rep, fmt.Errorf("standings retrieval failed: %w", err)
		}
		if rep.Spearman, rep.Compared, err = Spearman(ds.Skills(), standings); err != nil {
			return rep, fmt.Errorf("result verification failed: %w", err)
		}
	}

	rep.Duration = time.Since(start)
	log.Info(ctx, "final statistics",
		logger.Int("players", rep.Players),
		logger.Int("games", rep.Games),
		logger.Any("applied", rep.Submit.Applied),
		logger.Any("failed", rep.Submit.Failed),
		logger.Int("compared", rep.Compared),
		logger.Float64("spearman", rep.Spearman),
		logger.Duration("duration", rep.Duration),
	)
	return rep, nil
}
