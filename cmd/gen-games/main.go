package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/okian/teamelo/internal/synth"
	"github.com/okian/teamelo/pkg/logger"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	cfg := synth.DefaultConfig()
	flag.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed")
	flag.IntVar(&cfg.Players, "players", cfg.Players, "Number of players")
	flag.IntVar(&cfg.Games, "games", cfg.Games, "Number of games")
	flag.IntVar(&cfg.TeamSize, "team-size", cfg.TeamSize, "Players per team")
	flag.IntVar(&cfg.RosterSize, "roster", cfg.RosterSize, "Players in the generated roster")
	flag.Float64Var(&cfg.Spread, "spread", cfg.Spread, "Standard deviation of hidden skills")
	flag.Float64Var(&cfg.DrawRate, "draws", cfg.DrawRate, "Probability of a draw")
	flag.StringVar(&cfg.OutDir, "out", "data", "Directory for the CSV files (empty to skip)")
	flag.StringVar(&cfg.BaseURL, "url", "", "Submit the games to this teamelo server")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent submitters")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Log submission progress")
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		os.Stderr.WriteString("gen-games: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(cfg synth.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	rep, err := synth.Run(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("%d games for %d players generated.\n", rep.Games, rep.Players)
	for _, f := range rep.Files {
		fmt.Println(f)
	}
	if cfg.BaseURL != "" {
		fmt.Printf("Spearman correlation over %d players: %.3f\n", rep.Compared, rep.Spearman)
	}
	return nil
}
