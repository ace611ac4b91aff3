// Package synth generates synthetic game histories from hidden player skills
// and checks how well the ratings recover them.
package synth

import (
	"errors"
	"fmt"
	"time"
)

// Errors returned by the generator and verifier.
var (
	ErrInvalidConfig  = errors.New("invalid synth config")
	ErrTooFewPlayers  = errors.New("too few players to compare")
	ErrUnhealthy      = errors.New("service is not healthy")
	ErrUnexpectedCode = errors.New("unexpected status code")
)

// Defaults used by cmd/gen-games.
const (
	DefaultPlayers    = 200
	DefaultGames      = 5000
	DefaultTeamSize   = 5
	DefaultRosterSize = 10
	DefaultMeanSkill  = 2000
	DefaultSpread     = 200
	DefaultScale      = 400
	DefaultDrawRate   = 0.05
	DefaultFetchLimit = 1000
	DefaultTimeout    = 10 * time.Second
)

// Config holds generator and submission settings.
type Config struct {
	Seed       int64   // Seed for every random draw; equal seeds give equal datasets
	Players    int     // Number of distinct players
	Games      int     // Number of games to generate
	TeamSize   int     // Players per team
	RosterSize int     // Players in the generated roster file
	MeanSkill  float64 // Mean of the hidden skill distribution
	Spread     float64 // Standard deviation of the hidden skill distribution
	Scale      float64 // Rating gap at which the win probability saturates
	DrawRate   float64 // Probability that a game is drawn

	OutDir string // Directory for the CSV files; empty skips writing

	BaseURL    string        // Service to submit games to; empty skips submission
	Workers    int           // Concurrent submitters
	Timeout    time.Duration // HTTP request timeout
	FetchLimit int           // Standings rows fetched for verification
	Verbose    bool          // Log progress while submitting
}

// DefaultConfig returns a Config holding the defaults.
func DefaultConfig() Config {
	return Config{
		Seed:       1,
		Players:    DefaultPlayers,
		Games:      DefaultGames,
		TeamSize:   DefaultTeamSize,
		RosterSize: DefaultRosterSize,
		MeanSkill:  DefaultMeanSkill,
		Spread:     DefaultSpread,
		Scale:      DefaultScale,
		DrawRate:   DefaultDrawRate,
		Workers:    1,
		Timeout:    DefaultTimeout,
		FetchLimit: DefaultFetchLimit,
	}
}

// Validate checks that a dataset can be generated from c.
func (c Config) Validate() error {
	switch {
	case c.TeamSize < 1:
		return fmt.Errorf("%w: team size must be positive, got %d", ErrInvalidConfig, c.TeamSize)
	case c.Players < 2*c.TeamSize:
		return fmt.Errorf("%w: %d players cannot fill two teams of %d", ErrInvalidConfig, c.Players, c.TeamSize)
	case c.Games < 0:
		return fmt.Errorf("%w: games must not be negative, got %d", ErrInvalidConfig, c.Games)
	case c.RosterSize < 0 || c.RosterSize%2 != 0 || c.RosterSize > c.Players:
		return fmt.Errorf("%w: roster size must be even and at most %d, got %d", ErrInvalidConfig, c.Players, c.RosterSize)
	case c.Spread < 0:
		return fmt.Errorf("%w: spread must not be negative, got %v", ErrInvalidConfig, c.Spread)
	case c.Scale <= 0:
		return fmt.Errorf("%w: scale must be positive, got %v", ErrInvalidConfig, c.Scale)
	case c.DrawRate < 0 || c.DrawRate >= 1:
		return fmt.Errorf("%w: draw rate must be within [0,1), got %v", ErrInvalidConfig, c.DrawRate)
	}
	return nil
}
