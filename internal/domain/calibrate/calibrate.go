// Package calibrate fits the K constant to a game history.
//
// A candidate K is scored by replaying every game on a fresh store and
// averaging the log-loss of each pre-game prediction against the recorded
// outcome. Nelder-Mead searches K within [min, max].
package calibrate

import (
	"context"
	"fmt"
	"math"

	"github.com/jlouis/nmoptim"

	"github.com/okian/teamelo/internal/domain/elo"
	"github.com/okian/teamelo/internal/domain/model"
	"github.com/okian/teamelo/internal/domain/rating"
	"github.com/okian/teamelo/pkg/metrics"
)

const (
	defaultMinK = 1.0
	defaultMaxK = 400.0
)

// Fit is the outcome of a calibration run.
type Fit struct {
	K           float64
	LogLoss     float64
	Iterations  int
	Evaluations int
	Games       int
}

// Option applies a configuration option to a calibration run.
type Option func(*settings)

type settings struct {
	scale   float64
	def     float64
	initial map[string]float64
	start   float64
	minK    float64
	maxK    float64
}

// WithScale sets the saturation scale R used during replay.
func WithScale(r float64) Option {
	return func(s *settings) {
		if r > 0 {
			s.scale = r
		}
	}
}

// WithDefaultRating sets the rating of unseen players.
func WithDefaultRating(r float64) Option {
	return func(s *settings) { s.def = r }
}

// WithInitial seeds every evaluation with these ratings.
func WithInitial(ratings map[string]float64) Option {
	return func(s *settings) { s.initial = ratings }
}

// WithStart sets the first K tried.
func WithStart(k float64) Option {
	return func(s *settings) { s.start = k }
}

// WithBounds restricts the search to [minK, maxK].
func WithBounds(minK, maxK float64) Option {
	return func(s *settings) {
		s.minK = minK
		s.maxK = maxK
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		scale: elo.DefaultScale,
		def:   rating.DefaultRating,
		start: elo.DefaultK,
		minK:  defaultMinK,
		maxK:  defaultMaxK,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// LogLoss replays games in id order with constant k and returns the mean
// log-loss of the predictions made before each game.
func LogLoss(games []model.Game, k float64, opts ...Option) float64 {
	return logLoss(sorted(games), k, newSettings(opts))
}

func logLoss(games []model.Game, k float64, s settings) float64 {
	if len(games) == 0 {
		return 0
	}
	store := rating.NewStore(rating.WithDefault(s.def), rating.WithInitial(s.initial))
	p := elo.NewProcessor(store, elo.WithK(k), elo.WithScale(s.scale))

	var total float64
	for _, g := range games {
		res := p.Process(g)
		// res.Expected is the prediction made from pre-game means
		y := g.Outcome().Score()
		total -= y*math.Log(res.Expected) + (1-y)*math.Log(1-res.Expected)
	}
	return total / float64(len(games))
}

// FitK searches for the K that minimizes LogLoss over games.
func FitK(ctx context.Context, games []model.Game, opts ...Option) (Fit, error) {
	s := newSettings(opts)
	if len(games) == 0 {
		return Fit{}, ErrNoGames
	}
	if s.minK <= 0 || s.maxK <= s.minK {
		return Fit{}, fmt.Errorf("%w: [%g, %g]", ErrInvalidBounds, s.minK, s.maxK)
	}
	games = sorted(games)
	start := math.Min(math.Max(s.start, s.minK), s.maxK)

	objective := func(x []float64) float64 {
		if ctx.Err() != nil {
			return math.MaxFloat64
		}
		metrics.RecordCalibrationEvaluation()
		return logLoss(games, x[0], s)
	}
	constrain := func(x []float64) {
		x[0] = math.Min(math.Max(x[0], s.minK), s.maxK)
	}

	second := start * 1.5
	if second > s.maxK {
		second = start / 2
	}
	vals, iters, evals := nmoptim.Optimize(objective, [][]float64{{start}, {second}}, constrain)
	if err := ctx.Err(); err != nil {
		return Fit{}, fmt.Errorf("calibration interrupted: %w", err)
	}

	return Fit{
		K:           vals[0],
		LogLoss:     logLoss(games, vals[0], s),
		Iterations:  iters,
		Evaluations: evals,
		Games:       len(games),
	}, nil
}

func sorted(games []model.Game) []model.Game {
	out := append([]model.Game(nil), games...)
	elo.SortGames(out)
	return out
}
