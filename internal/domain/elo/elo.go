// Package elo applies the team Elo update rule to a rating store.
package elo

import (
	"math"

	"github.com/okian/teamelo/internal/domain/model"
	"github.com/okian/teamelo/internal/domain/rating"
)

// Default update constants.
const (
	DefaultK     = 60.0
	DefaultScale = 400.0
)

// ExpectedScore is the probability that a side rated elo1 beats a side rated
// elo2. The rating gap is clamped to [-scale, scale], so every gap of at least
// scale counts as equally decisive and the result stays strictly within (0, 1).
func ExpectedScore(elo1, elo2, scale float64) float64 {
	d := clamp(-scale, elo2-elo1, scale)
	return 1 / (1 + math.Pow(10, d/scale))
}

// clamp bounds v to [low, high].
func clamp(low, v, high float64) float64 {
	if v < low {
		return low
	} else if v > high {
		return high
	}
	return v
}

// Option applies a configuration option to the Processor.
type Option func(*Processor)

// WithK sets the sensitivity constant K. Non-positive values are ignored.
func WithK(k float64) Option {
	return func(p *Processor) {
		if k > 0 {
			p.k = k
		}
	}
}

// WithScale sets the saturation scale R. Non-positive values are ignored.
func WithScale(r float64) Option {
	return func(p *Processor) {
		if r > 0 {
			p.scale = r
		}
	}
}

// Result describes what processing one game did.
type Result struct {
	GameID     int64
	Mean1      float64
	Mean2      float64
	Expected   float64
	Delta      float64
	Registered int // players seen for the first time in this game
}

// Processor applies completed games to a rating store.
type Processor struct {
	store *rating.Store
	k     float64
	scale float64
}

// NewProcessor creates a processor writing to store.
func NewProcessor(store *rating.Store, opts ...Option) *Processor {
	p := &Processor{
		store: store,
		k:     DefaultK,
		scale: DefaultScale,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// K returns the sensitivity constant.
func (p *Processor) K() float64 { return p.k }

// Scale returns the saturation scale.
func (p *Processor) Scale() float64 { return p.scale }

// Store returns the store the processor writes to.
func (p *Processor) Store() *rating.Store { return p.store }

// Expected returns the expected score of a team rated mean1 against mean2.
func (p *Processor) Expected(mean1, mean2 float64) float64 {
	return ExpectedScore(mean1, mean2, p.scale)
}

// Process applies g to the store. Every participant is first registered at the
// default rating if unseen, then each team1 slot gains delta on its own current
// rating and each team2 slot loses it. A player listed twice moves twice.
func (p *Processor) Process(g model.Game) Result {
	res := Result{GameID: g.ID()}

	t1, t2 := g.Team1(), g.Team2()
	res.Mean1, res.Registered = p.teamMean(t1)
	var reg2 int
	res.Mean2, reg2 = p.teamMean(t2)
	res.Registered += reg2

	res.Expected = p.Expected(res.Mean1, res.Mean2)
	res.Delta = p.k * (g.Outcome().Score() - res.Expected)

	for _, id := range t1 {
		p.store.Add(id, res.Delta)
	}
	for _, id := range t2 {
		p.store.Add(id, -res.Delta)
	}
	return res
}

// Predict returns the expected score of team1 against team2 without touching the store.
func (p *Processor) Predict(team1, team2 model.Team) float64 {
	return p.Expected(MeanOf(p.store, team1), MeanOf(p.store, team2))
}

func (p *Processor) teamMean(team model.Team) (float64, int) {
	var sum float64
	registered := 0
	for _, id := range team {
		if _, ok := p.store.Lookup(id); !ok {
			registered++
		}
		sum += p.store.GetOrInsertDefault(id)
	}
	return sum / float64(len(team)), registered
}

// MeanOf averages the read-only ratings of ids. Unseen ids count at the default.
// It returns NaN for an empty list.
func MeanOf(store *rating.Store, ids []string) float64 {
	if len(ids) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, id := range ids {
		sum += store.GetOrDefault(id)
	}
	return sum / float64(len(ids))
}
