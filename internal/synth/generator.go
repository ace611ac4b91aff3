package synth

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/okian/teamelo/internal/domain/elo"
	"github.com/okian/teamelo/internal/domain/model"
	"github.com/okian/teamelo/pkg/logger"
)

const ctxCheckEvery = 1024

// Player is a generated identity with its hidden skill.
type Player struct {
	ID    string
	Skill float64
}

// Dataset is one generated history.
type Dataset struct {
	Players []Player
	Games   []model.Game
	Roster  []string
}

// Generate draws players and games from cfg.Seed. Outcomes follow the Elo
// win probability of the teams' mean hidden skills, with draws at DrawRate.
func Generate(ctx context.Context, cfg Config) (Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return Dataset{}, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // reproducible test data

	players := make([]Player, cfg.Players)
	for i := range players {
		id, err := uuid.NewRandomFromReader(rng)
		if err != nil {
			return Dataset{}, fmt.Errorf("player %d id: %w", i, err)
		}
		players[i] = Player{ID: id.String(), Skill: cfg.MeanSkill + rng.NormFloat64()*cfg.Spread}
	}

	games := make([]model.Game, 0, cfg.Games)
	for i := 0; i < cfg.Games; i++ {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Dataset{}, fmt.Errorf("generation cancelled after %d games: %w", i, err)
			}
		}
		g, err := drawGame(rng, cfg, players, int64(i+1))
		if err != nil {
			return Dataset{}, err
		}
		games = append(games, g)
	}

	roster := make([]string, cfg.RosterSize)
	for i, idx := range rng.Perm(len(players))[:cfg.RosterSize] {
		roster[i] = players[idx].ID
	}

	logger.Get().Debug(ctx, "dataset generated",
		logger.Int("players", len(players)),
		logger.Int("games", len(games)),
		logger.Any("seed", cfg.Seed),
	)
	return Dataset{Players: players, Games: games, Roster: roster}, nil
}

func drawGame(rng *rand.Rand, cfg Config, players []Player, id int64) (model.Game, error) {
	picked := rng.Perm(len(players))[:2*cfg.TeamSize]
	team1 := make(model.Team, cfg.TeamSize)
	team2 := make(model.Team, cfg.TeamSize)
	var sum1, sum2 float64
	for i, idx := range picked {
		p := players[idx]
		if i < cfg.TeamSize {
			team1[i] = p.ID
			sum1 += p.Skill
		} else {
			team2[i-cfg.TeamSize] = p.ID
			sum2 += p.Skill
		}
	}

	n := float64(cfg.TeamSize)
	p := elo.ExpectedScore(sum1/n, sum2/n, cfg.Scale)
	outcome := model.Loss
	switch {
	case rng.Float64() < cfg.DrawRate:
		outcome = model.Draw
	case rng.Float64() < p:
		outcome = model.Win
	}
	return model.NewGame(id, team1, team2, outcome)
}

// Skills returns the hidden skill of every player keyed by id.
func (d Dataset) Skills() map[string]float64 {
	out := make(map[string]float64, len(d.Players))
	for _, p := range d.Players {
		out[p.ID] = p.Skill
	}
	return out
}
