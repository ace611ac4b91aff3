package elo

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/teamelo/internal/domain/model"
)

// Summary aggregates a replay.
type Summary struct {
	Games      int
	Registered int
	Players    int
}

// SortGames orders games by ascending id in place. Games sharing an id keep
// their relative order.
func SortGames(games []model.Game) {
	sort.SliceStable(games, func(i, j int) bool { return games[i].ID() < games[j].ID() })
}

// Replay processes games in ascending id order. onGame, when non-nil, is called
// after every game. The input slice is not reordered.
func (p *Processor) Replay(ctx context.Context, games []model.Game, onGame func(Result)) (Summary, error) {
	ordered := append([]model.Game(nil), games...)
	SortGames(ordered)

	var sum Summary
	for _, g := range ordered {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("replay interrupted before game %d: %w", g.ID(), err)
		}
		res := p.Process(g)
		sum.Games++
		sum.Registered += res.Registered
		if onGame != nil {
			onGame(res)
		}
	}
	sum.Players = p.store.Len()
	return sum, nil
}
