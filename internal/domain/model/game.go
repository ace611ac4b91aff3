// Package model contains the domain values passed between layers.
package model

import "fmt"

// Team is an ordered list of player ids. Listing a player twice is accepted;
// that player's rating then counts twice toward the team mean.
type Team []string

// Game is a completed two-team game. A Game built by NewGame always has two
// non-empty teams of equal size; fields are unexported to keep it immutable.
type Game struct {
	id      int64
	team1   Team
	team2   Team
	outcome Outcome
}

// NewGame validates and builds a Game. The teams are copied.
func NewGame(id int64, team1, team2 Team, outcome Outcome) (Game, error) {
	switch {
	case len(team1) == 0 || len(team2) == 0:
		return Game{}, fmt.Errorf("game %d: %w", id, ErrEmptyTeam)
	case len(team1) != len(team2):
		return Game{}, fmt.Errorf("game %d: %w (%d vs %d)", id, ErrTeamSizeMismatch, len(team1), len(team2))
	case !outcome.Valid():
		return Game{}, fmt.Errorf("game %d: %w: %d", id, ErrInvalidOutcome, int(outcome))
	}
	return Game{
		id:      id,
		team1:   append(Team(nil), team1...),
		team2:   append(Team(nil), team2...),
		outcome: outcome,
	}, nil
}

// MustGame is NewGame for literals in tests and fixtures; it panics on error.
func MustGame(id int64, team1, team2 Team, outcome Outcome) Game {
	g, err := NewGame(id, team1, team2, outcome)
	if err != nil {
		panic(err)
	}
	return g
}

// SplitParticipants builds a game from one flat participant list: the first
// half is team1, the second half team2.
func SplitParticipants(id int64, participants []string, outcome Outcome) (Game, error) {
	if len(participants)%2 != 0 {
		return Game{}, fmt.Errorf("game %d: %w (%d)", id, ErrOddParticipants, len(participants))
	}
	half := len(participants) / 2
	return NewGame(id, participants[:half], participants[half:], outcome)
}

// ID returns the game id used for replay ordering.
func (g Game) ID() int64 { return g.id }

// Team1 returns a copy of the first team.
func (g Game) Team1() Team { return append(Team(nil), g.team1...) }

// Team2 returns a copy of the second team.
func (g Game) Team2() Team { return append(Team(nil), g.team2...) }

// Outcome returns the result from team1's point of view.
func (g Game) Outcome() Outcome { return g.outcome }

// Size returns the number of players per team.
func (g Game) Size() int { return len(g.team1) }

// Swapped returns the same game seen from the other side.
func (g Game) Swapped() Game {
	return Game{id: g.id, team1: g.Team2(), team2: g.Team1(), outcome: g.outcome.Invert()}
}

// EachPlayer calls fn for every team1 then every team2 slot.
func (g Game) EachPlayer(fn func(team int, id string)) {
	for _, p := range g.team1 {
		fn(1, p)
	}
	for _, p := range g.team2 {
		fn(2, p)
	}
}

func (g Game) String() string {
	return fmt.Sprintf("game %d %v vs %v: %s", g.id, g.team1, g.team2, g.outcome)
}
